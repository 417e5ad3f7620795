package models

import (
	"slices"
	"time"
)

// RuleType selects the assignment strategy.
type RuleType string

const (
	RuleTypeRoundRobin RuleType = "round-robin"
	RuleTypeLoadBased  RuleType = "load-based"
	RuleTypeManual     RuleType = "manual"
	RuleTypeFallback   RuleType = "fallback"
)

// RuleTypes lists every strategy.
var RuleTypes = []RuleType{RuleTypeRoundRobin, RuleTypeLoadBased, RuleTypeManual, RuleTypeFallback}

func (t RuleType) IsValid() bool { return slices.Contains(RuleTypes, t) }

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn}

func (o Operator) IsValid() bool { return slices.Contains(Operators, o) }

// Condition is one {field, operator, value} test. Value keeps its JSON shape.
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required,operator"`
	Value    any      `json:"value"`
}

// Candidate is one member of a rule's assignee pool.
type Candidate struct {
	UserID              string `json:"user" validate:"required"`
	Weight              int    `json:"weight" validate:"min=0"`
	MaxDailyAssignments int    `json:"max_daily_assignments" validate:"min=0"`
}

// EffectiveWeight returns the weight used for load balancing (at least 1).
func (c Candidate) EffectiveWeight() int {
	if c.Weight < 1 {
		return 1
	}
	return c.Weight
}

// AssignmentRule is a prioritised, conditionally matched routing policy.
type AssignmentRule struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	IsActive     bool        `json:"is_active"`
	Priority     int         `json:"priority"`
	RuleType     RuleType    `json:"rule_type"`
	Conditions   []Condition `json:"conditions"`
	AssignmentTo []Candidate `json:"assignment_to"`
	FallbackUser *string     `json:"fallback_user,omitempty"`
	CreatedBy    string      `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AssignmentType says who or what initiated an assignment.
type AssignmentType string

const (
	AssignmentTypeAuto         AssignmentType = "auto"
	AssignmentTypeManual       AssignmentType = "manual"
	AssignmentTypeReassignment AssignmentType = "reassignment"
	AssignmentTypeBulk         AssignmentType = "bulk"
)

// AssignmentMethod records how the assignee was picked.
type AssignmentMethod string

const (
	MethodRoundRobin AssignmentMethod = "round-robin"
	MethodLoadBased  AssignmentMethod = "load-based"
	MethodFallback   AssignmentMethod = "fallback"
	MethodManual     AssignmentMethod = "manual"
)

// AssignmentLog is a write-once assignment history record.
type AssignmentLog struct {
	ID                 string           `json:"id"`
	EnquiryID          string           `json:"enquiry_id"`
	OldAssignee        *string          `json:"old_assignee,omitempty"`
	NewAssignee        *string          `json:"new_assignee,omitempty"`
	AssignedBy         *string          `json:"assigned_by,omitempty"`
	RuleID             *string          `json:"rule_id,omitempty"`
	AssignmentType     AssignmentType   `json:"assignment_type"`
	AssignmentReason   string           `json:"assignment_reason,omitempty"`
	AssignmentMethod   AssignmentMethod `json:"assignment_method"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
	AssignmentDuration *int64           `json:"assignment_duration,omitempty"` // seconds until superseded
}
