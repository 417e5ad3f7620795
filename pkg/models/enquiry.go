package models

import (
	"slices"
	"time"
)

// LeadType classifies the buyer.
type LeadType string

const (
	LeadTypeB2B LeadType = "B2B"
	LeadTypeB2C LeadType = "B2C"
)

// Profile is the enquiry classification.
type Profile string

const (
	ProfileProject      Profile = "Project"
	ProfileProduct      Profile = "Product"
	ProfileAMCService   Profile = "AMC/Service"
	ProfileComplaint    Profile = "Complaint"
	ProfileJob          Profile = "Job"
	ProfileInfoRequest  Profile = "Info Request"
	ProfileInstallation Profile = "Installation"
	ProfileUnknown      Profile = "Unknown"
)

// Status is the primary lifecycle state.
type Status string

const (
	StatusUnknown    Status = "Unknown"
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusQuoted     Status = "Quoted"
	StatusConverted  Status = "Converted"
	StatusRejected   Status = "Rejected"
	StatusArchived   Status = "Archived"
	StatusDuplicate  Status = "Duplicate"
)

// Stage is the UI-facing lifecycle label kept in lockstep with Status.
type Stage string

const (
	StageTelecallerQueue   Stage = "Telecaller Queue"
	StageCaptured          Stage = "Captured"
	StageProfileIdentified Stage = "Profile Identified"
	StageAssignmentPending Stage = "Assignment Pending"
	StageAssigned          Stage = "Assigned"
	StageActionInProgress  Stage = "Action in Progress"
	StageQuoted            Stage = "Quoted"
	StageClosedConverted   Stage = "Closed - Converted"
	StageClosedRejected    Stage = "Closed - Rejected"
	StageArchived          Stage = "Archived"
	StageValidation        Stage = "Validation"
)

// Priority drives SLA due dates.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

var (
	LeadTypes  = []LeadType{LeadTypeB2B, LeadTypeB2C}
	Profiles   = []Profile{ProfileProject, ProfileProduct, ProfileAMCService, ProfileComplaint, ProfileJob, ProfileInfoRequest, ProfileInstallation, ProfileUnknown}
	Statuses   = []Status{StatusUnknown, StatusNew, StatusInProgress, StatusQuoted, StatusConverted, StatusRejected, StatusArchived, StatusDuplicate}
	Stages     = []Stage{StageTelecallerQueue, StageCaptured, StageProfileIdentified, StageAssignmentPending, StageAssigned, StageActionInProgress, StageQuoted, StageClosedConverted, StageClosedRejected, StageArchived, StageValidation}
	Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}
)

func (t LeadType) IsValid() bool { return slices.Contains(LeadTypes, t) }
func (p Profile) IsValid() bool  { return slices.Contains(Profiles, p) }
func (s Status) IsValid() bool   { return slices.Contains(Statuses, s) }
func (s Stage) IsValid() bool    { return slices.Contains(Stages, s) }
func (p Priority) IsValid() bool { return slices.Contains(Priorities, p) }

// OpenStatuses are the statuses counted as an agent's current load.
var OpenStatuses = []Status{StatusNew, StatusInProgress}

// Remark is an append-only note on an enquiry.
type Remark struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

// Enquiry is the aggregate root for a sales lead.
type Enquiry struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	CustomerName      string     `json:"customer_name"`
	Phone             string     `json:"phone,omitempty"`
	Email             string     `json:"email,omitempty"`
	Company           string     `json:"company,omitempty"`
	City              string     `json:"city,omitempty"`
	Description       string     `json:"description,omitempty"`
	TypeOfLead        LeadType   `json:"type_of_lead"`
	Profile           Profile    `json:"enquiry_profile"`
	SourceType        string     `json:"source_type,omitempty"`
	ChannelType       string     `json:"channel_type,omitempty"`
	EstimatedValue    float64    `json:"estimated_value"`
	Status            Status     `json:"status"`
	Stage             Stage      `json:"stage"`
	AssignedTo        *string    `json:"assigned_to,omitempty"`
	AssignedTeam      string     `json:"assigned_team,omitempty"`
	AssignmentVersion int64      `json:"assignment_version"`
	Priority          Priority   `json:"priority"`
	ResponseDue       time.Time  `json:"response_due"`
	ResolutionDue     time.Time  `json:"resolution_due"`
	IsDuplicate       bool       `json:"is_duplicate"`
	DuplicateOf       *string    `json:"duplicate_of,omitempty"`
	Remarks           []Remark   `json:"remarks"`
	CreatedBy         string     `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	SLABreachedAt     *time.Time `json:"sla_breached_at,omitempty"`
}

// IsAssigned reports whether an agent currently owns the enquiry.
func (e *Enquiry) IsAssigned() bool {
	return e.AssignedTo != nil && *e.AssignedTo != ""
}
