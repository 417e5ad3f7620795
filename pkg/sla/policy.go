// Package sla computes response and resolution due dates from priority.
package sla

import (
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Hours holds the SLA window for each priority.
type Hours struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (h Hours) forPriority(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return h.High
	case models.PriorityLow:
		return h.Low
	default:
		return h.Medium
	}
}

// Policy is the priority to hours lookup table.
type Policy struct {
	Response   Hours `json:"response"`
	Resolution Hours `json:"resolution"`
}

// DefaultPolicy returns response 2/4/8h and resolution 24/48/72h.
func DefaultPolicy() Policy {
	return Policy{
		Response:   Hours{High: 2, Medium: 4, Low: 8},
		Resolution: Hours{High: 24, Medium: 48, Low: 72},
	}
}

// DueDates returns the response and resolution deadlines anchored at anchor.
// Unknown priorities use the medium window.
func (p Policy) DueDates(priority models.Priority, anchor time.Time) (response, resolution time.Time) {
	response = anchor.Add(time.Duration(p.Response.forPriority(priority)) * time.Hour)
	resolution = anchor.Add(time.Duration(p.Resolution.forPriority(priority)) * time.Hour)
	return response, resolution
}

// Validate rejects non-positive windows and responses slower than resolutions.
func (p Policy) Validate() error {
	var details []string
	check := func(name string, v int) {
		if v <= 0 {
			details = append(details, fmt.Sprintf("%s must be positive", name))
		}
	}
	check("response.high", p.Response.High)
	check("response.medium", p.Response.Medium)
	check("response.low", p.Response.Low)
	check("resolution.high", p.Resolution.High)
	check("resolution.medium", p.Resolution.Medium)
	check("resolution.low", p.Resolution.Low)

	for _, pr := range models.Priorities {
		if p.Response.forPriority(pr) > p.Resolution.forPriority(pr) {
			details = append(details, fmt.Sprintf("%s response window exceeds resolution window", pr))
		}
	}

	if len(details) > 0 {
		return domain.NewValidationError("invalid SLA policy", details...)
	}
	return nil
}

// Registry holds the active policy and allows it to be replaced at runtime.
type Registry struct {
	mu     sync.RWMutex
	policy Policy
}

// NewRegistry creates a registry seeded with policy.
func NewRegistry(policy Policy) *Registry {
	return &Registry{policy: policy}
}

// Current returns a copy of the active policy.
func (r *Registry) Current() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// Update validates and installs a new policy. Existing due dates are not recomputed.
func (r *Registry) Update(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.policy = policy
	r.mu.Unlock()
	return nil
}
