// Package leadlifecycle keeps enquiry status, stage and SLA dates consistent across transitions.
package leadlifecycle

import (
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/sla"
)

var statusStages = map[models.Status]models.Stage{
	models.StatusNew:        models.StageCaptured,
	models.StatusUnknown:    models.StageTelecallerQueue,
	models.StatusInProgress: models.StageActionInProgress,
	models.StatusQuoted:     models.StageQuoted,
	models.StatusConverted:  models.StageClosedConverted,
	models.StatusRejected:   models.StageClosedRejected,
	models.StatusArchived:   models.StageArchived,
}

// StageForStatus returns the stage a status maps to. Unmapped statuses return ok=false.
func StageForStatus(status models.Status) (models.Stage, bool) {
	stage, ok := statusStages[status]
	return stage, ok
}

// IsClosed reports whether status ends the enquiry.
func IsClosed(status models.Status) bool {
	return status == models.StatusConverted || status == models.StatusRejected
}

// InitialState returns the status and stage a new enquiry starts in.
func InitialState(profile models.Profile) (models.Status, models.Stage) {
	if profile == "" || profile == models.ProfileUnknown {
		return models.StatusUnknown, models.StageTelecallerQueue
	}
	return models.StatusNew, models.StageCaptured
}

// StatusRemark is the text appended for every status transition.
func StatusRemark(from, to models.Status) string {
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}

// ApplyStatusChange moves e to status. Setting the current status again is not a transition
// and returns false. Each transition appends exactly one remark.
func ApplyStatusChange(e *models.Enquiry, status models.Status, actor string, now time.Time) bool {
	if e.Status == status {
		return false
	}

	from := e.Status
	e.Status = status
	if stage, ok := StageForStatus(status); ok {
		e.Stage = stage
	}

	switch {
	case IsClosed(status):
		closed := now
		e.ClosedAt = &closed
	case IsClosed(from):
		e.ClosedAt = nil
	}

	appendRemark(e, StatusRemark(from, status), actor, now)
	e.UpdatedAt = now
	return true
}

// ApplyProfileChange sets the profile. Leaving Unknown identifies the enquiry: status is forced
// to New and stage to Profile Identified. Returns true when identification happened, which
// makes the enquiry eligible for auto-assignment.
func ApplyProfileChange(e *models.Enquiry, profile models.Profile, actor string, now time.Time) bool {
	if e.Profile == profile {
		return false
	}

	from := e.Profile
	e.Profile = profile
	e.UpdatedAt = now

	if from != models.ProfileUnknown || profile == models.ProfileUnknown {
		return false
	}

	if e.Status != models.StatusNew {
		appendRemark(e, StatusRemark(e.Status, models.StatusNew), actor, now)
		e.Status = models.StatusNew
	}
	e.Stage = models.StageProfileIdentified
	return true
}

// ApplyPriorityChange sets priority and recomputes due dates from created_at.
func ApplyPriorityChange(e *models.Enquiry, priority models.Priority, policy sla.Policy, now time.Time) bool {
	if e.Priority == priority {
		return false
	}
	e.Priority = priority
	e.ResponseDue, e.ResolutionDue = policy.DueDates(priority, e.CreatedAt)
	e.UpdatedAt = now
	return true
}

// MarkDuplicate flags e as a duplicate of original and parks it in Validation.
func MarkDuplicate(e *models.Enquiry, originalID string) {
	id := originalID
	e.IsDuplicate = true
	e.DuplicateOf = &id
	e.Status = models.StatusDuplicate
	e.Stage = models.StageValidation
}

// CanAssign reports whether e may be given an owner at all. Closed, archived and duplicate
// enquiries keep their current owner.
func CanAssign(e *models.Enquiry) bool {
	return !e.IsDuplicate &&
		e.Status != models.StatusDuplicate &&
		e.Status != models.StatusArchived &&
		!IsClosed(e.Status)
}

// AssignedStage is the stage an owned enquiry sits in. Only enquiries nobody has worked yet
// move to Assigned; later statuses keep their mapped stage.
func AssignedStage(e *models.Enquiry) models.Stage {
	if e.Status == models.StatusUnknown || e.Status == models.StatusNew {
		return models.StageAssigned
	}
	if stage, ok := StageForStatus(e.Status); ok {
		return stage
	}
	return e.Stage
}

// MarkAssigned records a new owner and sets the stage from the status.
func MarkAssigned(e *models.Enquiry, assignee, team string, now time.Time) {
	id := assignee
	e.AssignedTo = &id
	if team != "" {
		e.AssignedTeam = team
	}
	e.Stage = AssignedStage(e)
	e.AssignmentVersion++
	e.UpdatedAt = now
}

// MarkAssignmentPending leaves e unassigned, waiting for a human decision.
func MarkAssignmentPending(e *models.Enquiry, now time.Time) {
	e.Stage = models.StageAssignmentPending
	e.UpdatedAt = now
}

// CanAutoAssign reports whether e is eligible for rule based assignment.
func CanAutoAssign(e *models.Enquiry) bool {
	return CanAssign(e) && e.Profile != models.ProfileUnknown
}

// AddRemark appends a free text remark.
func AddRemark(e *models.Enquiry, text, actor string, now time.Time) {
	appendRemark(e, text, actor, now)
	e.UpdatedAt = now
}

func appendRemark(e *models.Enquiry, text, actor string, now time.Time) {
	e.Remarks = append(e.Remarks, models.Remark{Text: text, AddedBy: actor, AddedAt: now})
}
