package enquiries

import (
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// AwaitingResponse are the statuses whose response SLA is still running.
var AwaitingResponse = []models.Status{models.StatusUnknown, models.StatusNew}

// Filter narrows enquiry lists. Zero values do not filter.
type Filter struct {
	Status      models.Status
	Stage       models.Stage
	Priority    models.Priority
	Profile     models.Profile
	TypeOfLead  models.LeadType
	SourceType  string
	ChannelType string
	City        string
	AssignedTo  string
	Unassigned  bool
	IsDuplicate *bool
	// Search matches code, customer name, phone, email and company case-insensitively.
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// OverdueAt keeps enquiries still awaiting a response whose response_due is before it.
	OverdueAt *time.Time
	SortBy    string
	SortDesc  bool
}

var sortable = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"code":            true,
	"customer_name":   true,
	"priority":        true,
	"status":          true,
	"stage":           true,
	"response_due":    true,
	"resolution_due":  true,
	"estimated_value": true,
}

// Sortable reports whether column can be used as SortBy.
func Sortable(column string) bool {
	return sortable[column]
}

func (f Filter) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	eq := func(col, v string) {
		if v != "" {
			preds = append(preds, entsql.EQ(col, v))
		}
	}
	eq("status", string(f.Status))
	eq("stage", string(f.Stage))
	eq("priority", string(f.Priority))
	eq("enquiry_profile", string(f.Profile))
	eq("type_of_lead", string(f.TypeOfLead))
	eq("source_type", f.SourceType)
	eq("channel_type", f.ChannelType)
	eq("city", f.City)
	eq("assigned_to", f.AssignedTo)

	if f.Unassigned {
		preds = append(preds, entsql.IsNull("assigned_to"))
	}
	if f.IsDuplicate != nil {
		preds = append(preds, entsql.EQ("is_duplicate", *f.IsDuplicate))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		preds = append(preds, entsql.Or(
			entsql.ContainsFold("code", q),
			entsql.ContainsFold("customer_name", q),
			entsql.ContainsFold("phone", q),
			entsql.ContainsFold("email", q),
			entsql.ContainsFold("company", q),
		))
	}
	if f.CreatedFrom != nil {
		preds = append(preds, entsql.GTE("created_at", *f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		preds = append(preds, entsql.LT("created_at", *f.CreatedTo))
	}
	if f.OverdueAt != nil {
		preds = append(preds, overdue(*f.OverdueAt))
	}

	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

func (f Filter) order() []string {
	col := "created_at"
	if sortable[f.SortBy] {
		col = f.SortBy
	}
	desc := f.SortDesc || f.SortBy == ""
	if desc {
		return []string{entsql.Desc(col), entsql.Desc("id")}
	}
	return []string{entsql.Asc(col), entsql.Asc("id")}
}

func overdue(at time.Time) *entsql.Predicate {
	args := make([]any, len(AwaitingResponse))
	for i, s := range AwaitingResponse {
		args[i] = string(s)
	}
	return entsql.And(entsql.In("status", args...), entsql.LT("response_due", at))
}
