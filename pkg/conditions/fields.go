package conditions

import (
	"sort"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Kind is the value type a field yields.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindTime
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

// Field is a typed accessor for one enquiry attribute.
// Get returns ok=false when the attribute is absent on the enquiry.
type Field struct {
	Name string
	Kind Kind
	Get  func(e *models.Enquiry) (value any, ok bool)
}

func stringField(name string, get func(e *models.Enquiry) string) Field {
	return Field{Name: name, Kind: KindString, Get: func(e *models.Enquiry) (any, bool) {
		v := get(e)
		return v, v != ""
	}}
}

func timeField(name string, get func(e *models.Enquiry) time.Time) Field {
	return Field{Name: name, Kind: KindTime, Get: func(e *models.Enquiry) (any, bool) {
		v := get(e)
		return v, !v.IsZero()
	}}
}

var registry = map[string]Field{}

func register(fields ...Field) {
	for _, f := range fields {
		registry[f.Name] = f
	}
}

func init() {
	register(
		stringField("code", func(e *models.Enquiry) string { return e.Code }),
		stringField("customer_name", func(e *models.Enquiry) string { return e.CustomerName }),
		stringField("phone", func(e *models.Enquiry) string { return e.Phone }),
		stringField("email", func(e *models.Enquiry) string { return e.Email }),
		stringField("company", func(e *models.Enquiry) string { return e.Company }),
		stringField("city", func(e *models.Enquiry) string { return e.City }),
		stringField("description", func(e *models.Enquiry) string { return e.Description }),
		stringField("type_of_lead", func(e *models.Enquiry) string { return string(e.TypeOfLead) }),
		stringField("enquiry_profile", func(e *models.Enquiry) string { return string(e.Profile) }),
		stringField("source_type", func(e *models.Enquiry) string { return e.SourceType }),
		stringField("channel_type", func(e *models.Enquiry) string { return e.ChannelType }),
		stringField("status", func(e *models.Enquiry) string { return string(e.Status) }),
		stringField("stage", func(e *models.Enquiry) string { return string(e.Stage) }),
		stringField("priority", func(e *models.Enquiry) string { return string(e.Priority) }),
		stringField("assigned_team", func(e *models.Enquiry) string { return e.AssignedTeam }),
		stringField("assigned_to", func(e *models.Enquiry) string {
			if e.AssignedTo == nil {
				return ""
			}
			return *e.AssignedTo
		}),
		Field{Name: "estimated_value", Kind: KindNumber, Get: func(e *models.Enquiry) (any, bool) {
			return e.EstimatedValue, true
		}},
		Field{Name: "is_duplicate", Kind: KindBool, Get: func(e *models.Enquiry) (any, bool) {
			return e.IsDuplicate, true
		}},
		timeField("created_at", func(e *models.Enquiry) time.Time { return e.CreatedAt }),
		timeField("response_due", func(e *models.Enquiry) time.Time { return e.ResponseDue }),
		timeField("resolution_due", func(e *models.Enquiry) time.Time { return e.ResolutionDue }),
	)
}

// Lookup returns the accessor registered for name.
func Lookup(name string) (Field, bool) {
	f, ok := registry[name]
	return f, ok
}

// Fields lists the names usable in rule conditions.
func Fields() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
