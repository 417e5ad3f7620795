package conditions

import (
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnquiry() *models.Enquiry {
	return &models.Enquiry{
		CustomerName:   "Acme Industries",
		City:           "Pune",
		TypeOfLead:     models.LeadTypeB2B,
		Profile:        models.ProfileProject,
		SourceType:     "Website",
		Status:         models.StatusNew,
		Priority:       models.PriorityHigh,
		EstimatedValue: 250000,
		CreatedAt:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate(t *testing.T) {
	e := sampleEnquiry()

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals match", models.Condition{Field: "type_of_lead", Operator: models.OpEquals, Value: "B2B"}, true},
		{"equals is case sensitive", models.Condition{Field: "type_of_lead", Operator: models.OpEquals, Value: "b2b"}, false},
		{"not_equals", models.Condition{Field: "city", Operator: models.OpNotEquals, Value: "Delhi"}, true},
		{"equals absent field", models.Condition{Field: "company", Operator: models.OpEquals, Value: "X"}, false},
		{"not_equals absent field", models.Condition{Field: "company", Operator: models.OpNotEquals, Value: "X"}, true},
		{"contains", models.Condition{Field: "customer_name", Operator: models.OpContains, Value: "Industries"}, true},
		{"contains absent fails closed", models.Condition{Field: "description", Operator: models.OpContains, Value: "pump"}, false},
		{"not_contains absent succeeds", models.Condition{Field: "description", Operator: models.OpNotContains, Value: "pump"}, true},
		{"not_contains present", models.Condition{Field: "customer_name", Operator: models.OpNotContains, Value: "Acme"}, false},
		{"greater_than number", models.Condition{Field: "estimated_value", Operator: models.OpGreaterThan, Value: float64(100000)}, true},
		{"less_than number int value", models.Condition{Field: "estimated_value", Operator: models.OpLessThan, Value: 100000}, false},
		{"greater_than date", models.Condition{Field: "created_at", Operator: models.OpGreaterThan, Value: "2026-03-01"}, true},
		{"less_than date rfc3339", models.Condition{Field: "created_at", Operator: models.OpLessThan, Value: "2026-03-10T08:00:00Z"}, false},
		{"greater_than absent date", models.Condition{Field: "response_due", Operator: models.OpGreaterThan, Value: "2026-03-01"}, false},
		{"in", models.Condition{Field: "enquiry_profile", Operator: models.OpIn, Value: []any{"Product", "Project"}}, true},
		{"in miss", models.Condition{Field: "enquiry_profile", Operator: models.OpIn, Value: []any{"Job"}}, false},
		{"not_in", models.Condition{Field: "city", Operator: models.OpNotIn, Value: []any{"Delhi", "Mumbai"}}, true},
		{"in absent", models.Condition{Field: "company", Operator: models.OpIn, Value: []any{"X"}}, false},
		{"not_in absent", models.Condition{Field: "company", Operator: models.OpNotIn, Value: []any{"X"}}, true},
		{"bool equals", models.Condition{Field: "is_duplicate", Operator: models.OpEquals, Value: false}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(e, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := sampleEnquiry()

	tests := []struct {
		name    string
		cond    models.Condition
		wantErr error
	}{
		{"unknown field", models.Condition{Field: "budget", Operator: models.OpEquals, Value: "x"}, ErrUnknownField},
		{"unknown operator", models.Condition{Field: "city", Operator: "matches", Value: "x"}, ErrUnknownOperator},
		{"in with scalar", models.Condition{Field: "city", Operator: models.OpIn, Value: "Pune"}, ErrInvalidValue},
		{"contains on number", models.Condition{Field: "estimated_value", Operator: models.OpContains, Value: "1"}, ErrInvalidValue},
		{"greater_than on string", models.Condition{Field: "city", Operator: models.OpGreaterThan, Value: "A"}, ErrInvalidValue},
		{"number field with text", models.Condition{Field: "estimated_value", Operator: models.OpEquals, Value: "big"}, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(e, tt.cond)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMatchAll(t *testing.T) {
	e := sampleEnquiry()

	ok, err := MatchAll(e, nil)
	require.NoError(t, err)
	assert.True(t, ok, "empty condition list matches")

	ok, err = MatchAll(e, []models.Condition{
		{Field: "type_of_lead", Operator: models.OpEquals, Value: "B2B"},
		{Field: "city", Operator: models.OpIn, Value: []any{"Pune"}},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchAll(e, []models.Condition{
		{Field: "type_of_lead", Operator: models.OpEquals, Value: "B2B"},
		{Field: "city", Operator: models.OpEquals, Value: "Delhi"},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = MatchAll(e, []models.Condition{{Field: "nope", Operator: models.OpEquals, Value: "x"}})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, ValidateCondition(models.Condition{Field: "city", Operator: models.OpIn, Value: []any{"Pune"}}))
	assert.NoError(t, ValidateCondition(models.Condition{Field: "estimated_value", Operator: models.OpGreaterThan, Value: 10.0}))
	assert.ErrorIs(t, ValidateCondition(models.Condition{Field: "x", Operator: models.OpEquals}), ErrUnknownField)
	assert.ErrorIs(t, ValidateCondition(models.Condition{Field: "city", Operator: models.OpNotIn, Value: 3}), ErrInvalidValue)
	assert.ErrorIs(t, ValidateCondition(models.Condition{Field: "estimated_value", Operator: models.OpIn, Value: []any{"a"}}), ErrInvalidValue)
}

func TestFields(t *testing.T) {
	names := Fields()
	assert.Contains(t, names, "enquiry_profile")
	assert.Contains(t, names, "estimated_value")
	assert.IsIncreasing(t, names)
}
