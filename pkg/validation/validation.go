package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Validator wraps go-playground/validator with the enum tags used by request models.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with custom enum tags registered
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	enum := func(check func(string) bool) validator.Func {
		return func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || check(s)
		}
	}
	_ = v.RegisterValidation("leadtype", enum(func(s string) bool { return models.LeadType(s).IsValid() }))
	_ = v.RegisterValidation("profile", enum(func(s string) bool { return models.Profile(s).IsValid() }))
	_ = v.RegisterValidation("status", enum(func(s string) bool { return models.Status(s).IsValid() }))
	_ = v.RegisterValidation("priority", enum(func(s string) bool { return models.Priority(s).IsValid() }))
	_ = v.RegisterValidation("ruletype", enum(func(s string) bool { return models.RuleType(s).IsValid() }))
	_ = v.RegisterValidation("operator", enum(func(s string) bool { return models.Operator(s).IsValid() }))
	_ = v.RegisterValidation("role", enum(func(s string) bool { return models.Role(s).IsValid() }))

	return &Validator{validate: v}
}

// Struct validates s and returns a validation DomainError listing every violation.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewBadRequestError(err.Error())
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describe(fe))
	}
	return domain.NewValidationError("request validation failed", details...)
}

// Validate implements echo.Validator
func (v *Validator) Validate(i any) error {
	return v.Struct(i)
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "leadtype", "profile", "status", "priority", "ruletype", "operator", "role":
		return fmt.Sprintf("%s has invalid %s value %q", field, fe.Tag(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
