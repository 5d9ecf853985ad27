// Package validation wraps a shared validator and turns field failures into
// apperr validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/examportal/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s. The returned error is an *apperr.Error whose message is
// the first failing field and whose details map every failing field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Validation(err.Error())
	}
	fields := make(map[string]any, len(ves))
	for _, fe := range ves {
		if _, ok := fields[fe.Field()]; !ok {
			fields[fe.Field()] = formatFieldError(fe)
		}
	}
	return apperr.Validation(formatFieldError(ves[0])).WithDetails(map[string]any{"fields": fields})
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "email":
		return e.Field() + " must be a valid email address"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "gtefield":
		return e.Field() + " must not be before " + e.Param()
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}
