// Package validation checks request payloads against their constraint
// tags and reports violations keyed by wire field name.
package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Error messages name the JSON fields callers actually sent, not
	// the Go struct fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationError carries field-level messages for a rejected payload.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	messages := make([]string, 0, len(v.Errors))
	for field, msg := range v.Errors {
		messages = append(messages, field+": "+msg)
	}
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}

// HasErrors returns true if there are any validation errors.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// ValidateStruct checks a payload against its constraint tags. It
// returns nil or a *ValidationError describing every violated field.
func ValidateStruct(payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationError(verrs)
	}
	return err
}

// NewValidationError converts validator output to the wire shape.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		fields[fieldKey(err)] = errorMessage(err)
	}
	return &ValidationError{Errors: fields}
}

// fieldKey is the namespace below the root struct, so batch violations
// come out as "transactions[3].email" rather than a bare leaf name.
func fieldKey(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return err.Field()
}

func errorMessage(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "len":
		return field + " must be exactly " + param + " characters long"
	case "min":
		return field + " must be at least " + param + " in length"
	case "max":
		return field + " must be at most " + param + " in length"
	case "gt":
		return field + " must be greater than " + param
	case "gte":
		return field + " must be greater than or equal to " + param
	case "lt":
		return field + " must be less than " + param
	case "lte":
		return field + " must be less than or equal to " + param
	case "oneof":
		return field + " must be one of: " + param
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	default:
		return field + " is invalid"
	}
}
