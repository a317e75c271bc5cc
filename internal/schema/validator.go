// Package schema validates outgoing events against their struct tags.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// Validator checks events before they leave the service.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator reporting fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns nil or an error wrapping ErrInvalidEvent that lists every
// failing field.
func (v *Validator) Validate(event any) error {
	err := v.validate.Struct(event)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, e.Namespace()+": "+describe(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(messages, "; "))
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "gt", "gte":
		return "must be " + e.Tag() + " " + e.Param()
	default:
		return "is invalid"
	}
}
