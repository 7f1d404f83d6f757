// Package validation wraps go-playground/validator with the service's custom
// rules and maps failures to VALIDATION_FAILED domain errors.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Validator validates input structs.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the ticket rules registered.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("ticket_priority", validatePriority)
	_ = v.RegisterValidation("ticket_status", validateStatus)
	return &Validator{validate: v}
}

// Struct validates s. Field failures become a validation error whose details
// map each field to the rule it broke.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid input", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("invalid input", details)
}

func validatePriority(fl validator.FieldLevel) bool {
	switch domain.TicketPriority(fl.Field().String()) {
	case "", domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
		return true
	}
	return false
}

func validateStatus(fl validator.FieldLevel) bool {
	return domain.TicketStatus(fl.Field().String()).Valid()
}
