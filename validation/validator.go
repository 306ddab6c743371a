package validation

import (
	"strings"

	"github.com/kbukum/asyncify/errors"
)

// FieldError is one failed rule, keyed by the config path it applies to.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string { return e.Field + ": " + e.Message }

// Validator accumulates field errors for rules struct tags cannot express,
// such as "endpoint is required when exporting is enabled".
type Validator struct {
	errs []FieldError
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// AddError records a failure on field.
func (v *Validator) AddError(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

// Check records message against field unless ok holds. It returns v so rules
// can be chained.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}

func (v *Validator) HasErrors() bool      { return len(v.errs) > 0 }
func (v *Validator) Errors() []FieldError { return v.errs }

// Validate folds the recorded failures into one INVALID_INPUT error whose
// "fields" detail lists them individually. It returns nil when nothing failed.
func (v *Validator) Validate() error {
	if len(v.errs) == 0 {
		return nil
	}
	var sb strings.Builder
	for i, e := range v.errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.String())
	}
	return errors.Validation(sb.String()).WithDetail("fields", v.errs)
}
