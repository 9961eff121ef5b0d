package validation

import (
	"fmt"
	"strings"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// ValidationError is a problem with one field of a device entry or setting.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
}

// Is matches domain.ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == domain.ErrInvalidInput }

// ValidationErrors collects every problem found in one pass, so a bad devices file is
// reported in full.
type ValidationErrors []*ValidationError

// Error lists every problem, separated by semicolons.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Is matches domain.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return len(e) > 0 && target == domain.ErrInvalidInput
}

// Add records a problem.
func (e *ValidationErrors) Add(field, value, message string) {
	*e = append(*e, &ValidationError{Field: field, Value: value, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
