// Package schederr holds the typed outcomes the scheduling core returns to callers.
// Anything else escaping a component is an infrastructure failure.
package schederr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError carries the records that block the write.
type ConflictError struct {
	Windows      []model.AvailabilityWindow
	Appointments []model.Appointment
}

func (e *ConflictError) Error() string {
	switch {
	case len(e.Windows) > 0:
		ranges := make([]string, 0, len(e.Windows))
		for _, w := range e.Windows {
			ranges = append(ranges, w.Start.String()+"-"+w.End.String())
		}
		return "overlaps existing availability window(s) " + strings.Join(ranges, ", ")
	case len(e.Appointments) > 0:
		return fmt.Sprintf("overlaps %d existing appointment(s)", len(e.Appointments))
	default:
		return "conflicting write"
	}
}

// StateError is an illegal lifecycle move. Attempted is empty for non-status actions such as
// rescheduling.
type StateError struct {
	Current   model.Status
	Attempted model.Status
	Action    string
}

func (e *StateError) Error() string {
	if e.Attempted != "" {
		return fmt.Sprintf("cannot move appointment from %s to %s", e.Current, e.Attempted)
	}
	return fmt.Sprintf("cannot %s appointment in status %s", e.Action, e.Current)
}

const (
	KindValidation = "validation_error"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindState      = "state_error"
	KindInternal   = "internal"
)

// Kind classifies err for adapters that map outcomes to transport codes.
func Kind(err error) string {
	var (
		v *ValidationError
		n *NotFoundError
		c *ConflictError
		s *StateError
	)
	switch {
	case errors.As(err, &v):
		return KindValidation
	case errors.As(err, &n):
		return KindNotFound
	case errors.As(err, &c):
		return KindConflict
	case errors.As(err, &s):
		return KindState
	default:
		return KindInternal
	}
}
