package conflict

import (
	"context"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

// Lister is satisfied by store.Store and store.Tx, so checks can run inside a booking transaction.
type Lister interface {
	ListActiveAppointments(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error)
}

type Result struct {
	HasConflict bool
	Conflicts   []model.Appointment
}

type Detector struct {
	appointments Lister
}

func NewDetector(appointments Lister) *Detector {
	return &Detector{appointments: appointments}
}

// Check tests [start, start+duration) against the provider's non-cancelled appointments on date.
// excludeID skips the appointment being rescheduled.
func (d *Detector) Check(ctx context.Context, providerID string, date model.Date, start model.Clock, duration time.Duration, excludeID string) (Result, error) {
	return CheckWith(ctx, d.appointments, providerID, date, start, duration, excludeID)
}

func CheckWith(ctx context.Context, l Lister, providerID string, date model.Date, start model.Clock, duration time.Duration, excludeID string) (Result, error) {
	existing, err := l.ListActiveAppointments(ctx, providerID, date)
	if err != nil {
		return Result{}, err
	}
	conflicts := Find(existing, start, start.Add(duration), excludeID)
	return Result{HasConflict: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// Find returns the active appointments overlapping [start, end).
func Find(existing []model.Appointment, start, end model.Clock, excludeID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range existing {
		if !a.Active() || (excludeID != "" && a.ID == excludeID) {
			continue
		}
		if a.OverlapsRange(start, end) {
			out = append(out, a)
		}
	}
	return out
}
