// Package store defines the persistence contract of the scheduling core. Implementations live in
// internal/storage (Postgres) and internal/storage/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrOverlap is returned when the database-level exclusion guard rejects a write.
	ErrOverlap = errors.New("overlapping record")
	// ErrSerialization marks a transaction aborted by a serialization failure or deadlock.
	ErrSerialization = errors.New("serialization failure")
)

type WindowReader interface {
	GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	ListWindowsByWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
}

type WindowWriter interface {
	InsertWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	UpdateWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id string) error
}

type AppointmentReader interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// ListActiveAppointments returns the non-cancelled appointments of a provider on a date,
	// ordered by start.
	ListActiveAppointments(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error)
}

type AppointmentWriter interface {
	InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	PatchAppointment(ctx context.Context, id string, patch model.AppointmentPatch, at time.Time) (model.Appointment, error)
	// TransitionStatus sets status to `to` only if the current status is in from. ok is false
	// when no row matched.
	TransitionStatus(ctx context.Context, id string, from []model.Status, to model.Status, reason *string, at time.Time) (appt model.Appointment, ok bool, err error)
	// SweepStart moves confirmed appointments of today whose range contains now to in_progress.
	SweepStart(ctx context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error)
	// SweepFinish moves in_progress appointments whose range ended at or before today+now to finished.
	SweepFinish(ctx context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error)
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	WindowReader
	WindowWriter
	AppointmentReader
	AppointmentWriter
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	WindowReader
	AppointmentReader

	// InTx runs fn in a transaction; it commits when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// WithLock is InTx plus an exclusive lock on key held until commit or rollback.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx Tx) error) error

	// UpsertPatientProvider records that a patient has booked with a provider.
	UpsertPatientProvider(ctx context.Context, patientID, providerID string, at time.Time) error
}

func AppointmentLockKey(providerID string, date model.Date) string {
	return "appointments:" + providerID + ":" + date.String()
}

func WindowLockKey(providerID string, weekday time.Weekday) string {
	return "windows:" + providerID + ":" + weekday.String()
}

const SweepLockKey = "sweep"
