// Package booking creates and reschedules appointments without double-booking a provider.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/conflict"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/directory"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/lifecycle"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxDuration = 24 * time.Hour

type BookRequest struct {
	PatientID       string
	ProviderID      string
	Date            model.Date
	Start           model.Clock
	DurationMinutes int // 0 means model.DefaultDurationMinutes
	Motif           string
	Address         string
}

type Coordinator struct {
	store     store.Store
	directory directory.Checker
	lifecycle *lifecycle.Service
	now       func() time.Time
	loc       *time.Location
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Options struct {
	Now func() time.Time
	// Location decides what "today" is for the date rule.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func NewCoordinator(st store.Store, dir directory.Checker, lc *lifecycle.Service, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:     st,
		directory: dir,
		lifecycle: lc,
		now:       opts.Now,
		loc:       opts.Location,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("clinicsched/booking"),
	}
}

// Book validates and stores a new planned appointment. The checks run in a fixed order and
// each failure has its own error type: date rule and input shape (ValidationError), directory
// (NotFoundError), availability (ValidationError), overlap (ConflictError).
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (appt model.Appointment, err error) {
	ctx, span := c.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.String("appointment.date", req.Date.String()),
	))
	defer func() { c.finish(span, "book", err) }()

	if req.DurationMinutes == 0 {
		req.DurationMinutes = model.DefaultDurationMinutes
	}
	if err := validateShape(req.PatientID, req.ProviderID, req.Date, req.Start, req.DurationMinutes); err != nil {
		return model.Appointment{}, err
	}
	if err := c.checkDate(req.Date); err != nil {
		return model.Appointment{}, err
	}
	if err := c.checkPatient(ctx, req.PatientID); err != nil {
		return model.Appointment{}, err
	}
	if err := c.checkProvider(ctx, req.ProviderID); err != nil {
		return model.Appointment{}, err
	}

	now := c.now().UTC()
	candidate := model.Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Date:            req.Date,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusPlanned,
		Motif:           req.Motif,
		Address:         req.Address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = c.writeLocked(ctx, candidate, func(ctx context.Context, tx store.Tx) error {
		if err := checkSlot(ctx, tx, candidate, ""); err != nil {
			return err
		}
		saved, err := tx.InsertAppointment(ctx, candidate)
		if err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, outbox.AppointmentBooked, saved, now); err != nil {
			return err
		}
		appt = saved
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	// The link is a convenience for patient and provider listings; losing it never fails a booking.
	if err := c.store.UpsertPatientProvider(ctx, appt.PatientID, appt.ProviderID, now); err != nil {
		c.metrics.ObserveLinkFailure()
		c.logger.WarnContext(ctx, "patient-provider link failed",
			"err", err, "appointment_id", appt.ID, "patient_id", appt.PatientID, "provider_id", appt.ProviderID)
	}

	c.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID, "provider_id", appt.ProviderID,
		"date", appt.Date.String(), "start", appt.Start.String(), "duration_minutes", appt.DurationMinutes)
	return appt, nil
}

// Update applies patch. When provider, date, start or duration change, the merged appointment is
// re-validated (date rule only for a new date, directory only for a new provider) and
// re-checked for availability and overlaps excluding itself. Other fields are written as is.
func (c *Coordinator) Update(ctx context.Context, id string, patch model.AppointmentPatch) (appt model.Appointment, err error) {
	ctx, span := c.tracer.Start(ctx, "booking.Update", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { c.finish(span, "update", err) }()

	cur, err := c.lifecycle.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if patch.Empty() {
		return cur, nil
	}

	now := c.now().UTC()
	if !patch.ChangesTiming(cur) {
		err = c.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			saved, err := tx.PatchAppointment(ctx, id, patch, now)
			if err != nil {
				return err
			}
			appt = saved
			return appendEvent(ctx, tx, outbox.AppointmentUpdated, saved, now)
		})
		if errors.Is(err, store.ErrNotFound) {
			return model.Appointment{}, schederr.NotFound("appointment", id)
		}
		return appt, err
	}

	if cur.Status.Terminal() {
		return model.Appointment{}, &schederr.StateError{Current: cur.Status, Action: "reschedule"}
	}
	merged := patch.Apply(cur)
	if err := validateShape(merged.PatientID, merged.ProviderID, merged.Date, merged.Start, merged.DurationMinutes); err != nil {
		return model.Appointment{}, err
	}
	if merged.Date != cur.Date {
		if err := c.checkDate(merged.Date); err != nil {
			return model.Appointment{}, err
		}
	}
	if merged.ProviderID != cur.ProviderID {
		if err := c.checkProvider(ctx, merged.ProviderID); err != nil {
			return model.Appointment{}, err
		}
	}

	err = c.writeLocked(ctx, merged, func(ctx context.Context, tx store.Tx) error {
		latest, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if latest.Status.Terminal() {
			return &schederr.StateError{Current: latest.Status, Action: "reschedule"}
		}
		if err := checkSlot(ctx, tx, merged, id); err != nil {
			return err
		}
		saved, err := tx.PatchAppointment(ctx, id, patch, now)
		if err != nil {
			return err
		}
		appt = saved
		return appendEvent(ctx, tx, outbox.AppointmentUpdated, saved, now)
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Appointment{}, schederr.NotFound("appointment", id)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.InfoContext(ctx, "appointment rescheduled",
		"appointment_id", id, "provider_id", appt.ProviderID,
		"date", appt.Date.String(), "start", appt.Start.String(), "duration_minutes", appt.DurationMinutes)
	return appt, nil
}

// Cancel moves the appointment to cancelled; cancelling twice returns the record unchanged.
func (c *Coordinator) Cancel(ctx context.Context, id, reason string) (appt model.Appointment, err error) {
	ctx, span := c.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { c.finish(span, "cancel", err) }()
	return c.lifecycle.Cancel(ctx, id, reason)
}

func (c *Coordinator) finish(span trace.Span, operation string, err error) {
	kind := schederr.Kind(err)
	if err == nil {
		kind = "ok"
	} else if kind == schederr.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("booking.outcome", kind))
	span.End()
	c.metrics.ObserveBooking(operation, kind)
}

func validateShape(patientID, providerID string, date model.Date, start model.Clock, durationMinutes int) error {
	switch {
	case patientID == "":
		return schederr.Validation("patient_id", "is required")
	case providerID == "":
		return schederr.Validation("provider_id", "is required")
	case date.IsZero():
		return schederr.Validation("date", "is required")
	case !start.Valid() || start == model.EndOfDay:
		return schederr.Validation("start", "must be a time of day between 00:00 and 23:59")
	case durationMinutes <= 0 || time.Duration(durationMinutes)*time.Minute > maxDuration:
		return schederr.Validation("duration_minutes", "must be between 1 and %d", int(maxDuration/time.Minute))
	}
	return nil
}

// checkDate rejects today and any past date, as seen from the schedule's timezone.
func (c *Coordinator) checkDate(date model.Date) error {
	today, _ := model.WallClock(c.now(), c.loc)
	if !date.After(today) {
		return schederr.Validation("date", "appointments must be booked for a date after today (%s)", today)
	}
	return nil
}

func (c *Coordinator) checkPatient(ctx context.Context, id string) error {
	ok, err := c.directory.PatientExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return schederr.NotFound("patient", id)
	}
	return nil
}

func (c *Coordinator) checkProvider(ctx context.Context, id string) error {
	ok, err := c.directory.ProviderExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check provider: %w", err)
	}
	if !ok {
		return schederr.NotFound("provider", id)
	}
	return nil
}

// checkSlot verifies that a window covers the appointment and that nothing overlaps it.
func checkSlot(ctx context.Context, tx store.Tx, a model.Appointment, excludeID string) error {
	weekday := a.Date.Weekday()
	windows, err := tx.ListWindowsByWeekday(ctx, a.ProviderID, weekday)
	if err != nil {
		return err
	}
	end := a.End()
	covered := false
	for _, w := range windows {
		if w.Covers(a.Start, end) {
			covered = true
			break
		}
	}
	if !covered {
		return schederr.Validation("start", "provider is not available on %s from %s to %s", weekday, a.Start, end)
	}

	res, err := conflict.CheckWith(ctx, tx, a.ProviderID, a.Date, a.Start, a.Duration(), excludeID)
	if err != nil {
		return err
	}
	if res.HasConflict {
		return &schederr.ConflictError{Appointments: res.Conflicts}
	}
	return nil
}

func appendEvent(ctx context.Context, tx store.Tx, eventType string, appt model.Appointment, at time.Time) error {
	evt, err := outbox.NewAppointmentEvent(ctx, eventType, appt, at)
	if err != nil {
		return fmt.Errorf("build %s: %w", eventType, err)
	}
	return tx.AppendEvent(ctx, evt)
}
