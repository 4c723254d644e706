// Package lifecycle drives appointments through planned, confirmed, in_progress and finished,
// or into cancelled. Every move is a conditional update, so a caller that loses a race against
// the sweeper or another caller gets the current record back instead of an error.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	store   store.Store
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Options struct {
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewService(st store.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:   st,
		now:     opts.Now,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("clinicsched/lifecycle"),
	}
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Appointment{}, schederr.NotFound("appointment", id)
	}
	return appt, err
}

func (s *Service) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusConfirmed, nil)
}

// Start succeeds from planned or confirmed.
func (s *Service) Start(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusInProgress, nil)
}

// Finish succeeds only from in_progress.
func (s *Service) Finish(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusFinished, nil)
}

// Cancel is a no-op on an already cancelled appointment and a StateError on a finished one.
// A non-empty reason is stored on the record.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	var r *string
	if reason != "" {
		r = &reason
	}
	return s.transition(ctx, id, model.StatusCancelled, r)
}

func (s *Service) transition(ctx context.Context, id string, to model.Status, reason *string) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+string(to), trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.to_status", string(to)),
	))
	defer span.End()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if to == model.StatusCancelled && cur.Status == model.StatusCancelled {
		return cur, nil
	}
	if !model.CanTransition(cur.Status, to) {
		return model.Appointment{}, &schederr.StateError{Current: cur.Status, Attempted: to}
	}

	var (
		out     model.Appointment
		changed bool
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		at := s.now().UTC()
		appt, ok, err := tx.TransitionStatus(ctx, id, model.AllowedFrom(to), to, reason, at)
		if err != nil || !ok {
			return err
		}
		evt, err := outbox.NewAppointmentEvent(ctx, outbox.TransitionEventType(to), appt, at)
		if err != nil {
			return fmt.Errorf("build %s event: %w", to, err)
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("append %s event: %w", to, err)
		}
		out, changed = appt, true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}

	if !changed {
		// Someone else moved the appointment between our read and the conditional update.
		latest, err := s.Get(ctx, id)
		if err != nil {
			return model.Appointment{}, err
		}
		s.logger.InfoContext(ctx, "status transition was a no-op",
			"appointment_id", id, "attempted", string(to), "current", string(latest.Status))
		return latest, nil
	}

	s.metrics.ObserveTransition(string(to), "manual", 1)
	s.logger.InfoContext(ctx, "appointment status changed",
		"appointment_id", id, "from", string(cur.Status), "to", string(to))
	return out, nil
}
