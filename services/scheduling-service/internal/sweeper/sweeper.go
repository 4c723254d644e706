// Package sweeper advances appointment status with the passage of time: confirmed appointments
// whose range contains now start, and started appointments whose range is over finish.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultInterval = time.Minute

// ErrBusy is returned by Tick when another tick of the same Sweeper is still running.
var ErrBusy = errors.New("sweep already running")

type Summary struct {
	Started  []model.Appointment
	Finished []model.Appointment
}

type Options struct {
	Interval time.Duration
	Now      func() time.Time
	// Location is the timezone appointment dates and times are expressed in.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type Sweeper struct {
	store    store.Store
	interval time.Duration
	now      func() time.Time
	loc      *time.Location
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st store.Store, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sweeper{
		store:    st,
		interval: opts.Interval,
		now:      opts.Now,
		loc:      opts.Location,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Tick runs one sweep. Both moves happen in one transaction under the sweep lock, so replicas
// never double-apply them and a second tick over the same state changes nothing.
func (s *Sweeper) Tick(ctx context.Context) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.ObserveSweep("skipped", 0)
		return Summary{}, ErrBusy
	}
	defer s.running.Store(false)

	ctx, span := otel.Tracer("clinicsched/sweeper").Start(ctx, "sweeper.Tick")
	defer span.End()

	began := time.Now()
	now := s.now()
	today, clock := model.WallClock(now, s.loc)
	at := now.UTC()

	var sum Summary
	err := s.store.WithLock(ctx, store.SweepLockKey, func(ctx context.Context, tx store.Tx) error {
		sum = Summary{}
		started, err := tx.SweepStart(ctx, today, clock, at)
		if err != nil {
			return fmt.Errorf("start due appointments: %w", err)
		}
		finished, err := tx.SweepFinish(ctx, today, clock, at)
		if err != nil {
			return fmt.Errorf("finish elapsed appointments: %w", err)
		}
		for _, a := range started {
			if err := appendEvent(ctx, tx, outbox.AppointmentStarted, a, at); err != nil {
				return err
			}
		}
		for _, a := range finished {
			if err := appendEvent(ctx, tx, outbox.AppointmentFinished, a, at); err != nil {
				return err
			}
		}
		sum.Started, sum.Finished = started, finished
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveSweep("error", time.Since(began))
		return Summary{}, err
	}

	span.SetAttributes(
		attribute.Int("sweep.started", len(sum.Started)),
		attribute.Int("sweep.finished", len(sum.Finished)),
	)
	s.metrics.ObserveTransition(string(model.StatusInProgress), "sweep", len(sum.Started))
	s.metrics.ObserveTransition(string(model.StatusFinished), "sweep", len(sum.Finished))
	s.metrics.ObserveSweep("ok", time.Since(began))
	if len(sum.Started)+len(sum.Finished) > 0 {
		s.logger.InfoContext(ctx, "sweep applied",
			"date", today.String(), "clock", clock.String(),
			"started", len(sum.Started), "finished", len(sum.Finished))
	}
	return sum, nil
}

func appendEvent(ctx context.Context, tx store.Tx, eventType string, a model.Appointment, at time.Time) error {
	evt, err := outbox.NewSweepEvent(ctx, eventType, a, at)
	if err != nil {
		return fmt.Errorf("build %s: %w", eventType, err)
	}
	return tx.AppendEvent(ctx, evt)
}

// Run ticks immediately and then every interval until ctx is done. Tick failures are logged
// and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrBusy) && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start launches Run in the background. Calling Start on a started Sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	s.logger.Info("sweeper started", "interval", s.interval.String())
}

// Stop cancels the background loop and waits for the current tick to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sweeper stopped")
}
