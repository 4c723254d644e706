package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

// WindowService manages a provider's recurring weekly windows and keeps them disjoint per
// (provider, weekday).
type WindowService struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

type WindowOptions struct {
	Now    func() time.Time
	Logger *slog.Logger
}

func NewWindowService(st store.Store, opts WindowOptions) *WindowService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WindowService{store: st, now: opts.Now, logger: opts.Logger}
}

func (s *WindowService) Create(ctx context.Context, providerID string, weekday time.Weekday, start, end model.Clock) (model.AvailabilityWindow, error) {
	if providerID == "" {
		return model.AvailabilityWindow{}, schederr.Validation("provider_id", "is required")
	}
	if err := validateRange(weekday, start, end); err != nil {
		return model.AvailabilityWindow{}, err
	}

	now := s.now().UTC()
	w := model.AvailabilityWindow{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Weekday:    weekday,
		Start:      start,
		End:        end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var saved model.AvailabilityWindow
	err := s.store.WithLock(ctx, store.WindowLockKey(providerID, weekday), func(ctx context.Context, tx store.Tx) error {
		if err := checkWindowOverlap(ctx, tx, w); err != nil {
			return err
		}
		var err error
		saved, err = tx.InsertWindow(ctx, w)
		return err
	})
	if err != nil {
		return model.AvailabilityWindow{}, s.mapWriteErr(ctx, err, w)
	}
	s.logger.InfoContext(ctx, "availability window created",
		"window_id", saved.ID, "provider_id", providerID, "weekday", weekday.String(),
		"start", start.String(), "end", end.String())
	return saved, nil
}

func (s *WindowService) Update(ctx context.Context, id string, weekday time.Weekday, start, end model.Clock) (model.AvailabilityWindow, error) {
	if err := validateRange(weekday, start, end); err != nil {
		return model.AvailabilityWindow{}, err
	}
	cur, err := s.store.GetWindow(ctx, id)
	if err != nil {
		return model.AvailabilityWindow{}, notFound(err, "availability window", id)
	}

	next := cur
	next.Weekday, next.Start, next.End = weekday, start, end
	next.UpdatedAt = s.now().UTC()

	var saved model.AvailabilityWindow
	err = s.store.WithLock(ctx, store.WindowLockKey(cur.ProviderID, weekday), func(ctx context.Context, tx store.Tx) error {
		if err := checkWindowOverlap(ctx, tx, next); err != nil {
			return err
		}
		var err error
		saved, err = tx.UpdateWindow(ctx, next)
		return err
	})
	if err != nil {
		return model.AvailabilityWindow{}, s.mapWriteErr(ctx, err, next)
	}
	return saved, nil
}

// Delete removes a window. Existing appointments inside it are left untouched.
func (s *WindowService) Delete(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteWindow(ctx, id)
	})
	if err != nil {
		return notFound(err, "availability window", id)
	}
	s.logger.InfoContext(ctx, "availability window deleted", "window_id", id)
	return nil
}

func (s *WindowService) ListByProvider(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	return s.store.ListWindows(ctx, providerID)
}

func (s *WindowService) ListByProviderAndWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	if !model.ValidWeekday(weekday) {
		return nil, schederr.Validation("weekday", "must be between 0 (Sunday) and 6 (Saturday)")
	}
	return s.store.ListWindowsByWeekday(ctx, providerID, weekday)
}

func validateRange(weekday time.Weekday, start, end model.Clock) error {
	if !model.ValidWeekday(weekday) {
		return schederr.Validation("weekday", "must be between 0 (Sunday) and 6 (Saturday)")
	}
	if !start.Valid() || !end.Valid() {
		return schederr.Validation("start", "times must be within 00:00 and 24:00")
	}
	if start >= end {
		return schederr.Validation("end", "start %s must be before end %s", start, end)
	}
	return nil
}

func checkWindowOverlap(ctx context.Context, tx store.Tx, w model.AvailabilityWindow) error {
	others, err := tx.ListWindowsByWeekday(ctx, w.ProviderID, w.Weekday)
	if err != nil {
		return err
	}
	if clashes := overlappingWindows(others, w); len(clashes) > 0 {
		return &schederr.ConflictError{Windows: clashes}
	}
	return nil
}

func overlappingWindows(others []model.AvailabilityWindow, w model.AvailabilityWindow) []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	for _, o := range others {
		if o.ID != w.ID && o.Overlaps(w) {
			out = append(out, o)
		}
	}
	return out
}

// mapWriteErr turns a constraint rejection into the same ConflictError the pre-check produces.
func (s *WindowService) mapWriteErr(ctx context.Context, err error, w model.AvailabilityWindow) error {
	switch {
	case errors.Is(err, store.ErrOverlap), errors.Is(err, store.ErrSerialization):
		others, listErr := s.store.ListWindowsByWeekday(ctx, w.ProviderID, w.Weekday)
		if listErr != nil {
			return fmt.Errorf("reload windows after overlap: %w", listErr)
		}
		return &schederr.ConflictError{Windows: overlappingWindows(others, w)}
	case errors.Is(err, store.ErrNotFound):
		return schederr.NotFound("availability window", w.ID)
	default:
		return err
	}
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return schederr.NotFound(entity, id)
	}
	return err
}
