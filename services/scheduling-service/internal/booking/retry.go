package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/conflict"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

// writeLocked runs fn under the (provider, date) lock of a. A serialization failure is retried
// once; a second one, or a write rejected by the storage overlap guard, becomes a ConflictError
// listing what the slot overlaps now. When nothing overlaps on re-read the failure is returned
// as an infrastructure error.
func (c *Coordinator) writeLocked(ctx context.Context, a model.Appointment, fn func(ctx context.Context, tx store.Tx) error) error {
	key := store.AppointmentLockKey(a.ProviderID, a.Date)

	err := c.store.WithLock(ctx, key, fn)
	if errors.Is(err, store.ErrSerialization) {
		c.metrics.ObserveRetry()
		c.logger.WarnContext(ctx, "booking transaction retried", "lock_key", key, "err", err)
		err = c.store.WithLock(ctx, key, fn)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrSerialization), errors.Is(err, store.ErrOverlap):
		return c.reloadConflict(ctx, a, err)
	case schederr.Kind(err) != schederr.KindInternal:
		return err
	default:
		return fmt.Errorf("write appointment: %w", err)
	}
}

func (c *Coordinator) reloadConflict(ctx context.Context, a model.Appointment, cause error) error {
	res, err := conflict.CheckWith(ctx, c.store, a.ProviderID, a.Date, a.Start, a.Duration(), a.ID)
	if err != nil {
		return fmt.Errorf("reload conflicts after %v: %w", cause, err)
	}
	if len(res.Conflicts) == 0 {
		return fmt.Errorf("write appointment: %w", cause)
	}
	c.logger.InfoContext(ctx, "booking rejected by concurrent write",
		"provider_id", a.ProviderID, "date", a.Date.String(), "cause", cause.Error(), "conflicts", len(res.Conflicts))
	return &schederr.ConflictError{Appointments: res.Conflicts}
}
