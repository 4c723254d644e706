package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

type tx struct {
	st *state
}

func (t *tx) GetWindow(_ context.Context, id string) (model.AvailabilityWindow, error) {
	return t.st.getWindow(id)
}

func (t *tx) ListWindows(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	return t.st.listWindows(providerID, nil), nil
}

func (t *tx) ListWindowsByWeekday(_ context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return t.st.listWindows(providerID, &weekday), nil
}

func (t *tx) InsertWindow(_ context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if t.windowOverlaps(w) {
		return model.AvailabilityWindow{}, store.ErrOverlap
	}
	t.st.windows[w.ID] = w
	return w, nil
}

func (t *tx) UpdateWindow(_ context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	cur, ok := t.st.windows[w.ID]
	if !ok {
		return model.AvailabilityWindow{}, store.ErrNotFound
	}
	w.ProviderID = cur.ProviderID
	w.CreatedAt = cur.CreatedAt
	if t.windowOverlaps(w) {
		return model.AvailabilityWindow{}, store.ErrOverlap
	}
	t.st.windows[w.ID] = w
	return w, nil
}

func (t *tx) DeleteWindow(_ context.Context, id string) error {
	if _, ok := t.st.windows[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.windows, id)
	return nil
}

func (t *tx) windowOverlaps(w model.AvailabilityWindow) bool {
	for _, o := range t.st.windows {
		if o.ID != w.ID && o.ProviderID == w.ProviderID && o.Overlaps(w) {
			return true
		}
	}
	return false
}

func (t *tx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return t.st.getAppointment(id)
}

func (t *tx) ListActiveAppointments(_ context.Context, providerID string, date model.Date) ([]model.Appointment, error) {
	return t.st.listActive(providerID, date), nil
}

func (t *tx) InsertAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	if t.appointmentOverlaps(a) {
		return model.Appointment{}, store.ErrOverlap
	}
	t.st.appointments[a.ID] = a
	return a, nil
}

func (t *tx) PatchAppointment(_ context.Context, id string, patch model.AppointmentPatch, at time.Time) (model.Appointment, error) {
	cur, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, store.ErrNotFound
	}
	next := patch.Apply(cur)
	next.UpdatedAt = at
	if t.appointmentOverlaps(next) {
		return model.Appointment{}, store.ErrOverlap
	}
	t.st.appointments[id] = next
	return next, nil
}

func (t *tx) appointmentOverlaps(a model.Appointment) bool {
	if !a.Active() {
		return false
	}
	for _, o := range t.st.appointments {
		if o.ID != a.ID && o.Active() && o.ProviderID == a.ProviderID && o.Date == a.Date && o.OverlapsRange(a.Start, a.End()) {
			return true
		}
	}
	return false
}

func (t *tx) TransitionStatus(_ context.Context, id string, from []model.Status, to model.Status, reason *string, at time.Time) (model.Appointment, bool, error) {
	cur, ok := t.st.appointments[id]
	if !ok || !slices.Contains(from, cur.Status) {
		return model.Appointment{}, false, nil
	}
	cur.Status = to
	cur.UpdatedAt = at
	if reason != nil {
		cur.CancellationReason = *reason
	}
	t.st.appointments[id] = cur
	return cur, true, nil
}

func (t *tx) SweepStart(_ context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error) {
	return t.sweep(model.StatusConfirmed, model.StatusInProgress, at, func(a model.Appointment) bool {
		return a.Date == today && a.Start <= now && now < a.End()
	}), nil
}

func (t *tx) SweepFinish(_ context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error) {
	current := instant(today, now)
	return t.sweep(model.StatusInProgress, model.StatusFinished, at, func(a model.Appointment) bool {
		return instant(a.Date, a.End()) <= current
	}), nil
}

func (t *tx) sweep(from, to model.Status, at time.Time, match func(model.Appointment) bool) []model.Appointment {
	var moved []model.Appointment
	for id, a := range t.st.appointments {
		if a.Status != from || !match(a) {
			continue
		}
		a.Status = to
		a.UpdatedAt = at
		t.st.appointments[id] = a
		moved = append(moved, a)
	}
	slices.SortFunc(moved, func(a, b model.Appointment) int { return compareStrings(a.ID, b.ID) })
	return moved
}

// instant is seconds since the epoch of a wall-clock moment, so ranges crossing midnight compare
// correctly.
func instant(d model.Date, c model.Clock) int64 {
	return int64(d.Days())*86400 + int64(c)
}

func (t *tx) AppendEvent(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}
