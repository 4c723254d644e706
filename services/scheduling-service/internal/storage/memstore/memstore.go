// Package memstore is an in-memory store.Store. Transactions are serialized and run against a
// copy of the data that replaces the committed state only when the callback succeeds, and the
// overlap guards of the Postgres schema are enforced on every write.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

type Store struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	data   *state
	links  map[[2]string]time.Time
	events []outbox.Event

	txHook  func(key string) error
	linkErr error
}

type state struct {
	windows      map[string]model.AvailabilityWindow
	appointments map[string]model.Appointment
	events       []outbox.Event
}

func New() *Store {
	return &Store{
		data: &state{
			windows:      map[string]model.AvailabilityWindow{},
			appointments: map[string]model.Appointment{},
		},
		links: map[[2]string]time.Time{},
	}
}

var _ store.Store = (*Store)(nil)

// SetTxHook installs a function called at the start of every transaction with its lock key
// ("" for InTx), before the transaction reads anything. A non-nil result aborts the
// transaction with that error. Writes made by the hook (Seed) are visible to the transaction.
func (s *Store) SetTxHook(hook func(key string) error) {
	s.mu.Lock()
	s.txHook = hook
	s.mu.Unlock()
}

// SetLinkError makes UpsertPatientProvider fail with err.
func (s *Store) SetLinkError(err error) {
	s.mu.Lock()
	s.linkErr = err
	s.mu.Unlock()
}

// Events returns the committed outbox events in append order.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *Store) HasLink(patientID, providerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[[2]string{patientID, providerID}]
	return ok
}

// Seed stores appointments directly, bypassing every check. Test helper.
func (s *Store) Seed(appts ...model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range appts {
		s.data.appointments[a.ID] = a
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.run(ctx, "", fn)
}

func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.run(ctx, key, fn)
}

func (s *Store) run(ctx context.Context, key string, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	hook := s.txHook
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return err
		}
	}

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.events = append(s.events, work.events...)
	work.events = nil
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getWindow(id)
}

func (s *Store) ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listWindows(providerID, nil), nil
}

func (s *Store) ListWindowsByWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listWindows(providerID, &weekday), nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getAppointment(id)
}

func (s *Store) ListActiveAppointments(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listActive(providerID, date), nil
}

func (s *Store) UpsertPatientProvider(ctx context.Context, patientID, providerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return s.linkErr
	}
	s.links[[2]string{patientID, providerID}] = at
	return nil
}

func (st *state) clone() *state {
	return &state{
		windows:      maps.Clone(st.windows),
		appointments: maps.Clone(st.appointments),
	}
}

func (st *state) getWindow(id string) (model.AvailabilityWindow, error) {
	w, ok := st.windows[id]
	if !ok {
		return model.AvailabilityWindow{}, store.ErrNotFound
	}
	return w, nil
}

func (st *state) listWindows(providerID string, weekday *time.Weekday) []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	for _, w := range st.windows {
		if w.ProviderID != providerID || (weekday != nil && w.Weekday != *weekday) {
			continue
		}
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b model.AvailabilityWindow) int {
		if a.Weekday != b.Weekday {
			return int(a.Weekday) - int(b.Weekday)
		}
		return int(a.Start) - int(b.Start)
	})
	return out
}

func (st *state) getAppointment(id string) (model.Appointment, error) {
	a, ok := st.appointments[id]
	if !ok {
		return model.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (st *state) listActive(providerID string, date model.Date) []model.Appointment {
	var out []model.Appointment
	for _, a := range st.appointments {
		if a.ProviderID == providerID && a.Date == date && a.Active() {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if a.Start != b.Start {
			return int(a.Start) - int(b.Start)
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
