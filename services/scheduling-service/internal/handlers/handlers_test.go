package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rdvmed/clinicsched/libs/httpx"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/availability"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/booking"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/directory"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/lifecycle"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/storage/memstore"
)

var fixedNow = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	now := func() time.Time { return fixedNow }
	lc := lifecycle.NewService(st, lifecycle.Options{Now: now})
	dir := directory.NewStatic().AddPatients("pat-1", "pat-2").AddProviders("dr-1")
	h := NewRouter(Config{
		Slots:     availability.NewSlotGenerator(st, availability.SlotOptions{}),
		Windows:   availability.NewWindowService(st, availability.WindowOptions{Now: now}),
		Booking:   booking.NewCoordinator(st, dir, lc, booking.Options{Now: now, Location: time.UTC}),
		Lifecycle: lc,
	})
	return h, st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

type dayBody struct {
	Available bool   `json:"available"`
	Weekday   string `json:"weekday"`
	Slots     []struct {
		Start    string `json:"start"`
		End      string `json:"end"`
		Duration int    `json:"duration"`
	} `json:"slots"`
	Windows []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"windows"`
}

type conflictBody struct {
	Error   string `json:"error"`
	Details struct {
		Conflicts []model.Appointment `json:"conflicts"`
	} `json:"details"`
}

func mondayMorning(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]string{"weekday": "lundi", "start": "08:00", "end": "12:00"})
	expectStatus(t, rec, http.StatusCreated)
}

func TestSlotsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/providers/dr-1/slots?date=2026-10-19", nil)
	expectStatus(t, rec, http.StatusOK)
	empty := decode[map[string]any](t, rec)
	if empty["available"] != false || empty["reason"] != availability.ReasonNoWindows {
		t.Fatalf("unexpected empty day: %v", empty)
	}

	mondayMorning(t, h)
	rec = do(t, h, http.MethodGet, "/api/v1/providers/dr-1/slots?date=2026-10-19&slot_minutes=60", nil)
	expectStatus(t, rec, http.StatusOK)
	day := decode[dayBody](t, rec)
	if !day.Available || day.Weekday != "Monday" || len(day.Slots) != 4 || len(day.Windows) != 1 {
		t.Fatalf("unexpected day: %+v", day)
	}
	if day.Slots[0].Start != "08:00" || day.Slots[0].End != "09:00" || day.Slots[0].Duration != 60 {
		t.Fatalf("unexpected first slot: %+v", day.Slots[0])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/providers/dr-1/slots?date=19/10/2026", nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = do(t, h, http.MethodGet, "/api/v1/providers/dr-1/slots?date=2026-10-19&slot_minutes=0", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestAvailabilityEndpoints(t *testing.T) {
	h, _ := newTestServer(t)
	mondayMorning(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]string{"weekday": "monday", "start": "11:00", "end": "13:00"})
	expectStatus(t, rec, http.StatusConflict)
	body := decode[httpx.ErrorBody](t, rec)
	if body.Error != "conflict" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]string{"weekday": "monday", "start": "14:00", "end": "13:00"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]string{"weekday": "someday", "start": "14:00", "end": "16:00"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/dr-1/availability?weekday=1", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decode[struct {
		Windows []model.AvailabilityWindow `json:"windows"`
	}](t, rec)
	if len(list.Windows) != 1 {
		t.Fatalf("expected one window, got %+v", list.Windows)
	}
	id := list.Windows[0].ID

	rec = do(t, h, http.MethodPut, "/api/v1/availability/"+id,
		map[string]string{"weekday": "monday", "start": "09:00", "end": "12:00"})
	expectStatus(t, rec, http.StatusOK)
	updated := decode[model.AvailabilityWindow](t, rec)
	if updated.Start != model.NewClock(9, 0, 0) {
		t.Fatalf("unexpected window: %+v", updated)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/availability/"+id, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, h, http.MethodDelete, "/api/v1/availability/"+id, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestWindowWeekdayAsNumber(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]any{"weekday": 2, "start": "09:00", "end": "12:00"})
	expectStatus(t, rec, http.StatusCreated)
	win := decode[model.AvailabilityWindow](t, rec)
	if win.Weekday != time.Tuesday {
		t.Fatalf("expected Tuesday, got %s", win.Weekday)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]any{"weekday": 9, "start": "09:00", "end": "12:00"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = do(t, h, http.MethodPost, "/api/v1/providers/dr-1/availability",
		map[string]any{"weekday": true, "start": "09:00", "end": "12:00"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestBookingFlow(t *testing.T) {
	h, _ := newTestServer(t)
	mondayMorning(t, h)

	book := map[string]any{"patient_id": "pat-1", "provider_id": "dr-1", "date": "2026-10-19", "start": "09:00"}
	rec := do(t, h, http.MethodPost, "/api/v1/appointments", book)
	expectStatus(t, rec, http.StatusCreated)
	appt := decode[model.Appointment](t, rec)
	if appt.Status != model.StatusPlanned || appt.DurationMinutes != model.DefaultDurationMinutes {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if rec.Header().Get("Location") != "/api/v1/appointments/"+appt.ID {
		t.Fatalf("unexpected Location %q", rec.Header().Get("Location"))
	}

	book["patient_id"] = "pat-2"
	book["start"] = "09:15"
	rec = do(t, h, http.MethodPost, "/api/v1/appointments", book)
	expectStatus(t, rec, http.StatusConflict)
	conflict := decode[conflictBody](t, rec)
	if conflict.Error != "conflict" || len(conflict.Details.Conflicts) != 1 || conflict.Details.Conflicts[0].ID != appt.ID {
		t.Fatalf("unexpected conflict body: %+v", conflict)
	}

	book["date"] = "2026-10-17"
	rec = do(t, h, http.MethodPost, "/api/v1/appointments", book)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	book["date"] = "2026-10-19"
	book["patient_id"] = "ghost"
	rec = do(t, h, http.MethodPost, "/api/v1/appointments", book)
	expectStatus(t, rec, http.StatusNotFound)

	rec = do(t, h, http.MethodPost, "/api/v1/appointments", map[string]any{"patient_id": "pat-1", "surprise": true})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = do(t, h, http.MethodPost, "/api/v1/appointments", map[string]any{"patient_id": "pat-1", "provider_id": "dr-1", "date": "2026-10-19", "start": "9h"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if got := decode[httpx.ErrorBody](t, rec); got.Error != "validation_error" {
		t.Fatalf("unexpected error body: %+v", got)
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/appointments/"+appt.ID, map[string]any{"start": "10:00", "motif": "bilan"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Appointment](t, rec); got.Start != model.NewClock(10, 0, 0) || got.Motif != "bilan" {
		t.Fatalf("unexpected patched appointment: %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments/"+appt.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = do(t, h, http.MethodGet, "/api/v1/appointments/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestLifecycleEndpoints(t *testing.T) {
	h, st := newTestServer(t)
	st.Seed(model.Appointment{
		ID: "a-1", PatientID: "pat-1", ProviderID: "dr-1",
		Date: model.Date{Year: 2026, Month: time.October, Day: 19}, Start: model.NewClock(9, 0, 0),
		DurationMinutes: 30, Status: model.StatusPlanned,
	})

	rec := do(t, h, http.MethodPost, "/api/v1/appointments/a-1/finish", nil)
	expectStatus(t, rec, http.StatusConflict)
	var state struct {
		Error   string `json:"error"`
		Details struct {
			CurrentStatus string `json:"current_status"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Error != "state_error" || state.Details.CurrentStatus != "planned" {
		t.Fatalf("unexpected state body: %s", rec.Body.String())
	}

	for _, step := range []struct {
		action string
		want   model.Status
	}{
		{"confirm", model.StatusConfirmed},
		{"start", model.StatusInProgress},
		{"finish", model.StatusFinished},
	} {
		rec = do(t, h, http.MethodPost, "/api/v1/appointments/a-1/"+step.action, nil)
		expectStatus(t, rec, http.StatusOK)
		if got := decode[model.Appointment](t, rec); got.Status != step.want {
			t.Fatalf("%s: unexpected status %s", step.action, got.Status)
		}
	}

	rec = do(t, h, http.MethodPost, "/api/v1/appointments/a-1/cancel", map[string]string{"reason": "late"})
	expectStatus(t, rec, http.StatusConflict)
}

func TestCancelWithoutBody(t *testing.T) {
	h, st := newTestServer(t)
	st.Seed(model.Appointment{
		ID: "a-1", PatientID: "pat-1", ProviderID: "dr-1",
		Date: model.Date{Year: 2026, Month: time.October, Day: 19}, Start: model.NewClock(9, 0, 0),
		DurationMinutes: 30, Status: model.StatusConfirmed,
	})

	rec := do(t, h, http.MethodPost, "/api/v1/appointments/a-1/cancel", nil)
	expectStatus(t, rec, http.StatusOK)
	rec = do(t, h, http.MethodPost, "/api/v1/appointments/a-1/cancel", map[string]string{"reason": "twice"})
	expectStatus(t, rec, http.StatusOK)
	got, err := st.GetAppointment(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.Status != model.StatusCancelled || got.CancellationReason != "" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
