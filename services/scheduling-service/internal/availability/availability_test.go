package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/storage/memstore"
)

var (
	monday  = model.Date{Year: 2026, Month: time.October, Day: 19}
	tuesday = monday.AddDays(1)
)

func clock(t *testing.T, s string) model.Clock {
	t.Helper()
	c, err := model.ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func weekday(t *testing.T, s string) time.Weekday {
	t.Helper()
	wd, err := model.ParseWeekday(s)
	if err != nil {
		t.Fatalf("ParseWeekday(%q): %v", s, err)
	}
	return wd
}

func setup(t *testing.T) (*memstore.Store, *WindowService, *SlotGenerator) {
	t.Helper()
	st := memstore.New()
	return st, NewWindowService(st, WindowOptions{}), NewSlotGenerator(st, SlotOptions{})
}

func slotStarts(day Day) []string {
	out := make([]string, 0, len(day.Slots))
	for _, s := range day.Slots {
		out = append(out, s.Start.String())
	}
	return out
}

func TestMondayMorningYieldsEightSlots(t *testing.T) {
	_, windows, slots := setup(t)
	ctx := context.Background()

	if _, err := windows.Create(ctx, "dr-1", weekday(t, "lundi"), clock(t, "08:00"), clock(t, "12:00")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	day, err := slots.ListSlots(ctx, "dr-1", monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	want := []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	got := slotStarts(day)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if !day.Available || day.Weekday != time.Monday || len(day.Windows) != 1 {
		t.Fatalf("unexpected day %+v", day)
	}
	if day.Slots[0].End != clock(t, "08:30") || day.Slots[0].DurationMinutes != 30 {
		t.Fatalf("unexpected first slot %+v", day.Slots[0])
	}
}

func TestBookedAppointmentRemovesOnlyItsSlot(t *testing.T) {
	st, windows, slots := setup(t)
	ctx := context.Background()

	if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "08:00"), clock(t, "12:00")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st.Seed(
		model.Appointment{ID: "a-1", ProviderID: "dr-1", Date: monday, Start: clock(t, "09:00"), DurationMinutes: 30, Status: model.StatusPlanned},
		model.Appointment{ID: "a-2", ProviderID: "dr-1", Date: monday, Start: clock(t, "10:00"), DurationMinutes: 30, Status: model.StatusCancelled},
	)

	day, err := slots.ListSlots(ctx, "dr-1", monday, 0)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	got := map[string]bool{}
	for _, s := range slotStarts(day) {
		got[s] = true
	}
	if got["09:00"] || !got["08:30"] || !got["09:30"] || !got["10:00"] {
		t.Fatalf("unexpected slots %v", slotStarts(day))
	}
	if len(day.Slots) != 7 {
		t.Fatalf("expected 7 slots, got %d", len(day.Slots))
	}
}

func TestShortWindowYieldsNoSlots(t *testing.T) {
	_, windows, slots := setup(t)
	ctx := context.Background()

	if _, err := windows.Create(ctx, "dr-1", weekday(t, "mardi"), clock(t, "14:00"), clock(t, "14:45")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	day, err := slots.ListSlots(ctx, "dr-1", tuesday, 30*time.Minute)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(day.Slots) != 1 {
		t.Fatalf("a 45 minute window fits exactly one 30 minute slot, got %v", slotStarts(day))
	}

	day, err = slots.ListSlots(ctx, "dr-1", tuesday, 60*time.Minute)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(day.Slots) != 0 || day.Available || day.Reason != ReasonFullyBooked {
		t.Fatalf("expected no slots when the window is shorter than the slot, got %+v", day)
	}
}

func TestNoWindowsIsDistinguishedFromFullyBooked(t *testing.T) {
	st, windows, slots := setup(t)
	ctx := context.Background()

	day, err := slots.ListSlots(ctx, "dr-1", monday, 0)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if day.Available || day.Reason != ReasonNoWindows || len(day.Slots) != 0 {
		t.Fatalf("expected no_windows, got %+v", day)
	}

	if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "08:00"), clock(t, "09:00")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st.Seed(model.Appointment{ID: "a-1", ProviderID: "dr-1", Date: monday, Start: clock(t, "08:00"), DurationMinutes: 60, Status: model.StatusConfirmed})

	day, err = slots.ListSlots(ctx, "dr-1", monday, 0)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if day.Available || day.Reason != ReasonFullyBooked || len(day.Windows) != 1 {
		t.Fatalf("expected fully_booked with windows, got %+v", day)
	}
}

func TestSlotsStayInsideWindowsAndAvoidAppointments(t *testing.T) {
	st, windows, slots := setup(t)
	ctx := context.Background()

	for _, r := range [][2]string{{"07:15", "09:40"}, {"13:00", "17:05"}} {
		if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, r[0]), clock(t, r[1])); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	booked := []model.Appointment{
		{ID: "a-1", ProviderID: "dr-1", Date: monday, Start: clock(t, "07:50"), DurationMinutes: 25, Status: model.StatusPlanned},
		{ID: "a-2", ProviderID: "dr-1", Date: monday, Start: clock(t, "14:10"), DurationMinutes: 95, Status: model.StatusInProgress},
	}
	st.Seed(booked...)

	for _, length := range []time.Duration{10 * time.Minute, 20 * time.Minute, 45 * time.Minute} {
		day, err := slots.ListSlots(ctx, "dr-1", monday, length)
		if err != nil {
			t.Fatalf("ListSlots: %v", err)
		}
		for i, s := range day.Slots {
			inside := false
			for _, w := range day.Windows {
				if w.Covers(s.Start, s.End) {
					inside = true
				}
			}
			if !inside {
				t.Fatalf("slot %s-%s outside every window", s.Start, s.End)
			}
			for _, a := range booked {
				if a.OverlapsRange(s.Start, s.End) {
					t.Fatalf("slot %s-%s overlaps appointment %s", s.Start, s.End, a.ID)
				}
			}
			if i > 0 && day.Slots[i-1].Start >= s.Start {
				t.Fatal("slots are not chronological")
			}
		}
	}
}

func TestSlotLengthValidation(t *testing.T) {
	_, _, slots := setup(t)
	_, err := slots.ListSlots(context.Background(), "dr-1", monday, 25*time.Hour)
	var verr *schederr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestWindowOverlapIsRejected(t *testing.T) {
	_, windows, _ := setup(t)
	ctx := context.Background()

	first, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "08:00"), clock(t, "12:00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = windows.Create(ctx, "dr-1", time.Monday, clock(t, "11:30"), clock(t, "13:00"))
	var conflictErr *schederr.ConflictError
	if !errors.As(err, &conflictErr) || len(conflictErr.Windows) != 1 || conflictErr.Windows[0].ID != first.ID {
		t.Fatalf("expected conflict with first window, got %v", err)
	}

	// Adjacent windows, other weekdays and other providers are fine.
	if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "12:00"), clock(t, "13:00")); err != nil {
		t.Fatalf("adjacent window rejected: %v", err)
	}
	if _, err := windows.Create(ctx, "dr-1", time.Tuesday, clock(t, "08:00"), clock(t, "12:00")); err != nil {
		t.Fatalf("other weekday rejected: %v", err)
	}
	if _, err := windows.Create(ctx, "dr-2", time.Monday, clock(t, "08:00"), clock(t, "12:00")); err != nil {
		t.Fatalf("other provider rejected: %v", err)
	}
}

func TestWindowUpdateExcludesItself(t *testing.T) {
	_, windows, _ := setup(t)
	ctx := context.Background()

	w, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "08:00"), clock(t, "12:00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "14:00"), clock(t, "18:00")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := windows.Update(ctx, w.ID, time.Monday, clock(t, "07:00"), clock(t, "12:30"))
	if err != nil {
		t.Fatalf("growing a window over its own range must succeed: %v", err)
	}
	if updated.Start != clock(t, "07:00") || updated.ProviderID != "dr-1" {
		t.Fatalf("unexpected update %+v", updated)
	}

	_, err = windows.Update(ctx, w.ID, time.Monday, clock(t, "07:00"), clock(t, "15:00"))
	var conflictErr *schederr.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected conflict, got %v", err)
	}

	_, err = windows.Update(ctx, "missing", time.Monday, clock(t, "07:00"), clock(t, "08:00"))
	var nf *schederr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWindowValidationAndDelete(t *testing.T) {
	_, windows, _ := setup(t)
	ctx := context.Background()

	var verr *schederr.ValidationError
	if _, err := windows.Create(ctx, "dr-1", time.Monday, clock(t, "12:00"), clock(t, "12:00")); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty range, got %v", err)
	}
	if _, err := windows.Create(ctx, "dr-1", time.Weekday(7), clock(t, "08:00"), clock(t, "09:00")); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for weekday, got %v", err)
	}

	w, err := windows.Create(ctx, "dr-1", time.Friday, clock(t, "08:00"), clock(t, "24:00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := windows.Delete(ctx, w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var nf *schederr.NotFoundError
	if err := windows.Delete(ctx, w.ID); !errors.As(err, &nf) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	list, err := windows.ListByProvider(ctx, "dr-1")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v (err %v)", list, err)
	}
}
