package schederr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{Validation("date", "must be after today"), KindValidation},
		{fmt.Errorf("book: %w", NotFound("patient", "p1")), KindNotFound},
		{&ConflictError{Appointments: []model.Appointment{{ID: "a1"}}}, KindConflict},
		{&StateError{Current: model.StatusFinished, Attempted: model.StatusInProgress}, KindState},
		{errors.New("connection refused"), KindInternal},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestMessages(t *testing.T) {
	err := &ConflictError{Windows: []model.AvailabilityWindow{{Start: model.NewClock(8, 0, 0), End: model.NewClock(12, 0, 0)}}}
	if err.Error() != "overlaps existing availability window(s) 08:00-12:00" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	state := &StateError{Current: model.StatusCancelled, Action: "reschedule"}
	if state.Error() != "cannot reschedule appointment in status cancelled" {
		t.Fatalf("unexpected message %q", state.Error())
	}
	if NotFound("provider", "dr-1").Error() != `provider "dr-1" not found` {
		t.Fatal("unexpected not found message")
	}
}
