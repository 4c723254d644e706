package availability

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/conflict"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

const (
	DefaultSlotLength = 30 * time.Minute

	ReasonNoWindows   = "no_windows"
	ReasonFullyBooked = "fully_booked"
)

type Slot struct {
	Start           model.Clock `json:"start"`
	End             model.Clock `json:"end"`
	DurationMinutes int         `json:"duration"`
}

// Day is the answer to "what can a patient pick on this date". Reason tells an empty day
// with no working hours apart from a fully booked one.
type Day struct {
	ProviderID string
	Date       model.Date
	Weekday    time.Weekday
	Available  bool
	Reason     string
	Slots      []Slot
	Windows    []model.AvailabilityWindow
}

type Reader interface {
	store.WindowReader
	store.AppointmentReader
}

type SlotGenerator struct {
	store       Reader
	defaultSlot time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type SlotOptions struct {
	DefaultSlot time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func NewSlotGenerator(st Reader, opts SlotOptions) *SlotGenerator {
	if opts.DefaultSlot <= 0 {
		opts.DefaultSlot = DefaultSlotLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SlotGenerator{store: st, defaultSlot: opts.DefaultSlot, logger: opts.Logger, metrics: opts.Metrics}
}

// ListSlots returns the free fixed-length slots of a provider on date. slotLength <= 0 uses the
// default length.
func (g *SlotGenerator) ListSlots(ctx context.Context, providerID string, date model.Date, slotLength time.Duration) (Day, error) {
	if providerID == "" {
		return Day{}, schederr.Validation("provider_id", "is required")
	}
	if date.IsZero() {
		return Day{}, schederr.Validation("date", "is required")
	}
	if slotLength <= 0 {
		slotLength = g.defaultSlot
	}
	if slotLength > 24*time.Hour || slotLength < time.Minute {
		return Day{}, schederr.Validation("slot_minutes", "must be between 1 minute and 24 hours")
	}

	day := Day{ProviderID: providerID, Date: date, Weekday: date.Weekday()}

	windows, err := g.store.ListWindowsByWeekday(ctx, providerID, day.Weekday)
	if err != nil {
		return Day{}, err
	}
	if len(windows) == 0 {
		day.Reason = ReasonNoWindows
		g.metrics.ObserveSlotQuery(ReasonNoWindows)
		return day, nil
	}
	slices.SortFunc(windows, func(a, b model.AvailabilityWindow) int { return int(a.Start) - int(b.Start) })
	day.Windows = windows

	booked, err := g.store.ListActiveAppointments(ctx, providerID, date)
	if err != nil {
		return Day{}, err
	}

	length := model.ClockFromDuration(slotLength)
	for _, w := range windows {
		for _, start := range AvailableSlots(w.Start, w.End, length, booked) {
			day.Slots = append(day.Slots, Slot{Start: start, End: start + length, DurationMinutes: int(slotLength / time.Minute)})
		}
	}
	slices.SortFunc(day.Slots, func(a, b Slot) int { return int(a.Start) - int(b.Start) })

	day.Available = len(day.Slots) > 0
	if !day.Available {
		day.Reason = ReasonFullyBooked
		g.metrics.ObserveSlotQuery(ReasonFullyBooked)
	} else {
		g.metrics.ObserveSlotQuery("available")
	}
	g.logger.DebugContext(ctx, "slots listed",
		"provider_id", providerID,
		"date", date.String(),
		"windows", len(windows),
		"booked", len(booked),
		"free", len(day.Slots),
	)
	return day, nil
}

// AvailableSlots walks [windowStart, windowEnd) in steps of length and returns the slot starts
// whose range overlaps none of the booked appointments. A window shorter than one slot yields
// nothing.
func AvailableSlots(windowStart, windowEnd, length model.Clock, booked []model.Appointment) []model.Clock {
	if length <= 0 || windowEnd <= windowStart {
		return nil
	}
	var slots []model.Clock
	for t := windowStart; t+length <= windowEnd; t += length {
		if len(conflict.Find(booked, t, t+length, "")) == 0 {
			slots = append(slots, t)
		}
	}
	return slots
}
