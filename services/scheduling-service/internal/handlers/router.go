package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/availability"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/booking"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

type SlotLister interface {
	ListSlots(ctx context.Context, providerID string, date model.Date, slotLength time.Duration) (availability.Day, error)
}

type WindowManager interface {
	Create(ctx context.Context, providerID string, weekday time.Weekday, start, end model.Clock) (model.AvailabilityWindow, error)
	Update(ctx context.Context, id string, weekday time.Weekday, start, end model.Clock) (model.AvailabilityWindow, error)
	Delete(ctx context.Context, id string) error
	ListByProvider(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	ListByProviderAndWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
}

type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
	Update(ctx context.Context, id string, patch model.AppointmentPatch) (model.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
}

type Lifecycle interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	Confirm(ctx context.Context, id string) (model.Appointment, error)
	Start(ctx context.Context, id string) (model.Appointment, error)
	Finish(ctx context.Context, id string) (model.Appointment, error)
}

type Config struct {
	Slots     SlotLister
	Windows   WindowManager
	Booking   Booker
	Lifecycle Lifecycle
	Logger    *slog.Logger
}

// NewRouter mounts the scheduling API under /api/v1.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sh := &ScheduleHandler{slots: cfg.Slots, windows: cfg.Windows, logger: cfg.Logger}
	ah := &AppointmentHandler{booking: cfg.Booking, lifecycle: cfg.Lifecycle, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/providers/{providerID}", func(r chi.Router) {
			r.Get("/slots", sh.ListSlots)
			r.Get("/availability", sh.ListWindows)
			r.Post("/availability", sh.CreateWindow)
		})
		r.Put("/availability/{windowID}", sh.UpdateWindow)
		r.Delete("/availability/{windowID}", sh.DeleteWindow)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", ah.Create)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", ah.Get)
				r.Patch("/", ah.Update)
				r.Post("/confirm", ah.Confirm)
				r.Post("/start", ah.Start)
				r.Post("/finish", ah.Finish)
				r.Post("/cancel", ah.Cancel)
			})
		})
	})
	return r
}
