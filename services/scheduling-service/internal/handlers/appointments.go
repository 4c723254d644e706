package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rdvmed/clinicsched/libs/httpx"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/booking"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

type AppointmentHandler struct {
	booking   Booker
	lifecycle Lifecycle
	logger    *slog.Logger
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeInvalid(w, err)
		return
	}
	date, _ := model.ParseDate(req.Date)
	start, _ := model.ParseClock(req.Start)

	appt, err := h.booking.Book(r.Context(), booking.BookRequest{
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Date:            date,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Motif:           req.Motif,
		Address:         req.Address,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/appointments/"+appt.ID)
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.lifecycle.Get)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeInvalid(w, err)
		return
	}
	patch := req.toPatch()
	h.respond(w, r, func(ctx context.Context, id string) (model.Appointment, error) {
		return h.booking.Update(ctx, id, patch)
	})
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.lifecycle.Confirm)
}

func (h *AppointmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.lifecycle.Start)
}

func (h *AppointmentHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.lifecycle.Finish)
}

// Cancel accepts an optional {"reason": "..."} body.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeInvalid(w, err)
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (model.Appointment, error) {
		return h.booking.Cancel(ctx, id, req.Reason)
	})
}

func (h *AppointmentHandler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (model.Appointment, error)) {
	appt, err := fn(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}
