package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rdvmed/clinicsched/libs/httpx"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/availability"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

type ScheduleHandler struct {
	slots   SlotLister
	windows WindowManager
	logger  *slog.Logger
}

func (h *ScheduleHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	q := r.URL.Query()

	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		writeBadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	var length time.Duration
	if raw := strings.TrimSpace(q.Get("slot_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "slot_minutes must be a positive integer")
			return
		}
		length = time.Duration(n) * time.Minute
	}

	day, err := h.slots.ListSlots(r.Context(), providerID, date, length)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotsResponse(day))
}

func toSlotsResponse(day availability.Day) slotsResponse {
	windows := make([]slotWindow, 0, len(day.Windows))
	for _, win := range day.Windows {
		windows = append(windows, slotWindow{Start: win.Start, End: win.End})
	}
	slots := day.Slots
	if slots == nil {
		slots = []availability.Slot{}
	}
	return slotsResponse{
		ProviderID: day.ProviderID,
		Date:       day.Date,
		Weekday:    day.Weekday.String(),
		Available:  day.Available,
		Reason:     day.Reason,
		Slots:      slots,
		Windows:    windows,
	}
}

// ListWindows returns a provider's windows, optionally filtered with ?weekday=.
func (h *ScheduleHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	var (
		windows []model.AvailabilityWindow
		err     error
	)
	if raw := r.URL.Query().Get("weekday"); raw != "" {
		weekday, perr := model.ParseWeekday(raw)
		if perr != nil {
			writeBadRequest(w, "%v", perr)
			return
		}
		windows, err = h.windows.ListByProviderAndWeekday(r.Context(), providerID, weekday)
	} else {
		windows, err = h.windows.ListByProvider(r.Context(), providerID)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if windows == nil {
		windows = []model.AvailabilityWindow{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"windows": windows})
}

func (h *ScheduleHandler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	weekday, start, end, ok := decodeWindow(w, r)
	if !ok {
		return
	}
	win, err := h.windows.Create(r.Context(), chi.URLParam(r, "providerID"), weekday, start, end)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, win)
}

func (h *ScheduleHandler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	weekday, start, end, ok := decodeWindow(w, r)
	if !ok {
		return
	}
	win, err := h.windows.Update(r.Context(), chi.URLParam(r, "windowID"), weekday, start, end)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, win)
}

func (h *ScheduleHandler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.windows.Delete(r.Context(), chi.URLParam(r, "windowID")); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeWindow(w http.ResponseWriter, r *http.Request) (time.Weekday, model.Clock, model.Clock, bool) {
	var req windowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return 0, 0, 0, false
	}
	if err := validate.Struct(req); err != nil {
		writeInvalid(w, err)
		return 0, 0, 0, false
	}
	weekday, _ := model.ParseWeekday(string(req.Weekday))
	start, _ := model.ParseClock(req.Start)
	end, _ := model.ParseClock(req.End)
	return weekday, start, end, true
}
