package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rdvmed/clinicsched/libs/httpx"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/schederr"
)

const (
	codeInvalidRequest = "invalid_request"
	codeInternal       = "internal"
)

type conflictDetails struct {
	Conflicts any `json:"conflicts"`
}

type stateDetails struct {
	CurrentStatus string `json:"current_status"`
	Attempted     string `json:"attempted_status,omitempty"`
}

type fieldDetails struct {
	Field string `json:"field,omitempty"`
}

// writeDomainError maps a component error to its HTTP status and JSON envelope.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr *schederr.ValidationError
		nerr *schederr.NotFoundError
		cerr *schederr.ConflictError
		serr *schederr.StateError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusUnprocessableEntity, schederr.KindValidation, err.Error(), fieldDetails{Field: verr.Field})
	case errors.As(err, &nerr):
		httpx.WriteError(w, http.StatusNotFound, schederr.KindNotFound, err.Error(), nil)
	case errors.As(err, &cerr):
		var conflicts any = cerr.Appointments
		if len(cerr.Windows) > 0 {
			conflicts = cerr.Windows
		}
		httpx.WriteError(w, http.StatusConflict, schederr.KindConflict, err.Error(), conflictDetails{Conflicts: conflicts})
	case errors.As(err, &serr):
		httpx.WriteError(w, http.StatusConflict, schederr.KindState, err.Error(),
			stateDetails{CurrentStatus: string(serr.Current), Attempted: string(serr.Attempted)})
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"err", err, "method", r.Method, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

func writeBadRequest(w http.ResponseWriter, format string, args ...any) {
	httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf(format, args...), nil)
}

// writeInvalid reports validator failures one line per field.
func writeInvalid(w http.ResponseWriter, err error) {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		writeBadRequest(w, "%v", err)
		return
	}
	msgs := make([]string, 0, len(fields))
	first := ""
	for _, fe := range fields {
		name := jsonName(fe)
		if first == "" {
			first = name
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", name, fe.Tag()))
	}
	httpx.WriteError(w, http.StatusUnprocessableEntity, schederr.KindValidation, strings.Join(msgs, "; "), fieldDetails{Field: first})
}

func jsonName(fe validator.FieldError) string {
	if fe.Field() != "" {
		return fe.Field()
	}
	return strings.ToLower(fe.StructField())
}
