package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := model.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := model.ParseWeekday(fl.Field().String())
		return err == nil
	})
	return v
}

// weekdayField takes a weekday as a JSON number (1) or string ("monday", "1").
type weekdayField string

func (f *weekdayField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = weekdayField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("weekday must be a number or a string: %w", err)
	}
	*f = weekdayField(n.String())
	return nil
}

type windowRequest struct {
	Weekday weekdayField `json:"weekday" validate:"required,weekday"`
	Start   string `json:"start" validate:"required,clock"`
	End     string `json:"end" validate:"required,clock"`
}

type bookRequest struct {
	PatientID       string `json:"patient_id" validate:"required,max=128"`
	ProviderID      string `json:"provider_id" validate:"required,max=128"`
	Date            string `json:"date" validate:"required,date"`
	Start           string `json:"start" validate:"required,clock"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Motif           string `json:"motif" validate:"max=500"`
	Address         string `json:"address" validate:"max=500"`
}

// patchRequest uses pointers so absent fields stay untouched.
type patchRequest struct {
	ProviderID         *string `json:"provider_id" validate:"omitempty,min=1,max=128"`
	Date               *string `json:"date" validate:"omitempty,date"`
	Start              *string `json:"start" validate:"omitempty,clock"`
	DurationMinutes    *int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Motif              *string `json:"motif" validate:"omitempty,max=500"`
	Address            *string `json:"address" validate:"omitempty,max=500"`
	DoctorNotes        *string `json:"doctor_notes" validate:"omitempty,max=4000"`
	CancellationReason *string `json:"cancellation_reason" validate:"omitempty,max=500"`
}

// toPatch runs after validation, so the parse errors cannot happen.
func (p patchRequest) toPatch() model.AppointmentPatch {
	patch := model.AppointmentPatch{
		ProviderID:         p.ProviderID,
		DurationMinutes:    p.DurationMinutes,
		Motif:              p.Motif,
		Address:            p.Address,
		DoctorNotes:        p.DoctorNotes,
		CancellationReason: p.CancellationReason,
	}
	if p.Date != nil {
		d, _ := model.ParseDate(*p.Date)
		patch.Date = &d
	}
	if p.Start != nil {
		c, _ := model.ParseClock(*p.Start)
		patch.Start = &c
	}
	return patch
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type slotWindow struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

type slotsResponse struct {
	ProviderID string       `json:"provider_id"`
	Date       model.Date   `json:"date"`
	Weekday    string       `json:"weekday"`
	Available  bool         `json:"available"`
	Reason     string       `json:"reason,omitempty"`
	Slots      any          `json:"slots"`
	Windows    []slotWindow `json:"windows"`
}
