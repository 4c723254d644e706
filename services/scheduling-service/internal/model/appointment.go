package model

import "time"

const DefaultDurationMinutes = 30

type Appointment struct {
	ID                 string    `json:"id"`
	PatientID          string    `json:"patient_id"`
	ProviderID         string    `json:"provider_id"`
	Date               Date      `json:"date"`
	Start              Clock     `json:"start"`
	DurationMinutes    int       `json:"duration_minutes"`
	Status             Status    `json:"status"`
	Motif              string    `json:"motif,omitempty"`
	Address            string    `json:"address,omitempty"`
	DoctorNotes        string    `json:"doctor_notes,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) End() Clock {
	return a.Start.Add(a.Duration())
}

// Active appointments take part in conflict checks.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

func (a Appointment) OverlapsRange(start, end Clock) bool {
	return Overlaps(a.Start, a.End(), start, end)
}

// AppointmentPatch carries the fields a caller wants to change; nil means untouched.
type AppointmentPatch struct {
	ProviderID         *string
	Date               *Date
	Start              *Clock
	DurationMinutes    *int
	Motif              *string
	Address            *string
	DoctorNotes        *string
	CancellationReason *string
}

func (p AppointmentPatch) Empty() bool {
	return p == AppointmentPatch{}
}

// ChangesTiming reports whether any field that affects availability or conflicts differs from a.
func (p AppointmentPatch) ChangesTiming(a Appointment) bool {
	return (p.ProviderID != nil && *p.ProviderID != a.ProviderID) ||
		(p.Date != nil && *p.Date != a.Date) ||
		(p.Start != nil && *p.Start != a.Start) ||
		(p.DurationMinutes != nil && *p.DurationMinutes != a.DurationMinutes)
}

// Apply returns a with the patch merged in.
func (p AppointmentPatch) Apply(a Appointment) Appointment {
	if p.ProviderID != nil {
		a.ProviderID = *p.ProviderID
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Start != nil {
		a.Start = *p.Start
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.Motif != nil {
		a.Motif = *p.Motif
	}
	if p.Address != nil {
		a.Address = *p.Address
	}
	if p.DoctorNotes != nil {
		a.DoctorNotes = *p.DoctorNotes
	}
	if p.CancellationReason != nil {
		a.CancellationReason = *p.CancellationReason
	}
	return a
}
