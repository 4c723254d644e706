package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	otelx "github.com/rdvmed/clinicsched/libs/otel"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

const (
	AggregateAppointment = "appointment"
	SchemaVersion        = "1"

	AppointmentBooked    = "appointment.booked.v1"
	AppointmentUpdated   = "appointment.updated.v1"
	AppointmentConfirmed = "appointment.confirmed.v1"
	AppointmentStarted   = "appointment.started.v1"
	AppointmentFinished  = "appointment.finished.v1"
	AppointmentCancelled = "appointment.cancelled.v1"
)

// Event is the envelope written to the outbox table in the same transaction as the change.
// The Kafka topic name equals EventType.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	OccurredAt    time.Time
}

type appointmentPayload struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Source      string            `json:"source,omitempty"`
	Appointment model.Appointment `json:"appointment"`
}

// NewAppointmentEvent snapshots appt and the trace context of ctx.
func NewAppointmentEvent(ctx context.Context, eventType string, appt model.Appointment, at time.Time) (Event, error) {
	return newAppointmentEvent(ctx, eventType, appt, at, "")
}

// NewSweepEvent is NewAppointmentEvent for transitions made by the status sweeper.
func NewSweepEvent(ctx context.Context, eventType string, appt model.Appointment, at time.Time) (Event, error) {
	return newAppointmentEvent(ctx, eventType, appt, at, "sweeper")
}

func newAppointmentEvent(ctx context.Context, eventType string, appt model.Appointment, at time.Time, source string) (Event, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(appointmentPayload{
		EventID:     id,
		EventType:   eventType,
		OccurredAt:  at.UTC(),
		Source:      source,
		Appointment: appt,
	})
	if err != nil {
		return Event{}, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return Event{
		ID:            id,
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		OccurredAt:    at,
	}, nil
}

// TransitionEventType maps a status reached through the lifecycle to its event type.
func TransitionEventType(to model.Status) string {
	switch to {
	case model.StatusConfirmed:
		return AppointmentConfirmed
	case model.StatusInProgress:
		return AppointmentStarted
	case model.StatusFinished:
		return AppointmentFinished
	case model.StatusCancelled:
		return AppointmentCancelled
	default:
		return AppointmentUpdated
	}
}
