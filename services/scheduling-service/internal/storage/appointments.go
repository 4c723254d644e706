package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

const appointmentColumns = `id::text, patient_id, provider_id, appointment_date, EXTRACT(EPOCH FROM start_time)::int,
	duration_minutes, status, COALESCE(motif, ''), COALESCE(address, ''), COALESCE(doctor_notes, ''),
	COALESCE(cancellation_reason, ''), created_at, updated_at`

// appointmentEnd is the timestamp (without time zone) at which an appointment ends.
const appointmentEnd = `(appointment_date + start_time + make_interval(mins => duration_minutes))`

func (r queries) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	return a, mapErr(err)
}

func (r queries) ListActiveAppointments(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status <> 'cancelled'
		ORDER BY start_time, id
	`, providerID, dateParam(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r queries) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, provider_id, appointment_date, start_time, duration_minutes, status,
			 motif, address, doctor_notes, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.ProviderID, dateParam(a.Date), clockParam(a.Start), a.DurationMinutes, string(a.Status),
		textParam(a.Motif), textParam(a.Address), textParam(a.DoctorNotes), textParam(a.CancellationReason), a.CreatedAt)
	out, err := scanAppointment(row)
	return out, mapErr(err)
}

func (r queries) PatchAppointment(ctx context.Context, id string, patch model.AppointmentPatch, at time.Time) (model.Appointment, error) {
	sql, args := buildPatch(id, patch, at)
	out, err := scanAppointment(r.q.QueryRow(ctx, sql, args...))
	return out, mapErr(err)
}

func (r queries) TransitionStatus(ctx context.Context, id string, from []model.Status, to model.Status, reason *string, at time.Time) (model.Appointment, bool, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = $4,
			cancellation_reason = COALESCE($5, cancellation_reason)
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns,
		id, statusParams(from), string(to), at, reason)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, mapErr(err)
	}
	return a, true, nil
}

func (r queries) SweepStart(ctx context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE appointments
		SET status = 'in_progress', updated_at = $3
		WHERE status = 'confirmed'
			AND appointment_date = $1
			AND start_time <= $2
			AND `+appointmentEnd+` > $1::date + $2::time
		RETURNING `+appointmentColumns,
		dateParam(today), clockParam(now), at)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectAppointments(rows)
}

func (r queries) SweepFinish(ctx context.Context, today model.Date, now model.Clock, at time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE appointments
		SET status = 'finished', updated_at = $3
		WHERE status = 'in_progress'
			AND `+appointmentEnd+` <= $1::date + $2::time
		RETURNING `+appointmentColumns,
		dateParam(today), clockParam(now), at)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectAppointments(rows)
}

// patchColumns enumerates every column a patch may touch. The UPDATE statement is assembled
// only from these names; values always travel as parameters.
var patchColumns = []struct {
	column string
	value  func(model.AppointmentPatch) (any, bool)
}{
	{"provider_id", func(p model.AppointmentPatch) (any, bool) {
		if p.ProviderID == nil {
			return nil, false
		}
		return *p.ProviderID, true
	}},
	{"appointment_date", func(p model.AppointmentPatch) (any, bool) {
		if p.Date == nil {
			return nil, false
		}
		return dateParam(*p.Date), true
	}},
	{"start_time", func(p model.AppointmentPatch) (any, bool) {
		if p.Start == nil {
			return nil, false
		}
		return clockParam(*p.Start), true
	}},
	{"duration_minutes", func(p model.AppointmentPatch) (any, bool) {
		if p.DurationMinutes == nil {
			return nil, false
		}
		return *p.DurationMinutes, true
	}},
	{"motif", optionalText(func(p model.AppointmentPatch) *string { return p.Motif })},
	{"address", optionalText(func(p model.AppointmentPatch) *string { return p.Address })},
	{"doctor_notes", optionalText(func(p model.AppointmentPatch) *string { return p.DoctorNotes })},
	{"cancellation_reason", optionalText(func(p model.AppointmentPatch) *string { return p.CancellationReason })},
}

func optionalText(field func(model.AppointmentPatch) *string) func(model.AppointmentPatch) (any, bool) {
	return func(p model.AppointmentPatch) (any, bool) {
		v := field(p)
		if v == nil {
			return nil, false
		}
		return textParam(*v), true
	}
}

func buildPatch(id string, patch model.AppointmentPatch, at time.Time) (string, []any) {
	args := []any{id}
	sets := make([]string, 0, len(patchColumns)+1)
	for _, c := range patchColumns {
		v, ok := c.value(patch)
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.column, len(args)))
	}
	args = append(args, at)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	sql := "UPDATE appointments SET " + strings.Join(sets, ", ") + " WHERE id = $1 RETURNING " + appointmentColumns
	return sql, args
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		date   time.Time
		start  int
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&date,
		&start,
		&a.DurationMinutes,
		&status,
		&a.Motif,
		&a.Address,
		&a.DoctorNotes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = model.DateOf(date)
	a.Start = model.Clock(start)
	a.Status = model.Status(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
