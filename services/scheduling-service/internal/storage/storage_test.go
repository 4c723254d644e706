package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	monday   = model.Date{Year: 2026, Month: time.October, Day: 19}
	apptCols = []string{"id", "patient_id", "provider_id", "appointment_date", "start_time", "duration_minutes", "status",
		"motif", "address", "doctor_notes", "cancellation_reason", "created_at", "updated_at"}
)

func apptRow(rows *pgxmock.Rows, id string, start model.Clock, status model.Status) *pgxmock.Rows {
	return rows.AddRow(id, "pat-1", "dr-1", monday.Time(time.UTC), int(start), 30, string(status), "checkup", "", "", "", testNow, testNow)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestListActiveAppointments(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	rows := pgxmock.NewRows(apptCols)
	apptRow(rows, "a-1", model.NewClock(9, 0, 0), model.StatusPlanned)
	apptRow(rows, "a-2", model.NewClock(10, 0, 0), model.StatusConfirmed)
	mock.ExpectQuery("FROM appointments").
		WithArgs("dr-1", dateParam(monday)).
		WillReturnRows(rows)

	got, err := s.ListActiveAppointments(context.Background(), "dr-1", monday)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, monday, got[0].Date)
	require.Equal(t, model.NewClock(9, 0, 0), got[0].Start)
	require.Equal(t, model.StatusConfirmed, got[1].Status)
	require.Equal(t, model.NewClock(10, 30, 0), got[1].End())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentNotFound(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	mock.ExpectQuery("FROM appointments WHERE id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err := s.GetAppointment(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildPatchEnumeratesColumns(t *testing.T) {
	start := model.NewClock(14, 0, 0)
	notes := "fasting"
	sql, args := buildPatch("a-1", model.AppointmentPatch{Start: &start, DoctorNotes: &notes}, testNow)

	require.True(t, strings.HasPrefix(sql, "UPDATE appointments SET start_time = $2, doctor_notes = $3, updated_at = $4 WHERE id = $1"), sql)
	require.Len(t, args, 4)
	require.Equal(t, "a-1", args[0])
	require.Equal(t, clockParam(start), args[1])
	require.Equal(t, textParam(notes), args[2])
	require.Equal(t, testNow, args[3])

	sql, args = buildPatch("a-1", model.AppointmentPatch{}, testNow)
	require.Contains(t, sql, "SET updated_at = $2 WHERE")
	require.Len(t, args, 2)
}

func TestWithLockBookingTransaction(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{Isolation: pgx.Serializable})
	key := store.AppointmentLockKey("dr-1", monday)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(key).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("a-1", "pat-1", "dr-1", dateParam(monday), clockParam(model.NewClock(9, 0, 0)), 30, "planned",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), testNow).
		WillReturnRows(apptRow(pgxmock.NewRows(apptCols), "a-1", model.NewClock(9, 0, 0), model.StatusPlanned))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), outbox.AggregateAppointment, "a-1", outbox.AppointmentBooked, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt := model.Appointment{ID: "a-1", PatientID: "pat-1", ProviderID: "dr-1", Date: monday, Start: model.NewClock(9, 0, 0), DurationMinutes: 30, Status: model.StatusPlanned, CreatedAt: testNow}
	err := s.WithLock(context.Background(), key, func(ctx context.Context, tx store.Tx) error {
		saved, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		evt, err := outbox.NewAppointmentEvent(ctx, outbox.AppointmentBooked, saved, testNow)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockMapsConstraintErrors(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("k").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("a-2", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectRollback()

	err := s.WithLock(context.Background(), "k", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertAppointment(ctx, model.Appointment{ID: "a-2", Date: monday})
		return err
	})
	require.ErrorIs(t, err, store.ErrOverlap)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	err = s.InTx(context.Background(), func(context.Context, store.Tx) error { return nil })
	require.ErrorIs(t, err, store.ErrSerialization)

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "original pg error stays in the chain")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusZeroRowsIsNoop(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a-1", []string{"in_progress"}, "finished", testNow, (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	var ok bool
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		_, ok, err = tx.TransitionStatus(ctx, "a-1", []model.Status{model.StatusInProgress}, model.StatusFinished, nil, testNow)
		return err
	})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepQueries(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})
	now := model.NewClock(9, 10, 0)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(store.SweepLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SET status = 'in_progress'").
		WithArgs(dateParam(monday), clockParam(now), testNow).
		WillReturnRows(apptRow(pgxmock.NewRows(apptCols), "a-1", model.NewClock(9, 0, 0), model.StatusInProgress))
	mock.ExpectQuery("SET status = 'finished'").
		WithArgs(dateParam(monday), clockParam(now), testNow).
		WillReturnRows(pgxmock.NewRows(apptCols))
	mock.ExpectCommit()

	err := s.WithLock(context.Background(), store.SweepLockKey, func(ctx context.Context, tx store.Tx) error {
		started, err := tx.SweepStart(ctx, monday, now, testNow)
		if err != nil {
			return err
		}
		require.Len(t, started, 1)
		finished, err := tx.SweepFinish(ctx, monday, now, testNow)
		require.Empty(t, finished)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWindowNotFound(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("DELETE FROM availability_windows").WithArgs("w-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteWindow(ctx, "w-1")
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListWindowsByWeekday(t *testing.T) {
	mock := newMock(t)
	s := New(mock, Options{})

	rows := pgxmock.NewRows([]string{"id", "provider_id", "weekday", "start_time", "end_time", "created_at", "updated_at"}).
		AddRow("w-1", "dr-1", int16(1), int(model.NewClock(8, 0, 0)), int(model.NewClock(12, 0, 0)), testNow, testNow)
	mock.ExpectQuery("FROM availability_windows").WithArgs("dr-1", int16(time.Monday)).WillReturnRows(rows)

	got, err := s.ListWindowsByWeekday(context.Background(), "dr-1", time.Monday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, time.Monday, got[0].Weekday)
	require.Equal(t, model.NewClock(12, 0, 0), got[0].End)
}

func TestParseIsolation(t *testing.T) {
	lvl, err := ParseIsolation("serializable")
	require.NoError(t, err)
	require.Equal(t, pgx.Serializable, lvl)
	_, err = ParseIsolation("snapshot")
	require.Error(t, err)
}
