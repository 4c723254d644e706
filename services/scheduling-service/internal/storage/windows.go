package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

// queries holds the statements shared by the pool and by transactions.
type queries struct {
	q querier
}

const windowColumns = `id::text, provider_id, weekday, EXTRACT(EPOCH FROM start_time)::int, EXTRACT(EPOCH FROM end_time)::int, created_at, updated_at`

func (r queries) GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	row := r.q.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1`, id)
	w, err := scanWindow(row)
	return w, mapErr(err)
}

func (r queries) ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY weekday, start_time
	`, providerID)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r queries) ListWindowsByWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_time
	`, providerID, int16(weekday))
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r queries) InsertWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO availability_windows (id, provider_id, weekday, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+windowColumns,
		w.ID, w.ProviderID, int16(w.Weekday), clockParam(w.Start), clockParam(w.End), w.CreatedAt)
	out, err := scanWindow(row)
	return out, mapErr(err)
}

func (r queries) UpdateWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE availability_windows
		SET weekday = $2, start_time = $3, end_time = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+windowColumns,
		w.ID, int16(w.Weekday), clockParam(w.Start), clockParam(w.End), w.UpdatedAt)
	out, err := scanWindow(row)
	return out, mapErr(err)
}

func (r queries) DeleteWindow(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var (
		w          model.AvailabilityWindow
		weekday    int16
		start, end int
	)
	if err := row.Scan(&w.ID, &w.ProviderID, &weekday, &start, &end, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.Weekday = time.Weekday(weekday)
	w.Start, w.End = model.Clock(start), model.Clock(end)
	return w, nil
}

func collectWindows(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	defer rows.Close()
	var out []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
