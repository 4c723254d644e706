package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/model"
)

// Times of day are written as pgtype.Time and read back as EXTRACT(EPOCH ...) seconds.

func clockParam(c model.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Second/time.Microsecond), Valid: true}
}

func dateParam(d model.Date) pgtype.Date {
	return pgtype.Date{Time: d.Time(time.UTC), Valid: true}
}

func textParam(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func statusParams(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
