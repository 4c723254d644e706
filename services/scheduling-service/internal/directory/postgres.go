package directory

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGChecker reads the patients and providers tables replicated from the profile service.
type PGChecker struct {
	q rowQuerier
}

func NewPGChecker(q rowQuerier) *PGChecker {
	return &PGChecker{q: q}
}

func (c *PGChecker) PatientExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := c.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (c *PGChecker) ProviderExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := c.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND active)`, id).Scan(&ok)
	return ok, err
}
