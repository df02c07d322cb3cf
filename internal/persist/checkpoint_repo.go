package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/parloop/parloop/internal/core/mesh"
	"go.uber.org/zap"
)

// ErrNoCheckpoint is returned by Restore when the run has no saved step.
var ErrNoCheckpoint = errors.New("no checkpoint")

// DatRow is one dat's values at a checkpointed step. Integer dats travel
// in Ints, floating dats in Floats.
type DatRow struct {
	Dat    string
	Set    string
	Type   mesh.ElemType
	Dim    int
	Floats []float64
	Ints   []int64
}

type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Save writes every dat of c under (run, step) in a single transaction.
// An existing checkpoint for the same step is replaced.
func (r *CheckpointRepo) Save(ctx context.Context, run string, step int, c *mesh.Context) error {
	rows := make([]DatRow, 0, 8)
	for _, d := range c.Dats() {
		row, err := rowFromDat(c, d)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM dat_checkpoints WHERE run = $1 AND step = $2`, run, step,
	); err != nil {
		return fmt.Errorf("checkpoint clear: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO dat_checkpoints (run, step, dat, set_name, elem_type, dim, floats, ints)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run, step, row.Dat, row.Set, row.Type.String(), row.Dim, row.Floats, row.Ints,
		); err != nil {
			return fmt.Errorf("checkpoint insert %s: %w", row.Dat, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("checkpoint commit: %w", err)
	}
	r.db.log.Debug("checkpoint saved",
		zap.String("run", run), zap.Int("step", step), zap.Int("dats", len(rows)))
	return nil
}

// LatestStep returns the highest saved step of run.
func (r *CheckpointRepo) LatestStep(ctx context.Context, run string) (int, error) {
	var step *int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT MAX(step) FROM dat_checkpoints WHERE run = $1`, run,
	).Scan(&step)
	if err != nil {
		return 0, err
	}
	if step == nil {
		return 0, fmt.Errorf("run %q: %w", run, ErrNoCheckpoint)
	}
	return *step, nil
}

// Load returns the rows saved for (run, step).
func (r *CheckpointRepo) Load(ctx context.Context, run string, step int) ([]DatRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT dat, set_name, elem_type, dim, floats, ints
		 FROM dat_checkpoints WHERE run = $1 AND step = $2 ORDER BY dat`, run, step,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DatRow, error) {
		var (
			d   DatRow
			typ string
		)
		if err := row.Scan(&d.Dat, &d.Set, &typ, &d.Dim, &d.Floats, &d.Ints); err != nil {
			return d, err
		}
		t, err := mesh.ParseElemType(typ)
		if err != nil {
			return d, err
		}
		d.Type = t
		return d, nil
	})
}

// Restore loads the latest checkpoint of run into the matching dats of c
// and returns its step. Dats are matched by name; rows for unknown dats
// are skipped.
func (r *CheckpointRepo) Restore(ctx context.Context, run string, c *mesh.Context) (int, error) {
	step, err := r.LatestStep(ctx, run)
	if err != nil {
		return 0, err
	}
	rows, err := r.Load(ctx, run, step)
	if err != nil {
		return 0, fmt.Errorf("checkpoint load: %w", err)
	}
	restored := 0
	for _, row := range rows {
		d, ok := c.DatByName(row.Dat)
		if !ok {
			r.db.log.Warn("checkpoint dat not declared", zap.String("dat", row.Dat))
			continue
		}
		if err := applyRow(c, d, row); err != nil {
			return 0, err
		}
		restored++
	}
	r.db.log.Info("checkpoint restored",
		zap.String("run", run), zap.Int("step", step), zap.Int("dats", restored))
	return step, nil
}

func rowFromDat(c *mesh.Context, d *mesh.Dat) (DatRow, error) {
	row := DatRow{Dat: d.Name, Type: d.Type, Dim: d.Dim}
	if s, ok := c.Set(d.Set); ok {
		row.Set = s.Name
	}
	switch v := d.Storage().(type) {
	case []int32:
		row.Ints = convert[int32, int64](v)
	case []int64:
		row.Ints = append([]int64(nil), v...)
	case []float32:
		row.Floats = convert[float32, float64](v)
	case []float64:
		row.Floats = append([]float64(nil), v...)
	default:
		return row, fmt.Errorf("checkpoint %q: unsupported storage %T", d.Name, v)
	}
	return row, nil
}

func applyRow(c *mesh.Context, d *mesh.Dat, row DatRow) error {
	if row.Type != d.Type || row.Dim != d.Dim {
		return fmt.Errorf("checkpoint %q: saved %d %s, declared %d %s: %w",
			row.Dat, row.Dim, row.Type, d.Dim, d.Type, mesh.ErrShapeMismatch)
	}
	var values any
	switch d.Type {
	case mesh.Int32:
		values = convert[int64, int32](row.Ints)
	case mesh.Int64:
		values = row.Ints
	case mesh.Float32:
		values = convert[float64, float32](row.Floats)
	case mesh.Float64:
		values = row.Floats
	}
	return c.Load(d.ID, values)
}

func convert[S, D int32 | int64 | float32 | float64](src []S) []D {
	out := make([]D, len(src))
	for i, v := range src {
		out[i] = D(v)
	}
	return out
}
