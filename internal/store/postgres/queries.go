package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/harvest/internal/model"
	"github.com/alfredjeanlab/harvest/internal/store"
)

// runColumns is the column list used for SELECT statements on the runs table.
const runColumns = `id, filter, time_limit_seconds, event_limit, output_path,
	status, events_admitted, records_written, error, started_at, finished_at`

// DefaultListLimit applies when ListRuns is called with a non-positive limit.
const DefaultListLimit = 20

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func queryCreateRun(ctx context.Context, db executor, r *model.Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (
			id, filter, time_limit_seconds, event_limit, output_path,
			status, events_admitted, records_written, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID,
		r.Filter,
		r.TimeLimitSeconds,
		r.EventLimit,
		r.OutputPath,
		string(r.Status),
		r.EventsAdmitted,
		r.RecordsWritten,
		nullString(r.Error),
		r.StartedAt,
		nullTimePtr(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

func queryFinishRun(ctx context.Context, db executor, r *model.Run) error {
	res, err := db.ExecContext(ctx, `
		UPDATE runs SET
			status = $2, events_admitted = $3, records_written = $4,
			error = $5, finished_at = $6
		WHERE id = $1`,
		r.ID,
		string(r.Status),
		r.EventsAdmitted,
		r.RecordsWritten,
		nullString(r.Error),
		nullTimePtr(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryGetRun(ctx context.Context, db executor, id string) (*model.Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

func queryListRuns(ctx context.Context, db executor, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// scanRun scans a single row in runColumns order.
func scanRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		status     string
		errText    sql.NullString
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID,
		&r.Filter,
		&r.TimeLimitSeconds,
		&r.EventLimit,
		&r.OutputPath,
		&status,
		&r.EventsAdmitted,
		&r.RecordsWritten,
		&errText,
		&r.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Error = errText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
