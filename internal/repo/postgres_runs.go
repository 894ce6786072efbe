package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS outreach_runs (
		id            TEXT PRIMARY KEY,
		branch        TEXT NOT NULL,
		dry_run       BOOLEAN NOT NULL,
		processed     INT NOT NULL,
		failed        INT NOT NULL,
		skipped       INT NOT NULL,
		waiting       INT NOT NULL,
		write_errors  INT NOT NULL,
		notification  TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outreach_rows (
		run_id       TEXT NOT NULL REFERENCES outreach_runs(id) ON DELETE CASCADE,
		sheet_row    INT NOT NULL,
		contact_id   TEXT,
		channel      TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		detail       TEXT,
		write_error  TEXT,
		PRIMARY KEY (run_id, sheet_row)
	)`,
	`CREATE INDEX IF NOT EXISTS outreach_runs_started_at_idx ON outreach_runs (started_at DESC)`,
}

// OpenPostgres opens a pgx-backed pool and checks the connection.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type PostgresRunRepo struct {
	db *sql.DB
}

func NewPostgresRunRepo(db *sql.DB) *PostgresRunRepo {
	return &PostgresRunRepo{db: db}
}

// EnsureSchema creates the audit tables if they do not exist yet.
func (r *PostgresRunRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRunRepo) SaveRun(ctx context.Context, s model.RunSummary) error {
	if s.RunID == "" {
		return errors.New("run id is required")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outreach_runs
			(id, branch, dry_run, processed, failed, skipped, waiting, write_errors,
			 notification, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		s.RunID, string(s.Branch), s.DryRun,
		s.Processed, s.Failed, s.Skipped, s.Waiting, s.WriteErrors,
		nullString(s.Notification), s.StartedAt.UTC(), s.FinishedAt.UTC(),
	); err != nil {
		return err
	}

	for _, row := range s.Rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outreach_rows
				(run_id, sheet_row, contact_id, channel, outcome, detail, write_error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			s.RunID, row.Row, nullString(row.ContactID), string(row.Channel), string(row.Outcome),
			nullString(row.Detail), nullString(row.WriteError),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRunRepo) ListRuns(ctx context.Context, limit, offset int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, branch, dry_run, processed, failed, skipped, waiting, write_errors,
		       notification, started_at, finished_at
		FROM outreach_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var s model.RunSummary
		var branch string
		var notification sql.NullString

		if err := rows.Scan(
			&s.RunID,
			&branch,
			&s.DryRun,
			&s.Processed,
			&s.Failed,
			&s.Skipped,
			&s.Waiting,
			&s.WriteErrors,
			&notification,
			&s.StartedAt,
			&s.FinishedAt,
		); err != nil {
			return nil, err
		}

		s.Branch = model.Branch(branch)
		if notification.Valid {
			s.Notification = notification.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
