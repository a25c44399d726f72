// Package store persists the lifecycle of task runs in sqlite, so serve
// mode can report on past executions and never re-runs a finished task.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

type Run struct {
	UUID          string
	WorkflowID    string
	InProgress    bool
	Success       *bool
	Result        *string // base64 encoded task result
	FailureReason *string
}

type RunRow struct {
	Run
	ID int
}

func (r RunRow) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("uuid: %q, workflow_id: %q, in_progress: %t", r.UUID, r.WorkflowID, r.InProgress))
	if r.Success != nil {
		sb.WriteString(fmt.Sprintf(", success: %t", *r.Success))
	} else {
		sb.WriteString(", success: nil")
	}
	if r.FailureReason != nil {
		sb.WriteString(fmt.Sprintf(", failure_reason: %q", *r.FailureReason))
	} else {
		sb.WriteString(", failure_reason: nil")
	}
	return sb.String()
}

func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	inMemory := dbPath == ""
	if inMemory {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// every pooled connection would otherwise get its own
		// private in-memory database
		db.SetMaxOpenConns(1)
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			workflow_id TEXT NOT NULL DEFAULT '',
			in_progress BOOLEAN NOT NULL,
			success BOOLEAN DEFAULT NULL,
			result TEXT DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Start persists, on success, information that a run identified by 'uuid' is in progress.
// If the run is still in progress, no error is returned,
// if it has already finished ErrAlreadyFinished is returned.
func Start(ctx context.Context, db *sql.DB, uuid, workflowID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var row Run
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	).Scan(&row.InProgress)
	switch {
	case err == nil && row.InProgress:
		return nil
	case err == nil && !row.InProgress:
		return ErrAlreadyFinished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (uuid, workflow_id, in_progress) VALUES (?,?,?);`, uuid, workflowID, true,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Get returns info about a run identified by 'uuid' on success,
// ErrNotFound when it does not exist, error otherwise.
func Get(ctx context.Context, db *sql.DB, uuid string) (RunRow, error) {
	var row RunRow
	err := db.QueryRowContext(ctx,
		`SELECT id, uuid, workflow_id, in_progress, success, result, failure_reason
		 FROM runs WHERE uuid=?`, uuid,
	).Scan(
		&row.ID,
		&row.UUID,
		&row.WorkflowID,
		&row.InProgress,
		&row.Success,
		&row.Result,
		&row.FailureReason,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return RunRow{}, ErrNotFound
	case err != nil:
		return RunRow{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return row, nil
}

// FinishOK stores that the run finished successfully together with its
// encoded result. ErrAlreadyFinished when the run has already finished,
// ErrNotFound when it does not exist.
func FinishOK(ctx context.Context, db *sql.DB, uuid, result string) error {
	return finish(ctx, db, uuid,
		`UPDATE runs SET in_progress = false, success = true, result = ? WHERE uuid = ?;`,
		result)
}

// FinishErr stores that the run failed and keeps the failure reason.
func FinishErr(ctx context.Context, db *sql.DB, uuid, reason string) error {
	return finish(ctx, db, uuid,
		`UPDATE runs SET in_progress = false, success = false, failure_reason = ? WHERE uuid = ?;`,
		reason)
}

func finish(ctx context.Context, db *sql.DB, uuid, update, value string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var row Run
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM runs WHERE uuid=?`, uuid,
	).Scan(&row.InProgress)
	switch {
	case err == nil && !row.InProgress:
		return ErrAlreadyFinished
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, update, value, uuid)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

func Delete(ctx context.Context, db *sql.DB, uuid string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM runs WHERE uuid=?`, uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}

	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}
	return nil
}

func rollback(ctx context.Context, tx *sql.Tx, uuid string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
	}
}
