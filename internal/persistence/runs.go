package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RunRecorder tracks batch runs in auction.runs. One row per invocation:
// inserted when the run starts, finalized with counts when it ends.
type RunRecorder struct {
	db *sql.DB
}

// RunParams captures the effective run configuration. Stored as JSONB so
// a past run can be reproduced from its row alone.
type RunParams struct {
	DataDir  string   `json:"data_dir"`
	Tickers  []string `json:"tickers,omitempty"`
	Start    string   `json:"start,omitempty"`
	End      string   `json:"end,omitempty"`
	Interval string   `json:"interval,omitempty"`
	Workers  int      `json:"workers"`
}

func NewRunRecorder(db *sql.DB) *RunRecorder {
	return &RunRecorder{db: db}
}

// Start inserts the run row with started_at = now.
func (rr *RunRecorder) Start(ctx context.Context, runID uuid.UUID, params RunParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal run params: %w", err)
	}
	_, err = rr.db.ExecContext(ctx, `
		INSERT INTO auction.runs (run_id, started_at, params)
		VALUES ($1, NOW(), $2)
	`, runID, data)
	return err
}

// Finalize records the outcome counts and stamps finished_at.
func (rr *RunRecorder) Finalize(ctx context.Context, runID uuid.UUID, groupsTotal, groupsFailed, recordsWritten int) error {
	res, err := rr.db.ExecContext(ctx, `
		UPDATE auction.runs
		SET finished_at = NOW(),
		    groups_total = $2,
		    groups_failed = $3,
		    records_written = $4
		WHERE run_id = $1
	`, runID, groupsTotal, groupsFailed, recordsWritten)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}
