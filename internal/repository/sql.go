package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heapscope/pkg/model"
)

// SQLResultRepository is a driver-agnostic result store over database/sql
// with placeholder-style queries. It is used where a plain connection is
// handed in instead of an ORM session.
type SQLResultRepository struct {
	db *sql.DB
}

// NewSQLResultRepository creates a new SQLResultRepository.
func NewSQLResultRepository(db *sql.DB) *SQLResultRepository {
	return &SQLResultRepository{db: db}
}

// SaveResult stores the run row, replacing any earlier result with the
// same run UUID.
func (r *SQLResultRepository) SaveResult(ctx context.Context, res *model.AnalysisResult) error {
	if res == nil || res.RunUUID == "" {
		return fmt.Errorf("result must carry a run UUID")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	query := `
		REPLACE INTO analysis_runs (run_uuid, analyzed_at, snapshot_count, finding_count, result)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		res.RunUUID, res.AnalyzedAt, len(res.Snapshots), len(res.Findings), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetResultByRunUUID loads a stored result by run UUID.
func (r *SQLResultRepository) GetResultByRunUUID(ctx context.Context, runUUID string) (*model.AnalysisResult, error) {
	query := `
		SELECT result FROM analysis_runs WHERE run_uuid = ?
	`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, runUUID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", runUUID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var res model.AnalysisResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	return &res, nil
}

// ListRunUUIDs returns recent run UUIDs, newest first.
func (r *SQLResultRepository) ListRunUUIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_uuid FROM analysis_runs ORDER BY id DESC LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		uuids = append(uuids, uuid)
	}

	return uuids, rows.Err()
}
