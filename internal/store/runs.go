package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// --- Runs ---

const runColumns = `id, workflow_id, status, trigger_type, trigger_data, expected_actions, chain_depth, parent_run_id, started_at, completed_at`

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	data, err := marshalMapOrDefault(run.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}
	if run.Status == "" {
		run.Status = schema.RunStatusRunning
	}
	run.StartedAt = timeOrNow(run.StartedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, string(run.Status), nullStr(string(run.TriggerType)), string(data),
		run.ExpectedActions, run.ChainDepth, nullStr(run.ParentRunID),
		toMillis(run.StartedAt), nullMillis(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs`
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	query += limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// --- Action results (append-only) ---

// AppendResult records result as the next entry of the run's ordered list and
// returns its sequence number. No deduplication is performed.
func (s *LibSQLStore) AppendResult(ctx context.Context, runID string, result *schema.ActionResult) (int64, error) {
	var seq int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		seq, err = appendResult(ctx, tx, runID, result)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func appendResult(ctx context.Context, tx *sql.Tx, runID string, result *schema.ActionResult) (int64, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM workflow_runs WHERE id = ?`, runID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, storeNotFound("run", runID)
	}
	if err != nil {
		return 0, err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM action_results WHERE run_id = ?`, runID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get next sequence: %w", err)
	}

	result.RecordedAt = timeOrNow(result.RecordedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO action_results (run_id, sequence, action_id, action_type, success, message, scheduled, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, result.ActionID, string(result.ActionType), boolInt(result.Success), result.Message,
		boolInt(result.Scheduled), toMillis(result.RecordedAt),
	)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *LibSQLStore) ListResults(ctx context.Context, runID string) ([]schema.ActionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, action_type, success, message, scheduled, recorded_at
		 FROM action_results WHERE run_id = ? ORDER BY sequence`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ActionResult
	for rows.Next() {
		var r schema.ActionResult
		var actionType string
		var recordedAt int64
		if err := rows.Scan(&r.ActionID, &actionType, &r.Success, &r.Message, &r.Scheduled, &recordedAt); err != nil {
			return nil, err
		}
		r.ActionType = schema.ActionType(actionType)
		r.RecordedAt = fromMillis(recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) RunCounts(ctx context.Context, runID string) (schema.RunCounts, error) {
	return runCounts(ctx, s.db, runID)
}

// ReconcileRun derives the run's status from its results and outstanding
// scheduled entries and persists it. The first reconcile that finds nothing
// outstanding stamps completed_at and reports finished; later ones leave the
// stamp alone and report false.
func (s *LibSQLStore) ReconcileRun(ctx context.Context, runID string, now time.Time) (*Run, bool, error) {
	var (
		run      *Run
		finished bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		counts, err := runCounts(ctx, tx, runID)
		if err != nil {
			return err
		}
		status := schema.DeriveRunStatus(counts)

		if _, err := tx.ExecContext(ctx,
			`UPDATE workflow_runs SET status = ? WHERE id = ?`, string(status), runID,
		); err != nil {
			return err
		}
		if status.Terminal() {
			res, err := tx.ExecContext(ctx,
				`UPDATE workflow_runs SET completed_at = ? WHERE id = ? AND completed_at IS NULL`,
				toMillis(now), runID,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			finished = n > 0
		}

		run, err = getRun(ctx, tx, runID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return run, finished, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRun(ctx context.Context, q querier, id string) (*Run, error) {
	row := q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	return run, err
}

func runCounts(ctx context.Context, q querier, runID string) (schema.RunCounts, error) {
	var c schema.RunCounts
	err := q.QueryRowContext(ctx, `SELECT expected_actions FROM workflow_runs WHERE id = ?`, runID).Scan(&c.Expected)
	if err == sql.ErrNoRows {
		return c, storeNotFound("run", runID)
	}
	if err != nil {
		return c, err
	}

	if err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN success = 1 THEN 0 ELSE 1 END), 0)
		 FROM action_results WHERE run_id = ?`, runID,
	).Scan(&c.Succeeded, &c.Failed); err != nil {
		return c, fmt.Errorf("count results: %w", err)
	}

	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_actions WHERE run_id = ? AND status IN ('pending', 'running')`, runID,
	).Scan(&c.Outstanding); err != nil {
		return c, fmt.Errorf("count outstanding: %w", err)
	}
	return c, nil
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var (
		status, data             string
		triggerType, parentRunID sql.NullString
		startedAt                int64
		completedAt              sql.NullInt64
	)
	if err := sc.Scan(&run.ID, &run.WorkflowID, &status, &triggerType, &data,
		&run.ExpectedActions, &run.ChainDepth, &parentRunID, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.TriggerType = schema.TriggerType(triggerType.String)
	run.ParentRunID = parentRunID.String
	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = timePtr(completedAt)

	m, err := unmarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
	}
	run.TriggerData = m
	return run, nil
}
