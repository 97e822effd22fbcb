package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// --- Scheduled actions ---

const scheduledColumns = `id, run_id, workflow_id, action, trigger_data, scheduled_for, status, claimed_at, attempts, executed_at, error, created_at`

// DefaultClaimLimit caps how many entries one sweep claims.
const DefaultClaimLimit = 50

func (s *LibSQLStore) EnqueueScheduledAction(ctx context.Context, sa *ScheduledAction) error {
	action, err := json.Marshal(sa.Action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	data, err := marshalMapOrDefault(sa.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}
	if sa.Status == "" {
		sa.Status = schema.ScheduledPending
	}
	sa.CreatedAt = timeOrNow(sa.CreatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_actions (`+scheduledColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sa.ID, sa.RunID, sa.WorkflowID, string(action), string(data), toMillis(sa.ScheduledFor),
		string(sa.Status), nullMillis(sa.ClaimedAt), sa.Attempts, nullMillis(sa.ExecutedAt),
		nullStr(sa.Error), toMillis(sa.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledAction(ctx context.Context, id string) (*ScheduledAction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduledColumns+` FROM scheduled_actions WHERE id = ?`, id)
	sa, err := scanScheduled(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled action", id)
	}
	return sa, err
}

func (s *LibSQLStore) ListScheduledActions(ctx context.Context, filter ScheduledActionFilter) ([]*ScheduledAction, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_actions`
	var where []string
	var args []any

	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_for, id"
	query += limitOffset(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduled(rows)
}

// ClaimDueScheduledActions atomically moves up to params.Limit due entries to
// running and returns them. An entry is due when it is pending with
// scheduled_for <= Now, or running with a lease claimed at or before
// StaleBefore. The single UPDATE ... RETURNING guarantees two overlapping
// callers never receive the same entry.
func (s *LibSQLStore) ClaimDueScheduledActions(ctx context.Context, params ClaimParams) ([]*ScheduledAction, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultClaimLimit
	}
	now := toMillis(params.Now)
	stale := int64(-1)
	if !params.StaleBefore.IsZero() {
		stale = toMillis(params.StaleBefore)
	}

	rows, err := s.db.QueryContext(ctx,
		`UPDATE scheduled_actions
		 SET status = 'running', claimed_at = ?, attempts = attempts + 1
		 WHERE id IN (
		     SELECT id FROM scheduled_actions
		     WHERE (status = 'pending' AND scheduled_for <= ?)
		        OR (status = 'running' AND claimed_at <= ?)
		     ORDER BY scheduled_for, id
		     LIMIT ?
		 )
		 RETURNING `+scheduledColumns,
		now, now, stale, limit,
	)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "claim due scheduled actions").WithCause(err)
	}
	defer rows.Close()

	claimed, err := collectScheduled(rows)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read claimed scheduled actions").WithCause(err)
	}
	return claimed, nil
}

// RenewScheduledLease moves the lease held by claim forward to now. Once a
// later claim has taken the entry over, claim no longer owns it and the
// renewal fails with CONFLICT.
func (s *LibSQLStore) RenewScheduledLease(ctx context.Context, claim *ScheduledAction, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET claimed_at = ?
		 WHERE id = ? AND status = 'running' AND attempts = ?`,
		toMillis(now), claim.ID, claim.Attempts,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "renew lease on scheduled action %q", claim.ID).WithCause(err)
	}
	return checkOwned(ctx, s.db, res, claim, schema.ScheduledRunning)
}

// FinishScheduledAction moves the entry owned by claim to completed or
// failed, according to result, and appends result to the claim's run. Both
// writes commit together, so a terminal entry always has its result.
func (s *LibSQLStore) FinishScheduledAction(ctx context.Context, claim *ScheduledAction, result *schema.ActionResult) (int64, error) {
	to := schema.ScheduledCompleted
	var errMsg any
	if !result.Success {
		to = schema.ScheduledFailed
		errMsg = result.Message
	}
	result.RecordedAt = timeOrNow(result.RecordedAt)

	var seq int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE scheduled_actions SET status = ?, executed_at = ?, error = ?
			 WHERE id = ? AND status = 'running' AND attempts = ?`,
			string(to), toMillis(result.RecordedAt), errMsg, claim.ID, claim.Attempts,
		)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "finish scheduled action %q", claim.ID).WithCause(err)
		}
		if err := checkOwned(ctx, tx, res, claim, to); err != nil {
			return err
		}
		seq, err = appendResult(ctx, tx, claim.RunID, result)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// checkOwned explains a conditional update on claim that matched no row.
func checkOwned(ctx context.Context, q querier, res sql.Result, claim *ScheduledAction, to schema.ScheduledActionStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var (
		status   string
		attempts int
	)
	err = q.QueryRowContext(ctx, `SELECT status, attempts FROM scheduled_actions WHERE id = ?`, claim.ID).Scan(&status, &attempts)
	if err == sql.ErrNoRows {
		return storeNotFound("scheduled action", claim.ID)
	}
	if err != nil {
		return err
	}
	if attempts != claim.Attempts {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"scheduled action %q was reclaimed (attempt %d, held by attempt %d)", claim.ID, claim.Attempts, attempts)
	}
	if from := schema.ScheduledActionStatus(status); from.CanTransition(to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"scheduled action %q is %s and has not been claimed", claim.ID, from)
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"scheduled action %q cannot move from %s to %s", claim.ID, status, to)
}

func collectScheduled(rows *sql.Rows) ([]*ScheduledAction, error) {
	var out []*ScheduledAction
	for rows.Next() {
		sa, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func scanScheduled(sc scanner) (*ScheduledAction, error) {
	sa := &ScheduledAction{}
	var (
		action, data          string
		status                string
		scheduledFor, created int64
		claimedAt, executedAt sql.NullInt64
		errMsg                sql.NullString
	)
	if err := sc.Scan(&sa.ID, &sa.RunID, &sa.WorkflowID, &action, &data, &scheduledFor,
		&status, &claimedAt, &sa.Attempts, &executedAt, &errMsg, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(action), &sa.Action); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	m, err := unmarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
	}
	sa.TriggerData = m
	sa.ScheduledFor = fromMillis(scheduledFor)
	sa.Status = schema.ScheduledActionStatus(status)
	sa.ClaimedAt = timePtr(claimedAt)
	sa.ExecutedAt = timePtr(executedAt)
	sa.Error = errMsg.String
	sa.CreatedAt = fromMillis(created)
	return sa, nil
}
