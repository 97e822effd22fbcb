package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// --- Trigger schedules ---

const scheduleColumns = `workflow_id, cron_expression, next_run_at, last_run_at, enabled, created_at`

func (s *LibSQLStore) UpsertTriggerSchedule(ctx context.Context, ts *TriggerSchedule) error {
	ts.CreatedAt = timeOrNow(ts.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET
		     cron_expression = excluded.cron_expression,
		     next_run_at = excluded.next_run_at,
		     enabled = excluded.enabled`,
		ts.WorkflowID, ts.CronExpr, toMillis(ts.NextRunAt), nullMillis(ts.LastRunAt),
		boolInt(ts.Enabled), toMillis(ts.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTriggerSchedule(ctx context.Context, workflowID string) (*TriggerSchedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM trigger_schedules WHERE workflow_id = ?`, workflowID)
	ts, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("trigger schedule", workflowID)
	}
	return ts, err
}

func (s *LibSQLStore) ListTriggerSchedules(ctx context.Context, filter TriggerScheduleFilter) ([]*TriggerSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM trigger_schedules`
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.DueBefore != nil {
		where = append(where, "enabled = 1", "next_run_at <= ?")
		args = append(args, toMillis(*filter.DueBefore))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_run_at, workflow_id"
	query += limitOffset(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TriggerSchedule
	for rows.Next() {
		ts, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) MarkTriggerScheduleRun(ctx context.Context, workflowID string, lastRun, nextRun time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trigger_schedules SET last_run_at = ?, next_run_at = ? WHERE workflow_id = ?`,
		toMillis(lastRun), toMillis(nextRun), workflowID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "trigger schedule", workflowID)
}

func (s *LibSQLStore) DeleteTriggerSchedule(ctx context.Context, workflowID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trigger_schedules WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "trigger schedule", workflowID)
}

func scanSchedule(sc scanner) (*TriggerSchedule, error) {
	ts := &TriggerSchedule{}
	var next, created int64
	var last sql.NullInt64
	if err := sc.Scan(&ts.WorkflowID, &ts.CronExpr, &next, &last, &ts.Enabled, &created); err != nil {
		return nil, err
	}
	ts.NextRunAt = fromMillis(next)
	ts.LastRunAt = timePtr(last)
	ts.CreatedAt = fromMillis(created)
	return ts, nil
}
