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

// --- Notifications ---

func (s *LibSQLStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.UserID == "" {
		return schema.NewError(schema.ErrCodeValidation, "notification requires a user id")
	}
	n.CreatedAt = timeOrNow(n.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, deal_id, alert_type, title, message, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, nullStr(n.DealID), n.AlertType, n.Title, n.Message, boolInt(n.Read), toMillis(n.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error) {
	query := `SELECT id, user_id, deal_id, alert_type, title, message, is_read, created_at FROM notifications`
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.DealID != "" {
		where = append(where, "deal_id = ?")
		args = append(args, filter.DealID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	query += limitOffset(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var dealID sql.NullString
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &dealID, &n.AlertType, &n.Title, &n.Message, &n.Read, &created); err != nil {
			return nil, err
		}
		n.DealID = dealID.String
		n.CreatedAt = fromMillis(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- Deals ---

func (s *LibSQLStore) UpsertDeal(ctx context.Context, deal *Deal) error {
	fields, err := marshalMapOrDefault(deal.Fields)
	if err != nil {
		return fmt.Errorf("marshal deal fields: %w", err)
	}
	deal.UpdatedAt = timeOrNow(deal.UpdatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deals (id, fields, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		deal.ID, string(fields), toMillis(deal.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDeal(ctx context.Context, id string) (*Deal, error) {
	d := &Deal{ID: id}
	var fields string
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT fields, updated_at FROM deals WHERE id = ?`, id).Scan(&fields, &updated)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("deal", id)
	}
	if err != nil {
		return nil, err
	}
	if d.Fields, err = unmarshalMap(fields); err != nil {
		return nil, fmt.Errorf("unmarshal deal fields: %w", err)
	}
	d.UpdatedAt = fromMillis(updated)
	return d, nil
}

// UpdateDealField sets one top-level field on a deal record.
func (s *LibSQLStore) UpdateDealField(ctx context.Context, dealID, field string, value any, now time.Time) error {
	if field == "" || strings.ContainsAny(field, `".$[]`) {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid field name %q", field)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "field %q value is not JSON encodable", field).WithCause(err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET fields = json_set(fields, ?, json(?)), updated_at = ? WHERE id = ?`,
		`$."`+field+`"`, string(encoded), toMillis(now), dealID,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update deal %q", dealID).WithCause(err)
	}
	return checkRowsAffected(res, "deal", dealID)
}
