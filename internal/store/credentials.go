package store

import (
	"context"
	"database/sql"
	"time"
)

// --- Credentials ---
// Values are opaque to the store; internal/secrets encrypts them first.

func (s *LibSQLStore) PutCredential(ctx context.Context, name string, value []byte, now time.Time) error {
	now = timeOrNow(now)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, value, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, toMillis(now), toMillis(now),
	)
	return err
}

func (s *LibSQLStore) GetCredential(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("credential", name)
	}
	return value, err
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "credential", name)
}

func (s *LibSQLStore) ListCredentials(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM credentials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
