// Package users resolves phone numbers to known users. The lookup sits on
// the hot webhook path, so it stays best-effort: failures and misses leave
// the call unowned instead of blocking reconciliation.
package users

import (
	"context"
	"database/sql"
)

// Directory answers "whose number is this". Implementations must treat a
// miss as ("", nil), not an error.
type Directory interface {
	// UserIDByPhone returns the first user owning any of the given numbers.
	UserIDByPhone(ctx context.Context, numbers ...string) (string, error)
}

// MemoryDirectory maps phone number -> user id. Used in tests and as a
// disabled directory (empty map) when user resolution is turned off.
type MemoryDirectory struct {
	ByPhone map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{ByPhone: map[string]string{}}
}

func (d *MemoryDirectory) UserIDByPhone(ctx context.Context, numbers ...string) (string, error) {
	for _, n := range numbers {
		if n == "" {
			continue
		}
		if id, ok := d.ByPhone[n]; ok {
			return id, nil
		}
	}
	return "", nil
}

// PostgresDirectory looks users up by their registered phone number.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) UserIDByPhone(ctx context.Context, numbers ...string) (string, error) {
	for _, n := range numbers {
		if n == "" {
			continue
		}
		var id string
		err := d.db.QueryRowContext(ctx,
			`SELECT user_id FROM users WHERE phone = $1 LIMIT 1`, n,
		).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", nil
}
