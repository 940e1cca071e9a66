package calls

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"casevoice/pkg/utils"
)

// PostgresStore persists call records via database/sql (pgx stdlib driver).
//
// Mutate takes a row lock (SELECT ... FOR UPDATE) for the duration of the
// merge, so two webhooks for the same provider_call_id can never interleave
// their read-then-write and lose an update.
type PostgresStore struct {
	db  *sql.DB
	Now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, Now: time.Now}
}

const callColumns = `provider_call_id, direction, from_number, to_number, status,
	duration_seconds, recording_url, transcript, owner_user_id, contact_name,
	started_at, ended_at, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidRequest
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM call_records WHERE provider_call_id = $1`,
		providerCallID,
	)
	return scanCall(row)
}

func (s *PostgresStore) Mutate(ctx context.Context, providerCallID string, fn MutateFn) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidRequest
	}

	var out CallRecord
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		now := s.Now().UTC()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO call_records (provider_call_id, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $3)
			 ON CONFLICT (provider_call_id) DO NOTHING`,
			providerCallID, StatusRinging, now,
		)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created := inserted == 1

		row := tx.QueryRowContext(ctx,
			`SELECT `+callColumns+` FROM call_records WHERE provider_call_id = $1 FOR UPDATE`,
			providerCallID,
		)
		rec, err := scanCall(row)
		if err != nil {
			return err
		}
		if created {
			// Present the caller with a blank record, not the insert placeholder.
			rec = CallRecord{ProviderCallID: providerCallID, CreatedAt: now}
		}

		if err := fn(&rec, created); err != nil {
			return err
		}
		rec.ProviderCallID = providerCallID
		rec.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE call_records SET
				direction = $2, from_number = $3, to_number = $4, status = $5,
				duration_seconds = $6, recording_url = $7, transcript = $8,
				owner_user_id = $9, contact_name = $10, started_at = $11,
				ended_at = $12, updated_at = $13
			 WHERE provider_call_id = $1`,
			rec.ProviderCallID, rec.Direction, rec.FromNumber, rec.ToNumber, rec.Status,
			rec.DurationSeconds, nullStr(rec.RecordingURL), nullStr(rec.Transcript),
			nullStr(rec.OwnerUserID), nullStr(rec.ContactName), rec.StartedAt,
			rec.EndedAt, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return CallRecord{}, err
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, f HistoryFilter) ([]CallRecord, int, error) {
	f = f.withDefaults()

	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.OwnerUserID != "" {
		where = append(where, "owner_user_id = "+arg(f.OwnerUserID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.Direction != "" {
		where = append(where, "direction = "+arg(f.Direction))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= "+arg(f.To))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf(
			"(from_number ILIKE %s OR to_number ILIKE %s OR contact_name ILIKE %s)", p, p, p))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_records WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM call_records WHERE `+cond+
			` ORDER BY created_at DESC LIMIT `+arg(f.Limit)+` OFFSET `+arg(offset),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []CallRecord{}
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) SetTranscript(ctx context.Context, providerCallID, transcript string) error {
	if providerCallID == "" {
		return ErrInvalidRequest
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_records SET transcript = $2, updated_at = $3 WHERE provider_call_id = $1`,
		providerCallID, transcript, s.Now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (CallRecord, error) {
	var (
		rec                                        CallRecord
		direction, from, to                        sql.NullString
		recURL, transcript, owner, contact, status sql.NullString
		duration                                   sql.NullInt64
		startedAt, endedAt                         sql.NullTime
	)
	err := r.Scan(
		&rec.ProviderCallID, &direction, &from, &to, &status,
		&duration, &recURL, &transcript, &owner, &contact,
		&startedAt, &endedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, err
	}
	rec.Direction = Direction(direction.String)
	rec.FromNumber = from.String
	rec.ToNumber = to.String
	rec.Status = Status(status.String)
	if duration.Valid {
		d := int(duration.Int64)
		rec.DurationSeconds = &d
	}
	rec.RecordingURL = recURL.String
	rec.Transcript = transcript.String
	rec.OwnerUserID = owner.String
	rec.ContactName = contact.String
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return rec, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
