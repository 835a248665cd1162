package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LedgerEntry is one row of the migration ledger. AppliedAt nil means
// the migration is pending.
type LedgerEntry struct {
	Version   string
	Name      string
	AppliedAt *time.Time
}

// Applied reports whether the entry has been applied.
func (e LedgerEntry) Applied() bool { return e.AppliedAt != nil }

// EnsureLedgerEntry registers a migration version in the ledger as
// pending, keeping an existing row (and its applied_at) untouched.
func (s *Store) EnsureLedgerEntry(ctx context.Context, version, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO migrations (version, name, applied_at)
		VALUES (?, ?, NULL)
		ON CONFLICT(version) DO NOTHING
	`, version, name)
	if err != nil {
		return fmt.Errorf("ensure ledger entry %s: %w", version, err)
	}
	return nil
}

// MarkApplied stamps a migration as applied at the given time.
func (s *Store) MarkApplied(ctx context.Context, version string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE migrations SET applied_at = ? WHERE version = ?
	`, at.UTC().Format(timeLayout), version)
	if err != nil {
		return fmt.Errorf("mark applied %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark applied %s: version not in ledger", version)
	}
	return nil
}

// MarkPending clears a migration's applied stamp after a rollback.
func (s *Store) MarkPending(ctx context.Context, version string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE migrations SET applied_at = NULL WHERE version = ?
	`, version)
	if err != nil {
		return fmt.Errorf("mark pending %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark pending %s: version not in ledger", version)
	}
	return nil
}

// Ledger returns every ledger row in ascending version order.
func (s *Store) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, name, applied_at
		FROM migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var appliedAt sql.NullString
		if err := rows.Scan(&e.Version, &e.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if appliedAt.Valid {
			t, err := time.Parse(timeLayout, appliedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse applied_at for %s: %w", e.Version, err)
			}
			e.AppliedAt = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}
