package store

import (
	"context"
	"fmt"
)

// Backup writes a consistent snapshot of the database to dst using
// SQLite's VACUUM INTO, which is safe while readers are active.
func (s *Store) Backup(ctx context.Context, dst string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("backup to %s: %w", dst, err)
	}
	return nil
}
