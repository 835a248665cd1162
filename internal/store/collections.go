package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hollis-dev/basalt/internal/schema"
)

// SaveCollection upserts a collection definition. Implements
// schema.Persister.
func (s *Store) SaveCollection(ctx context.Context, c *schema.Collection) error {
	def, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal collection %q: %w", c.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, kind, definition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			definition = excluded.definition
	`, c.ID, c.Name, string(c.Kind), string(def))
	if err != nil {
		return fmt.Errorf("save collection %q: %w", c.Name, err)
	}
	return nil
}

// DeleteCollection removes a collection definition. Implements
// schema.Persister. Records must already be gone; the foreign key on
// records(collection_id) rejects the delete otherwise.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", id, err)
	}
	return nil
}

// LoadCollections reads every persisted collection definition.
// Called once at startup to seed the registry.
func (s *Store) LoadCollections(ctx context.Context) ([]*schema.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM collections ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []*schema.Collection
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		var c schema.Collection
		if err := json.Unmarshal([]byte(def), &c); err != nil {
			return nil, fmt.Errorf("unmarshal collection: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return out, nil
}

// ExportCollections writes every collection definition as a JSON
// array, the portable snapshot format the CLI exposes.
func (s *Store) ExportCollections(ctx context.Context) ([]byte, error) {
	cols, err := s.LoadCollections(ctx)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		cols = []*schema.Collection{}
	}
	return json.MarshalIndent(cols, "", "  ")
}
