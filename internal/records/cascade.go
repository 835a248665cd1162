package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// referencer is a relation field in some collection that points at a
// given target collection.
type referencer struct {
	collection *schema.Collection
	field      schema.Field
}

// referencersOf finds every relation field across the registry whose
// target resolves to collectionID.
func (s *Service) referencersOf(collectionID string) []referencer {
	var out []referencer
	for _, col := range s.registry.List(true) {
		for _, f := range col.RelationFields() {
			targetID, err := s.registry.ResolveRelationTarget(f.Options.Relation.CollectionID)
			if err != nil {
				// Dangling target: nothing can reference through it.
				continue
			}
			if targetID == collectionID {
				out = append(out, referencer{collection: col, field: f})
			}
		}
	}
	return out
}

// cascadeDelete removes target and, depth-first, every record that
// references it through a cascadeDelete relation. A reference through
// a non-cascading relation aborts the whole transaction: deletes never
// leave dangling relation values behind.
//
// The visited set makes reference cycles terminate; each record is
// deleted at most once.
func (s *Service) cascadeDelete(ctx context.Context, tx *store.Tx, target *schema.Record) ([]*schema.Record, error) {
	return s.cascadeDeleteFrom(ctx, tx, target, make(map[string]bool))
}

// cascadeDeleteFrom shares one visited set across multiple roots so a
// record swept by an earlier root's cascade is never deleted or
// reported twice.
func (s *Service) cascadeDeleteFrom(ctx context.Context, tx *store.Tx, target *schema.Record, visited map[string]bool) ([]*schema.Record, error) {
	var deleted []*schema.Record

	var walk func(rec *schema.Record) error
	walk = func(rec *schema.Record) error {
		if visited[rec.ID] {
			return nil
		}
		visited[rec.ID] = true

		for _, ref := range s.referencersOf(rec.CollectionID) {
			rows, err := tx.ListRecords(ctx, ref.collection.ID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if visited[row.ID] || !referencesID(row, ref.field, rec.ID) {
					continue
				}
				if !ref.field.Options.Relation.CascadeDelete {
					return &ReferentialIntegrityError{
						Collection: ref.collection.Name,
						Field:      ref.field.Name,
						RecordID:   rec.ID,
					}
				}
				if err := walk(row); err != nil {
					return err
				}
			}
		}

		if err := tx.ReleaseUniques(ctx, rec.ID); err != nil {
			return err
		}
		if err := tx.DeleteRecord(ctx, rec.ID); err != nil {
			return err
		}
		deleted = append(deleted, rec)
		return nil
	}

	if err := walk(target); err != nil {
		return nil, err
	}
	return deleted, nil
}

// referencesID reports whether rec's relation field value contains id.
func referencesID(rec *schema.Record, f schema.Field, id string) bool {
	v, ok := rec.Data[f.Name]
	if !ok || v == nil {
		return false
	}
	for _, rid := range relationIDs(v) {
		if rid == id {
			return true
		}
	}
	return false
}

// DropCollection removes a collection definition together with all of
// its records. Records in other collections that reference the dropped
// one are cascade-deleted or, for non-cascading relations, cause the
// drop to fail with ReferentialIntegrityError. Admin only.
func (s *Service) DropCollection(ctx context.Context, nameOrID string, actor auth.Context) error {
	if !actor.IsAdmin {
		return &ForbiddenError{Collection: nameOrID, Operation: schema.OpDelete, Reason: "dropping a collection requires admin"}
	}

	// Schema mutation: exclude concurrent record writes entirely.
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	col, err := s.registry.Get(nameOrID)
	if err != nil {
		return err
	}

	var removed []*schema.Record
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		rows, err := tx.ListRecords(ctx, col.ID)
		if err != nil {
			return err
		}
		visited := make(map[string]bool)
		for _, rec := range rows {
			if visited[rec.ID] {
				continue
			}
			deleted, err := s.cascadeDeleteFrom(ctx, tx, rec, visited)
			if err != nil {
				var rie *ReferentialIntegrityError
				if errors.As(err, &rie) {
					return fmt.Errorf("drop %q: %w", col.Name, err)
				}
				return err
			}
			removed = append(removed, deleted...)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.registry.Drop(ctx, col.ID); err != nil {
		return err
	}

	for _, rec := range removed {
		s.notifyOnly(ActionDelete, rec)
	}
	return nil
}
