package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/hollis-dev/basalt/internal/schema"
	"github.com/hollis-dev/basalt/internal/store"
)

// expandRecord resolves the named relation fields into rec.Expand.
// Single-value relations expand to one record, multi-value relations
// to a slice in stored order. Expansion is one level deep; expanded
// records carry no Expand of their own.
func (s *Service) expandRecord(ctx context.Context, col *schema.Collection, rec *schema.Record, fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	for _, name := range fields {
		f, ok := col.Field(name)
		if !ok {
			return &ValidationError{Collection: col.Name, Field: name, Reason: "cannot expand unknown field"}
		}
		if f.Type != schema.FieldRelation {
			return &ValidationError{Collection: col.Name, Field: f.ID, Reason: "cannot expand a non-relation field"}
		}

		v, present := rec.Data[f.Name]
		if !present || v == nil {
			continue
		}

		var resolved []*schema.Record
		for _, id := range relationIDs(v) {
			ref, err := s.store.GetRecord(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					// The target vanished between read and expand;
					// skip rather than fail the whole response.
					continue
				}
				return fmt.Errorf("expand %q: %w", f.Name, err)
			}
			resolved = append(resolved, ref)
		}
		if len(resolved) == 0 {
			continue
		}

		if rec.Expand == nil {
			rec.Expand = make(map[string]any)
		}
		if f.MultiValue() {
			rec.Expand[f.Name] = resolved
		} else {
			rec.Expand[f.Name] = resolved[0]
		}
	}
	return nil
}
