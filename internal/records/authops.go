package records

import (
	"context"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/schema"
)

// AuthOps adapts the service to the narrow surface the auth flows
// need. The adapter pins the exact method signatures the auth package
// declares without leaking operation options into it.
func (s *Service) AuthOps() auth.RecordOps {
	return authOps{s: s}
}

type authOps struct {
	s *Service
}

func (a authOps) Create(ctx context.Context, collection string, data map[string]any, actor auth.Context) (*schema.Record, error) {
	return a.s.Create(ctx, collection, data, actor)
}

func (a authOps) GetByID(ctx context.Context, collection, id string) (*schema.Record, error) {
	col, err := a.s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return a.s.loadRecord(ctx, col, id)
}

// FindByField scans the collection for the first record whose field
// matches value under canonical-key comparison, so lookups agree with
// uniqueness ("Foo" and "Foo" normalized differently still collide).
func (a authOps) FindByField(ctx context.Context, collection, field string, value any) (*schema.Record, error) {
	col, err := a.s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	want, err := schema.CanonicalKey(value)
	if err != nil {
		return nil, err
	}

	rows, err := a.s.store.ListRecords(ctx, col.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		v, ok := row.Data[field]
		if !ok || v == nil {
			continue
		}
		got, err := schema.CanonicalKey(v)
		if err != nil {
			continue
		}
		if got == want {
			return row, nil
		}
	}
	return nil, &schema.NotFoundError{Kind: "record", ID: field + "=" + want}
}
