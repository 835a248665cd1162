package records

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
)

const (
	// DefaultPerPage is used when a list request leaves PerPage unset.
	DefaultPerPage = 30
	// MaxPerPage caps a single page regardless of the request.
	MaxPerPage = 500
)

// ListOptions shapes a list query.
type ListOptions struct {
	// Filter is an expression in the rule grammar, evaluated per row.
	Filter string
	// Sort is a comma-separated field list; a "-" prefix sorts
	// descending. "id", "created" and "updated" are always sortable.
	Sort string
	// Page is 1-based.
	Page    int
	PerPage int
	// Expand names relation fields to resolve on returned records.
	Expand []string
	// Params are request query parameters exposed to rule evaluation.
	Params map[string]any
}

// ListResult is one page of records plus pagination totals. Totals
// count rows after rule and filter evaluation, before paging.
type ListResult struct {
	Items      []*schema.Record `json:"items"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

// List returns the records of a collection visible to the actor.
//
// The collection's list rule runs against every candidate row: rows
// the rule rejects are silently omitted rather than failing the query.
// A nil list rule fails the whole query for non-admins.
func (s *Service) List(ctx context.Context, collection string, opts ListOptions, actor auth.Context) (*ListResult, error) {
	version := s.registry.Version()
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin && col.Rules.Rule(schema.OpList) == nil {
		return nil, &ForbiddenError{
			Collection: col.Name,
			Operation:  schema.OpList,
			Rule:       "<admin-only>",
			Reason:     fmt.Sprintf("list on %q requires admin", col.Name),
		}
	}

	var filterExpr rules.Expr
	if opts.Filter != "" {
		filterExpr, err = s.rules.ParseFilter(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("list filter: %w", err)
		}
	}

	rows, err := s.store.ListRecords(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	identity := rules.IdentityEnv(actor.Identity)
	matched := make([]*schema.Record, 0, len(rows))
	for _, row := range rows {
		if err := s.authorize(col, version, schema.OpList, actor, row, opts.Params); err != nil {
			if IsForbidden(err) {
				continue
			}
			return nil, err
		}
		if filterExpr != nil {
			ectx := rules.EvalContext{
				Record:   rules.RecordEnv(row),
				Identity: identity,
				Params:   opts.Params,
			}
			if !rules.Evaluate(filterExpr, ectx) {
				continue
			}
		}
		matched = append(matched, row)
	}

	if err := sortRecords(matched, opts.Sort); err != nil {
		return nil, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total := len(matched)
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	items := matched[start:end]

	for _, rec := range items {
		if err := s.expandRecord(ctx, col, rec, opts.Expand); err != nil {
			return nil, err
		}
	}

	return &ListResult{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

type sortKey struct {
	field string
	desc  bool
}

func parseSort(spec string) ([]sortKey, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	var keys []sortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("sort: empty field in %q", spec)
		}
		key := sortKey{field: part}
		switch part[0] {
		case '-':
			key.desc = true
			key.field = part[1:]
		case '+':
			key.field = part[1:]
		}
		if key.field == "" {
			return nil, fmt.Errorf("sort: empty field in %q", spec)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// sortRecords orders rows in place. Records are compared key by key;
// ties fall through to the next key, and the sort is stable so equal
// rows keep their store order (created ascending).
func sortRecords(rows []*schema.Record, spec string) error {
	keys, err := parseSort(spec)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range keys {
			c := compareSortValues(sortValue(rows[i], key.field), sortValue(rows[j], key.field))
			if c == 0 {
				continue
			}
			if key.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func sortValue(rec *schema.Record, field string) any {
	switch field {
	case "id":
		return rec.ID
	case "created":
		return rec.Created.UTC().Format("2006-01-02 15:04:05.000Z")
	case "updated":
		return rec.Updated.UTC().Format("2006-01-02 15:04:05.000Z")
	}
	return rec.Data[field]
}

// compareSortValues imposes a total order loose enough for mixed
// columns: nil sorts first, numbers and bools compare natively, and
// everything else falls back to string comparison.
func compareSortValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
