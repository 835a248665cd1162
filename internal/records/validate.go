package records

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hollis-dev/basalt/internal/schema"
)

// acceptedDateLayouts are the input formats the date validator
// accepts. Values are normalized to RFC 3339 UTC before storage.
var acceptedDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// validateData checks data against every field of the collection and
// returns the normalized copy that gets persisted.
//
// Validation is re-run on every write: required presence, type
// dispatch per variant, select membership, multi-value caps. Unknown
// keys are rejected so typos cannot silently drop data. Unique and
// relation-existence checks need storage access and happen inside the
// commit transaction instead.
func validateData(col *schema.Collection, data map[string]any) (map[string]any, error) {
	for key := range data {
		if _, ok := col.Field(key); !ok {
			return nil, &ValidationError{Collection: col.Name, Field: key, Reason: "unknown field"}
		}
	}

	out := make(map[string]any, len(data))
	for _, f := range col.Fields {
		raw, present := data[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, &ValidationError{Collection: col.Name, Field: f.ID, Reason: "required value is missing"}
			}
			if present {
				out[f.Name] = nil
			}
			continue
		}

		v, err := validateFieldValue(f, raw)
		if err != nil {
			return nil, &ValidationError{Collection: col.Name, Field: f.ID, Reason: err.Error()}
		}
		out[f.Name] = v
	}
	return out, nil
}

// validateFieldValue dispatches on the closed field-type variant.
func validateFieldValue(f schema.Field, raw any) (any, error) {
	switch f.Type {
	case schema.FieldText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
		return s, nil

	case schema.FieldNumber:
		n, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return n, nil

	case schema.FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil

	case schema.FieldDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", raw)
		}
		for _, layout := range acceptedDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("unparsable date %q", s)

	case schema.FieldSelect:
		return validateSelect(f, raw)

	case schema.FieldRelation:
		return validateRelationShape(f, raw)

	case schema.FieldFile:
		return validateFileRef(f, raw)

	case schema.FieldJSON:
		if _, err := json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
		}
		return raw, nil

	default:
		return nil, fmt.Errorf("unhandled field type %q", f.Type)
	}
}

func validateSelect(f schema.Field, raw any) (any, error) {
	opts := f.Options.Select
	allowed := func(s string) bool {
		for _, v := range opts.Values {
			if v == s {
				return true
			}
		}
		return false
	}

	if !f.MultiValue() {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected select value, got %T", raw)
		}
		if !allowed(s) {
			return nil, fmt.Errorf("value %q is not in the allowed set", s)
		}
		return s, nil
	}

	items, ok := toStringList(raw)
	if !ok {
		return nil, fmt.Errorf("expected list of select values, got %T", raw)
	}
	if len(items) > f.MaxSelect() {
		return nil, fmt.Errorf("at most %d value(s) allowed, got %d", f.MaxSelect(), len(items))
	}
	for _, s := range items {
		if !allowed(s) {
			return nil, fmt.Errorf("value %q is not in the allowed set", s)
		}
	}
	return toAnyList(items), nil
}

// validateRelationShape checks the type and arity of relation values.
// Target-record existence is verified inside the commit transaction.
func validateRelationShape(f schema.Field, raw any) (any, error) {
	if !f.MultiValue() {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected relation id, got %T", raw)
		}
		return s, nil
	}

	items, ok := toStringList(raw)
	if !ok {
		return nil, fmt.Errorf("expected list of relation ids, got %T", raw)
	}
	if len(items) > f.MaxSelect() {
		return nil, fmt.Errorf("at most %d relation(s) allowed, got %d", f.MaxSelect(), len(items))
	}
	return toAnyList(items), nil
}

// validateFileRef accepts the stored file reference shape:
// {name, size, mime}. Bytes live in external blob storage.
func validateFileRef(f schema.Field, raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected file reference object, got %T", raw)
	}
	name, _ := m["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("file reference requires a name")
	}
	if opts := f.Options.File; opts != nil {
		if size, ok := toFloat(m["size"]); ok && opts.MaxSize > 0 && int64(size) > opts.MaxSize {
			return nil, fmt.Errorf("file exceeds max size %d", opts.MaxSize)
		}
		if mime, _ := m["mime"].(string); mime != "" && len(opts.MimeTypes) > 0 {
			allowed := false
			for _, mt := range opts.MimeTypes {
				if mt == mime {
					allowed = true
					break
				}
			}
			if !allowed {
				return nil, fmt.Errorf("mime type %q is not allowed", mime)
			}
		}
	}
	ref := map[string]any{"name": name}
	if size, ok := toFloat(m["size"]); ok {
		ref["size"] = size
	}
	if mime, _ := m["mime"].(string); mime != "" {
		ref["mime"] = mime
	}
	return ref, nil
}

// relationIDs extracts the referenced ids from a validated relation
// value.
func relationIDs(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			if s, ok := elem.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toAnyList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
