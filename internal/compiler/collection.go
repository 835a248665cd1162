// Package compiler turns CUE collection definitions into schema
// values. CUE is the declaration surface for collections checked into
// a project repo; the compiler goes through the CUE Go API directly,
// never a CLI subprocess.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/hollis-dev/basalt/internal/schema"
)

// CompileFile reads a CUE file and compiles every collection declared
// under the top-level "collection" struct.
func CompileFile(path string) ([]*schema.Collection, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return CompileString(string(src), path)
}

// CompileString compiles CUE source. Filename is used for error
// positions only.
func CompileString(src, filename string) ([]*schema.Collection, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("collection"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "collection",
			Message: "no top-level collection struct",
			Pos:     v.Pos(),
		}
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cols []*schema.Collection
	for iter.Next() {
		col, err := CompileCollection(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// CompileCollection parses one collection struct. The CUE shape:
//
//	collection: posts: {
//		kind: "base"
//		rules: { list: "", view: "", create: "author = auth.id" }
//		fields: {
//			title:  { type: "text", required: true }
//			author: { type: "relation", target: "users", cascadeDelete: true }
//		}
//	}
//
// A rule key left out entirely stays admin-only; an empty string is
// public. Field ids default to the field name.
func CompileCollection(name string, v cue.Value) (*schema.Collection, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	col := &schema.Collection{
		Name: name,
		Kind: schema.KindBase,
	}

	if kindVal := v.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		kind, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch schema.Kind(kind) {
		case schema.KindBase, schema.KindAuth, schema.KindView:
			col.Kind = schema.Kind(kind)
		default:
			return nil, &CompileError{
				Field:   name + ".kind",
				Message: fmt.Sprintf("unknown collection kind %q", kind),
				Pos:     kindVal.Pos(),
			}
		}
	}

	if idVal := v.LookupPath(cue.ParsePath("id")); idVal.Exists() {
		id, err := idVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		col.ID = id
	}

	rules, err := parseRules(name, v.LookupPath(cue.ParsePath("rules")))
	if err != nil {
		return nil, err
	}
	col.Rules = rules

	fields, err := parseFields(name, v.LookupPath(cue.ParsePath("fields")))
	if err != nil {
		return nil, err
	}
	col.Fields = fields

	if idxVal := v.LookupPath(cue.ParsePath("indexes")); idxVal.Exists() {
		iter, err := idxVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			idx, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			col.Indexes = append(col.Indexes, idx)
		}
	}

	return col, nil
}

var ruleKeys = []struct {
	key string
	get func(*schema.RuleSet) **string
}{
	{"list", func(r *schema.RuleSet) **string { return &r.List }},
	{"view", func(r *schema.RuleSet) **string { return &r.View }},
	{"create", func(r *schema.RuleSet) **string { return &r.Create }},
	{"update", func(r *schema.RuleSet) **string { return &r.Update }},
	{"delete", func(r *schema.RuleSet) **string { return &r.Delete }},
}

func parseRules(colName string, v cue.Value) (schema.RuleSet, error) {
	var rs schema.RuleSet
	if !v.Exists() {
		return rs, nil
	}

	for _, rk := range ruleKeys {
		ruleVal := v.LookupPath(cue.ParsePath(rk.key))
		if !ruleVal.Exists() {
			continue
		}
		text, err := ruleVal.String()
		if err != nil {
			return rs, formatCUEError(err)
		}
		*rk.get(&rs) = &text
	}
	return rs, nil
}

func parseFields(colName string, v cue.Value) ([]schema.Field, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		f, err := parseField(colName, iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(colName, fieldName string, v cue.Value) (schema.Field, error) {
	f := schema.Field{ID: fieldName, Name: fieldName}

	typVal := v.LookupPath(cue.ParsePath("type"))
	if !typVal.Exists() {
		return f, &CompileError{
			Field:   colName + "." + fieldName,
			Message: "field type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Type = schema.FieldType(typ)
	if !schema.IsValidFieldType(f.Type) {
		return f, &CompileError{
			Field:   colName + "." + fieldName,
			Message: fmt.Sprintf("unknown field type %q", typ),
			Pos:     typVal.Pos(),
		}
	}

	if idVal := v.LookupPath(cue.ParsePath("id")); idVal.Exists() {
		if f.ID, err = idVal.String(); err != nil {
			return f, formatCUEError(err)
		}
	}
	if f.Required, err = boolAt(v, "required"); err != nil {
		return f, err
	}
	if f.Unique, err = boolAt(v, "unique"); err != nil {
		return f, err
	}

	switch f.Type {
	case schema.FieldSelect:
		opts := &schema.SelectOptions{MaxSelect: 1}
		valuesVal := v.LookupPath(cue.ParsePath("values"))
		if valuesVal.Exists() {
			iter, err := valuesVal.List()
			if err != nil {
				return f, formatCUEError(err)
			}
			for iter.Next() {
				s, err := iter.Value().String()
				if err != nil {
					return f, formatCUEError(err)
				}
				opts.Values = append(opts.Values, s)
			}
		}
		if opts.MaxSelect, err = intAt(v, "maxSelect", 1); err != nil {
			return f, err
		}
		f.Options.Select = opts

	case schema.FieldRelation:
		opts := &schema.RelationOptions{MaxSelect: 1}
		targetVal := v.LookupPath(cue.ParsePath("target"))
		if targetVal.Exists() {
			if opts.CollectionID, err = targetVal.String(); err != nil {
				return f, formatCUEError(err)
			}
		}
		if opts.MaxSelect, err = intAt(v, "maxSelect", 1); err != nil {
			return f, err
		}
		if opts.CascadeDelete, err = boolAt(v, "cascadeDelete"); err != nil {
			return f, err
		}
		f.Options.Relation = opts

	case schema.FieldFile:
		opts := &schema.FileOptions{}
		if maxVal := v.LookupPath(cue.ParsePath("maxSize")); maxVal.Exists() {
			if opts.MaxSize, err = maxVal.Int64(); err != nil {
				return f, formatCUEError(err)
			}
		}
		if mimeVal := v.LookupPath(cue.ParsePath("mimeTypes")); mimeVal.Exists() {
			iter, err := mimeVal.List()
			if err != nil {
				return f, formatCUEError(err)
			}
			for iter.Next() {
				s, err := iter.Value().String()
				if err != nil {
					return f, formatCUEError(err)
				}
				opts.MimeTypes = append(opts.MimeTypes, s)
			}
		}
		f.Options.File = opts
	}

	return f, nil
}

func boolAt(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func intAt(v cue.Value, key string, def int) (int, error) {
	iv := v.LookupPath(cue.ParsePath(key))
	if !iv.Exists() {
		return def, nil
	}
	n, err := iv.Int64()
	if err != nil {
		return def, formatCUEError(err)
	}
	return int(n), nil
}

// CompileError is a compilation failure with a source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError lifts position info out of a CUE error chain.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
