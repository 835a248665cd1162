package schema

import "fmt"

// FieldType is the closed set of value types a field can declare.
// Validation dispatches on this enum; adding a type means adding a
// variant here and a case to the validator, never runtime reflection.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldBool     FieldType = "bool"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldRelation FieldType = "relation"
	FieldFile     FieldType = "file"
	FieldJSON     FieldType = "json"
)

// ValidFieldTypes lists every supported field type.
var ValidFieldTypes = []FieldType{
	FieldText, FieldNumber, FieldBool, FieldDate,
	FieldSelect, FieldRelation, FieldFile, FieldJSON,
}

// IsValidFieldType reports whether t is one of the closed variants.
func IsValidFieldType(t FieldType) bool {
	for _, v := range ValidFieldTypes {
		if v == t {
			return true
		}
	}
	return false
}

// SelectOptions configures a select field.
// MaxSelect of 1 means single-value; greater than 1 means the stored
// value is a list with at most MaxSelect elements.
type SelectOptions struct {
	Values    []string `json:"values"`
	MaxSelect int      `json:"maxSelect"`
}

// RelationOptions configures a relation field.
// CollectionID names the target collection, which must exist when the
// field is added. CascadeDelete marks referencing records for removal
// when their target record is deleted.
type RelationOptions struct {
	CollectionID  string `json:"collectionId"`
	MaxSelect     int    `json:"maxSelect"`
	CascadeDelete bool   `json:"cascadeDelete"`
}

// FileOptions configures a file field. The engine stores only the
// reference (name, size, mime); bytes live in external blob storage.
type FileOptions struct {
	MaxSize   int64    `json:"maxSize,omitempty"`
	MimeTypes []string `json:"mimeTypes,omitempty"`
}

// FieldOptions is the union of per-type option structs. Only the
// member matching the field's type is consulted.
type FieldOptions struct {
	Select   *SelectOptions   `json:"select,omitempty"`
	Relation *RelationOptions `json:"relation,omitempty"`
	File     *FileOptions     `json:"file,omitempty"`
}

// Field is one typed, named slot within a collection's schema.
type Field struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Type     FieldType    `json:"type"`
	Required bool         `json:"required"`
	Unique   bool         `json:"unique"`
	Options  FieldOptions `json:"options,omitempty"`
	// System fields are added implicitly (auth collections) and
	// cannot be removed or retyped by collection updates.
	System bool `json:"system,omitempty"`
}

// MaxSelect returns the effective multi-value cap for select and
// relation fields, defaulting to 1 (single-value).
func (f Field) MaxSelect() int {
	switch f.Type {
	case FieldSelect:
		if f.Options.Select != nil && f.Options.Select.MaxSelect > 1 {
			return f.Options.Select.MaxSelect
		}
	case FieldRelation:
		if f.Options.Relation != nil && f.Options.Relation.MaxSelect > 1 {
			return f.Options.Relation.MaxSelect
		}
	}
	return 1
}

// MultiValue reports whether the field stores a list of values.
func (f Field) MultiValue() bool {
	return f.MaxSelect() > 1
}

// validate checks structural constraints that do not depend on other
// collections (relation targets are checked by the registry).
func (f Field) validate() error {
	if f.ID == "" {
		return fmt.Errorf("field %q: missing id", f.Name)
	}
	if f.Name == "" {
		return fmt.Errorf("field %s: missing name", f.ID)
	}
	if !IsValidFieldType(f.Type) {
		return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
	switch f.Type {
	case FieldSelect:
		if f.Options.Select == nil || len(f.Options.Select.Values) == 0 {
			return fmt.Errorf("field %q: select requires a non-empty value set", f.Name)
		}
	case FieldRelation:
		if f.Options.Relation == nil || f.Options.Relation.CollectionID == "" {
			return fmt.Errorf("field %q: relation requires a target collection", f.Name)
		}
	}
	return nil
}
