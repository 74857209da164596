package store

import (
	"fmt"
	"strings"

	"github.com/daviddao/timewarp/pkg/model"
)

// FieldType is the storage class of an entity field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldInteger FieldType = "integer"
	FieldReal    FieldType = "real"
	FieldBoolean FieldType = "boolean"
	FieldJSON    FieldType = "json"
)

func (t FieldType) column() (string, bool) {
	switch t {
	case FieldText, FieldJSON, "":
		return "TEXT", true
	case FieldInteger, FieldBoolean:
		return "INTEGER", true
	case FieldReal:
		return "REAL", true
	}
	return "", false
}

type Field struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type,omitempty" yaml:"type,omitempty"`
}

// EntitySchema describes one entity: its table, key and fields.
type EntitySchema struct {
	Entity string   `json:"name" yaml:"name"`
	Table  string   `json:"table,omitempty" yaml:"table,omitempty"`
	Key    []string `json:"primary_key" yaml:"primary_key"`
	Fields []Field  `json:"fields" yaml:"fields"`
}

func (es EntitySchema) Name() string { return es.Entity }

// TableName defaults to the entity name.
func (es EntitySchema) TableName() string {
	if es.Table != "" {
		return es.Table
	}
	return es.Entity
}

func (es EntitySchema) PrimaryKey() []string {
	return append([]string(nil), es.Key...)
}

func (es EntitySchema) FieldNames() []string {
	names := make([]string, len(es.Fields))
	for i, f := range es.Fields {
		names[i] = f.Name
	}
	return names
}

func (es EntitySchema) hasField(name string) bool {
	for _, f := range es.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// normalize defaults the key to "id" and adds missing key fields.
func (es EntitySchema) normalize() EntitySchema {
	if len(es.Key) == 0 {
		es.Key = []string{"id"}
	}
	fields := append([]Field(nil), es.Fields...)
	for i := len(es.Key) - 1; i >= 0; i-- {
		k := es.Key[i]
		found := false
		for _, f := range fields {
			if f.Name == k {
				found = true
				break
			}
		}
		if !found {
			fields = append([]Field{{Name: k, Type: FieldText}}, fields...)
		}
	}
	es.Fields = fields
	return es
}

func (es EntitySchema) validate() error {
	if !model.ValidIdentifier(es.Entity) {
		return fmt.Errorf("%w: entity name %q", ErrInvalidSchema, es.Entity)
	}
	if strings.HasPrefix(es.TableName(), "_timewarp") || !model.ValidIdentifier(es.TableName()) {
		return fmt.Errorf("%w: table name %q", ErrInvalidSchema, es.TableName())
	}
	seen := make(map[string]bool, len(es.Fields))
	for _, f := range es.Fields {
		if !model.ValidIdentifier(f.Name) {
			return fmt.Errorf("%w: field name %q", ErrInvalidSchema, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = true
		if _, ok := f.Type.column(); !ok {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
	}
	for _, k := range es.Key {
		if !seen[k] {
			return fmt.Errorf("%w: key %q is not a field", ErrInvalidSchema, k)
		}
	}
	return nil
}

func (es EntitySchema) createTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", es.TableName())
	for _, f := range es.Fields {
		col, _ := f.Type.column()
		fmt.Fprintf(&b, "\t%s %s,\n", f.Name, col)
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(es.Key, ", "))
	return b.String()
}
