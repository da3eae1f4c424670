package schema

import (
	"errors"
	"fmt"
)

var ErrUnknownField = errors.New("unknown field")

// Struct is a value of a struct schema. Values are addressed by field.
type Struct struct {
	schema *Schema
	values []any
}

// NewStruct panics when s is not a struct schema.
func NewStruct(s *Schema) *Struct {
	if s == nil || s.Type != TypeStruct {
		panic(fmt.Sprintf("schema: struct value requires a struct schema, got %s", s))
	}
	return &Struct{
		schema: s,
		values: make([]any, len(s.fields)),
	}
}

func (st *Struct) Schema() *Schema {
	return st.schema
}

// Get returns the value stored for f. Fields of another schema that do not
// sit at the same position with the same name are rejected.
func (st *Struct) Get(f Field) (any, error) {
	if f.Index < 0 || f.Index >= len(st.values) || st.schema.fields[f.Index].Name != f.Name {
		return nil, fmt.Errorf("%w: %s at position %d of %s", ErrUnknownField, f.Name, f.Index, st.schema)
	}
	return st.values[f.Index], nil
}

func (st *Struct) GetByName(name string) (any, bool) {
	f, ok := st.schema.Field(name)
	if !ok {
		return nil, false
	}
	return st.values[f.Index], true
}

func (st *Struct) Put(name string, value any) error {
	f, ok := st.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	st.values[f.Index] = value
	return nil
}

// MustPut is Put for literals built in code; it panics on unknown fields.
func (st *Struct) MustPut(name string, value any) *Struct {
	if err := st.Put(name, value); err != nil {
		panic(err)
	}
	return st
}
