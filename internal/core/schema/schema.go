package schema

import (
	"fmt"
	"maps"
	"strings"
)

// Type is the physical type of a schema.
type Type int

const (
	TypeInt8 Type = iota + 1
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeString
	TypeBytes
	TypeArray
	TypeMap
	TypeStruct
)

var typeNames = map[Type]string{
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeBoolean: "boolean",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeArray:   "array",
	TypeMap:     "map",
	TypeStruct:  "struct",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsPrimitive reports whether values of the type carry no nested schema.
func (t Type) IsPrimitive() bool {
	switch t {
	case TypeArray, TypeMap, TypeStruct:
		return false
	default:
		return true
	}
}

func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == strings.ToLower(name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown schema type %q", name)
}

// Logical type names and parameters.
const (
	DecimalName   = "org.apache.kafka.connect.data.Decimal"
	DateName      = "org.apache.kafka.connect.data.Date"
	TimeName      = "org.apache.kafka.connect.data.Time"
	TimestampName = "org.apache.kafka.connect.data.Timestamp"
	UUIDName      = "io.debezium.data.Uuid"

	DecimalScaleParameter = "scale"
	EnumSetParameter      = "isEnumSet"
)

// Field is a named member of a struct schema.
type Field struct {
	Name   string
	Index  int
	Schema *Schema
}

func NewField(name string, s *Schema) Field {
	return Field{Name: name, Schema: s}
}

// Schema describes a key or a value. Struct schemas keep their fields in
// declaration order.
type Schema struct {
	Type       Type
	Name       string
	Optional   bool
	Version    int
	Doc        string
	Parameters map[string]string

	// KeySchema is set for maps, ValueSchema for maps and arrays.
	KeySchema   *Schema
	ValueSchema *Schema

	fields     []Field
	fieldIndex map[string]int
}

func New(t Type) *Schema {
	return &Schema{Type: t}
}

func Int8() *Schema    { return New(TypeInt8) }
func Int16() *Schema   { return New(TypeInt16) }
func Int32() *Schema   { return New(TypeInt32) }
func Int64() *Schema   { return New(TypeInt64) }
func Float32() *Schema { return New(TypeFloat32) }
func Float64() *Schema { return New(TypeFloat64) }
func Boolean() *Schema { return New(TypeBoolean) }
func String() *Schema  { return New(TypeString) }
func Bytes() *Schema   { return New(TypeBytes) }

func Array(value *Schema) *Schema {
	return &Schema{Type: TypeArray, ValueSchema: value}
}

func Map(key, value *Schema) *Schema {
	return &Schema{Type: TypeMap, KeySchema: key, ValueSchema: value}
}

// StructOf builds a struct schema. Field indexes are assigned in order.
func StructOf(name string, fields ...Field) *Schema {
	s := &Schema{
		Type:       TypeStruct,
		Name:       name,
		fields:     make([]Field, 0, len(fields)),
		fieldIndex: make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		s.addField(f.Name, f.Schema)
	}
	return s
}

func (s *Schema) addField(name string, fs *Schema) {
	if s.fieldIndex == nil {
		s.fieldIndex = make(map[string]int)
	}
	s.fieldIndex[name] = len(s.fields)
	s.fields = append(s.fields, Field{Name: name, Index: len(s.fields), Schema: fs})
}

func Decimal(scale int) *Schema {
	return &Schema{
		Type:       TypeBytes,
		Name:       DecimalName,
		Version:    1,
		Parameters: map[string]string{DecimalScaleParameter: fmt.Sprint(scale)},
	}
}

func Date() *Schema      { return &Schema{Type: TypeInt32, Name: DateName, Version: 1} }
func Time() *Schema      { return &Schema{Type: TypeInt32, Name: TimeName, Version: 1} }
func Timestamp() *Schema { return &Schema{Type: TypeInt64, Name: TimestampName, Version: 1} }
func UUID() *Schema      { return &Schema{Type: TypeString, Name: UUIDName, Version: 1} }

// EnumSet is the array-of-strings schema used for multi-valued enum columns.
func EnumSet() *Schema {
	s := Array(String())
	s.Parameters = map[string]string{EnumSetParameter: "true"}
	return s
}

// AsOptional returns a shallow copy of s marked optional.
func AsOptional(s *Schema) *Schema {
	c := *s
	c.Optional = true
	return &c
}

// Fields returns the struct fields in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Field looks up a struct field by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil || s.Type != TypeStruct {
		return Field{}, false
	}
	i, ok := s.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) Parameter(key string) string {
	if s == nil {
		return ""
	}
	return s.Parameters[key]
}

func (s *Schema) IsEnumSet() bool {
	return s != nil && s.Type == TypeArray && s.Parameter(EnumSetParameter) == "true"
}

// Equal compares two schemas structurally.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s == o {
		return true
	}
	if s.Type != o.Type || s.Name != o.Name || s.Optional != o.Optional || s.Version != o.Version {
		return false
	}
	if !maps.Equal(s.Parameters, o.Parameters) {
		return false
	}
	if !s.KeySchema.Equal(o.KeySchema) || !s.ValueSchema.Equal(o.ValueSchema) {
		return false
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Name != o.fields[i].Name || !s.fields[i].Schema.Equal(o.fields[i].Schema) {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	if s == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(s.Type.String())
	if s.Name != "" {
		b.WriteString("(" + s.Name + ")")
	}
	switch s.Type {
	case TypeArray:
		b.WriteString("<" + s.ValueSchema.String() + ">")
	case TypeMap:
		b.WriteString("<" + s.KeySchema.String() + "," + s.ValueSchema.String() + ">")
	case TypeStruct:
		b.WriteString("{")
		for i, f := range s.fields {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(f.Name + ":" + f.Schema.String())
		}
		b.WriteString("}")
	}
	if s.Optional {
		b.WriteString("?")
	}
	return b.String()
}
