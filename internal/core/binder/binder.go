package binder

import (
	"fmt"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// Statement is a prepared statement with a 1-based parameter buffer and a
// pending batch of rows.
type Statement interface {
	SetParam(index int, value any) error
	AddBatch() error
}

// Encoder writes a typed value into a statement placeholder. Implementations
// are dialect specific.
type Encoder interface {
	BindField(stmt Statement, index int, s *schema.Schema, value any) error
}

// Options carries the connector settings the binder depends on.
type Options struct {
	DeleteByField bool
	EnumSets      []string
}

const deletedFieldName = "deleted"

//nolint:gochecknoglobals // read-only position schemas
var (
	topicSchema     = schema.String()
	partitionSchema = schema.Int32()
	offsetSchema    = schema.Int64()
)

// Binder fills the placeholders of one prepared statement from records.
// Placeholders are laid out as:
//
//	delete:          key fields
//	insert, upsert:  key fields, non-key fields
//	update:          non-key fields, key fields
//
// A Binder is bound to a single statement and is not safe for concurrent use.
type Binder struct {
	encoder    Encoder
	stmt       Statement
	pkMode     config.PrimaryKeyMode
	schemaPair metadata.SchemaPair
	fields     metadata.FieldsMetadata
	insertMode config.InsertMode

	deleteByField bool
	enumSets      map[string]struct{}
	enumSetSchema *schema.Schema

	ignoredOverrides int
}

// New creates a binder for stmt. opts may be nil.
func New(
	encoder Encoder,
	stmt Statement,
	pkMode config.PrimaryKeyMode,
	schemaPair metadata.SchemaPair,
	fields metadata.FieldsMetadata,
	insertMode config.InsertMode,
	opts *Options,
) *Binder {
	b := &Binder{
		encoder:       encoder,
		stmt:          stmt,
		pkMode:        pkMode,
		schemaPair:    schemaPair,
		fields:        fields,
		insertMode:    insertMode,
		enumSets:      make(map[string]struct{}),
		enumSetSchema: schema.EnumSet(),
	}

	if opts != nil {
		b.deleteByField = opts.DeleteByField
		for _, name := range opts.EnumSets {
			b.enumSets[name] = struct{}{}
		}
	}

	return b
}

// IsDelete reports whether rec deletes its row: a tombstone, or, with
// deleteByField, a value whose boolean "deleted" field is true.
func IsDelete(rec record.Record, deleteByField bool) bool {
	if rec.IsTombstone() {
		return true
	}
	if !deleteByField {
		return false
	}

	f, ok := rec.ValueSchema.Field(deletedFieldName)
	if !ok || f.Schema.Type != schema.TypeBoolean {
		return false
	}

	st, ok := rec.Value.(*schema.Struct)
	if !ok {
		return false
	}

	v, err := st.Get(f)
	if err != nil {
		return false
	}
	deleted, _ := v.(bool)
	return deleted
}

// Bind binds rec to the statement and appends the row to its batch.
// Encoder errors are returned as is.
func (b *Binder) Bind(rec record.Record) error {
	if IsDelete(rec, b.deleteByField) {
		if _, err := b.bindKeyFields(rec, 1); err != nil {
			return err
		}
	} else {
		switch b.insertMode {
		case config.InsertModeInsert, config.InsertModeUpsert:
			index, err := b.bindKeyFields(rec, 1)
			if err != nil {
				return err
			}
			if _, err := b.bindNonKeyFields(rec, index); err != nil {
				return err
			}
		case config.InsertModeUpdate:
			index, err := b.bindNonKeyFields(rec, 1)
			if err != nil {
				return err
			}
			if _, err := b.bindKeyFields(rec, index); err != nil {
				return err
			}
		default:
			invariant("unknown insert mode %s", b.insertMode)
		}
	}

	if err := b.stmt.AddBatch(); err != nil {
		return fmt.Errorf("add batch: %w", err)
	}

	return nil
}

// IgnoredEnumSetOverrides counts the non-key bindings where an enum-set
// override schema was resolved but the declared schema was used instead.
func (b *Binder) IgnoredEnumSetOverrides() int {
	return b.ignoredOverrides
}

func (b *Binder) bindKeyFields(rec record.Record, index int) (int, error) {
	keys := b.fields.KeyFieldNames

	switch b.pkMode {
	case config.PrimaryKeyNone:
		if len(keys) != 0 {
			invariant("pk_mode=none with key fields %v", keys)
		}

	case config.PrimaryKeyKafka:
		if len(keys) != 3 {
			invariant("pk_mode=kafka needs 3 key fields, got %v", keys)
		}
		if err := b.bindField(index, topicSchema, rec.Topic); err != nil {
			return index, err
		}
		if err := b.bindField(index+1, partitionSchema, rec.Partition); err != nil {
			return index, err
		}
		if err := b.bindField(index+2, offsetSchema, rec.Offset); err != nil {
			return index, err
		}
		index += 3

	case config.PrimaryKeyRecordKey:
		ks := b.schemaPair.KeySchema
		if ks == nil {
			return index, fmt.Errorf("%w: record %s has no key schema", ErrMissingSchema, rec)
		}
		if ks.Type.IsPrimitive() {
			if len(keys) != 1 {
				invariant("primitive key needs 1 key field, got %v", keys)
			}
			if err := b.bindField(index, ks, rec.Key); err != nil {
				return index, err
			}
			index++
			break
		}

		key, ok := rec.Key.(*schema.Struct)
		if !ok {
			return index, fmt.Errorf("%w: key of record %s is %T", ErrNotStruct, rec, rec.Key)
		}
		for _, name := range keys {
			f, ok := ks.Field(name)
			if !ok {
				return index, fmt.Errorf("%w: %q in key schema", ErrUnresolvedField, name)
			}
			v, err := key.Get(f)
			if err != nil {
				return index, fmt.Errorf("%w: %q in key of record %s: %w", ErrUnresolvedField, name, rec, err)
			}
			if err := b.bindField(index, f.Schema, v); err != nil {
				return index, err
			}
			index++
		}

	case config.PrimaryKeyRecordValue:
		vs := b.schemaPair.ValueSchema
		if vs == nil {
			return index, fmt.Errorf("%w: record %s has no value schema", ErrMissingSchema, rec)
		}
		value, ok := rec.Value.(*schema.Struct)
		if !ok {
			return index, fmt.Errorf("%w: value of record %s is %T", ErrNotStruct, rec, rec.Value)
		}
		for _, name := range keys {
			f, ok := vs.Field(name)
			if !ok {
				return index, fmt.Errorf("%w: %q in value schema", ErrUnresolvedField, name)
			}
			v, err := value.Get(f)
			if err != nil {
				return index, fmt.Errorf("%w: %q in value of record %s: %w", ErrUnresolvedField, name, rec, err)
			}
			if err := b.bindField(index, f.Schema, v); err != nil {
				return index, err
			}
			index++
		}

	default:
		invariant("unknown primary key mode %s", b.pkMode)
	}

	return index, nil
}

func (b *Binder) bindNonKeyFields(rec record.Record, index int) (int, error) {
	if len(b.fields.NonKeyFieldNames) == 0 {
		return index, nil
	}

	value, ok := rec.Value.(*schema.Struct)
	if !ok {
		return index, fmt.Errorf("%w: value of record %s is %T", ErrNotStruct, rec, rec.Value)
	}

	for _, name := range b.fields.NonKeyFieldNames {
		f, ok := rec.ValueSchema.Field(name)
		if !ok {
			return index, fmt.Errorf("%w: %q in value schema", ErrUnresolvedField, name)
		}

		// Enum-set columns resolve to the enum-set schema, but the declared
		// schema is what reaches the encoder.
		if s := b.enumSetOverride(name, f.Schema); s != f.Schema {
			b.ignoredOverrides++
		}

		v, err := value.Get(f)
		if err != nil {
			return index, fmt.Errorf("%w: %q in value of record %s: %w", ErrUnresolvedField, name, rec, err)
		}
		if err := b.bindField(index, f.Schema, v); err != nil {
			return index, err
		}
		index++
	}

	return index, nil
}

func (b *Binder) enumSetOverride(name string, declared *schema.Schema) *schema.Schema {
	if _, ok := b.enumSets[name]; ok {
		return b.enumSetSchema
	}
	return declared
}

func (b *Binder) bindField(index int, s *schema.Schema, value any) error {
	return b.encoder.BindField(b.stmt, index, s, value) //nolint:wrapcheck // encoder errors pass through
}
