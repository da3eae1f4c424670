package metadata

import (
	"errors"
	"fmt"
	"slices"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// Column names used for the record position when pk_mode=kafka.
const (
	KafkaTopicField     = "__connect_topic"
	KafkaPartitionField = "__connect_partition"
	KafkaOffsetField    = "__connect_offset"
)

var ErrInvalidFields = errors.New("invalid fields metadata")

// SchemaPair holds the key and value schema of the records of one statement shape.
type SchemaPair struct {
	KeySchema   *schema.Schema
	ValueSchema *schema.Schema
}

func (p SchemaPair) Equal(o SchemaPair) bool {
	return p.KeySchema.Equal(o.KeySchema) && p.ValueSchema.Equal(o.ValueSchema)
}

// FieldsMetadata is the ordered column layout shared by a statement and its binder.
type FieldsMetadata struct {
	KeyFieldNames    []string
	NonKeyFieldNames []string
}

// Extract computes the key and non-key columns for table from the schema pair.
func Extract(
	table string,
	pkMode config.PrimaryKeyMode,
	pkFields []string,
	whitelist []string,
	pair SchemaPair,
) (FieldsMetadata, error) {
	if pair.ValueSchema != nil && pair.ValueSchema.Type != schema.TypeStruct {
		return FieldsMetadata{}, fmt.Errorf("%w: table %s: value schema must be a struct, got %s",
			ErrInvalidFields, table, pair.ValueSchema.Type)
	}

	keys, err := keyFields(table, pkMode, pkFields, pair)
	if err != nil {
		return FieldsMetadata{}, err
	}

	var nonKeys []string
	if pair.ValueSchema != nil {
		for _, f := range pair.ValueSchema.Fields() {
			if slices.Contains(keys, f.Name) {
				continue
			}
			if len(whitelist) > 0 && !slices.Contains(whitelist, f.Name) {
				continue
			}
			nonKeys = append(nonKeys, f.Name)
		}
	}

	if len(keys) == 0 && len(nonKeys) == 0 {
		return FieldsMetadata{}, fmt.Errorf("%w: no fields found using key and value schemas for table %s",
			ErrInvalidFields, table)
	}

	return FieldsMetadata{
		KeyFieldNames:    keys,
		NonKeyFieldNames: nonKeys,
	}, nil
}

func keyFields(table string, pkMode config.PrimaryKeyMode, pkFields []string, pair SchemaPair) ([]string, error) {
	switch pkMode {
	case config.PrimaryKeyNone:
		if len(pkFields) > 0 {
			return nil, fmt.Errorf("%w: table %s: pk_fields %v set with pk_mode=none", ErrInvalidFields, table, pkFields)
		}
		return nil, nil

	case config.PrimaryKeyKafka:
		switch len(pkFields) {
		case 0:
			return []string{KafkaTopicField, KafkaPartitionField, KafkaOffsetField}, nil
		case 3:
			return slices.Clone(pkFields), nil
		default:
			return nil, fmt.Errorf("%w: table %s: pk_mode=kafka needs exactly 3 pk_fields, got %v",
				ErrInvalidFields, table, pkFields)
		}

	case config.PrimaryKeyRecordKey:
		ks := pair.KeySchema
		if ks == nil {
			return nil, fmt.Errorf("%w: table %s: pk_mode=record_key with a missing key schema", ErrInvalidFields, table)
		}
		if ks.Type.IsPrimitive() {
			if len(pkFields) != 1 {
				return nil, fmt.Errorf("%w: table %s: primitive key %s needs exactly one pk field, got %v",
					ErrInvalidFields, table, ks.Type, pkFields)
			}
			return slices.Clone(pkFields), nil
		}
		if ks.Type != schema.TypeStruct {
			return nil, fmt.Errorf("%w: table %s: key schema must be primitive or struct, got %s",
				ErrInvalidFields, table, ks.Type)
		}
		return structFields(table, "key", ks, pkFields)

	case config.PrimaryKeyRecordValue:
		if pair.ValueSchema == nil {
			return nil, fmt.Errorf("%w: table %s: pk_mode=record_value with a missing value schema", ErrInvalidFields, table)
		}
		return structFields(table, "value", pair.ValueSchema, pkFields)

	default:
		return nil, fmt.Errorf("%w: table %s: unknown pk_mode %s", ErrInvalidFields, table, pkMode)
	}
}

func structFields(table, side string, s *schema.Schema, pkFields []string) ([]string, error) {
	if len(pkFields) == 0 {
		names := make([]string, 0, len(s.Fields()))
		for _, f := range s.Fields() {
			names = append(names, f.Name)
		}
		return names, nil
	}

	for _, name := range pkFields {
		if _, ok := s.Field(name); !ok {
			return nil, fmt.Errorf("%w: table %s: pk field %q not found in %s schema",
				ErrInvalidFields, table, name, side)
		}
	}
	return slices.Clone(pkFields), nil
}
