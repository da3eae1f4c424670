package binder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

type boundParam struct {
	Index  int
	Schema *schema.Schema
	Value  any
}

// recordingStatement keeps every bound parameter and the rows added to the batch.
type recordingStatement struct {
	params  []boundParam
	batches int
	addErr  error
}

func (s *recordingStatement) SetParam(int, any) error {
	return nil
}

func (s *recordingStatement) AddBatch() error {
	if s.addErr != nil {
		return s.addErr
	}
	s.batches++
	return nil
}

// recordingEncoder records each BindField call on the statement it was given.
type recordingEncoder struct {
	failAt int
	err    error
}

func (e *recordingEncoder) BindField(stmt Statement, index int, s *schema.Schema, value any) error {
	if e.failAt == index {
		return e.err
	}
	rs := stmt.(*recordingStatement) //nolint:forcetypeassert // test double
	rs.params = append(rs.params, boundParam{Index: index, Schema: s, Value: value})
	return stmt.SetParam(index, value)
}

func (s *recordingStatement) indexes() []int {
	idx := make([]int, len(s.params))
	for i, p := range s.params {
		idx[i] = p.Index
	}
	return idx
}

func (s *recordingStatement) values() []any {
	vals := make([]any, len(s.params))
	for i, p := range s.params {
		vals[i] = p.Value
	}
	return vals
}

var (
	keySchema = schema.StructOf("key",
		schema.NewField("id", schema.Int64()),
		schema.NewField("region", schema.String()),
	)
	valueSchema = schema.StructOf("value",
		schema.NewField("id", schema.Int64()),
		schema.NewField("name", schema.String()),
		schema.NewField("deleted", schema.Boolean()),
	)
)

func newKey(id int64, region string) *schema.Struct {
	return schema.NewStruct(keySchema).MustPut("id", id).MustPut("region", region)
}

func newValue(id int64, name string, deleted bool) *schema.Struct {
	return schema.NewStruct(valueSchema).MustPut("id", id).MustPut("name", name).MustPut("deleted", deleted)
}

func newRecord(key, value *schema.Struct) record.Record {
	rec := record.Record{
		Topic:     "users",
		Partition: 3,
		Offset:    42,
		KeySchema: keySchema,
	}
	if key != nil {
		rec.Key = key
	}
	if value != nil {
		rec.Value = value
		rec.ValueSchema = valueSchema
	}
	return rec
}

func newBinder(
	pkMode config.PrimaryKeyMode,
	fields metadata.FieldsMetadata,
	mode config.InsertMode,
	opts *Options,
) (*Binder, *recordingStatement) {
	stmt := &recordingStatement{}
	b := New(&recordingEncoder{}, stmt, pkMode, metadata.SchemaPair{KeySchema: keySchema, ValueSchema: valueSchema}, fields, mode, opts)
	return b, stmt
}

func TestBindRecordKeyUpsert(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id", "region"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}
	b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeUpsert, nil)

	err := b.Bind(newRecord(newKey(7, "eu"), newValue(7, "ada", false)))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, stmt.indexes())
	assert.Equal(t, []any{int64(7), "eu", "ada", false}, stmt.values())
	assert.Equal(t, schema.TypeInt64, stmt.params[0].Schema.Type)
	assert.Equal(t, schema.TypeString, stmt.params[1].Schema.Type)
	assert.Equal(t, schema.TypeString, stmt.params[2].Schema.Type)
	assert.Equal(t, schema.TypeBoolean, stmt.params[3].Schema.Type)
	assert.Equal(t, 1, stmt.batches)
}

func TestBindInsertOrdersKeysFirst(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}

	for _, mode := range []config.InsertMode{config.InsertModeInsert, config.InsertModeUpsert} {
		t.Run(mode.String(), func(t *testing.T) {
			b, stmt := newBinder(config.PrimaryKeyRecordValue, fields, mode, nil)

			require.NoError(t, b.Bind(newRecord(nil, newValue(1, "bob", false))))
			assert.Equal(t, []any{int64(1), "bob", false}, stmt.values())
			assert.Equal(t, []int{1, 2, 3}, stmt.indexes())
		})
	}
}

func TestBindUpdateOrdersNonKeysFirst(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id", "region"},
		NonKeyFieldNames: []string{"name"},
	}
	b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeUpdate, nil)

	require.NoError(t, b.Bind(newRecord(newKey(9, "us"), newValue(9, "cy", false))))

	assert.Equal(t, []int{1, 2, 3}, stmt.indexes())
	assert.Equal(t, []any{"cy", int64(9), "us"}, stmt.values())
}

func TestBindTombstoneBindsKeysOnly(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id", "region"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}

	for _, mode := range []config.InsertMode{config.InsertModeInsert, config.InsertModeUpsert, config.InsertModeUpdate} {
		t.Run(mode.String(), func(t *testing.T) {
			b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, mode, nil)

			require.NoError(t, b.Bind(newRecord(newKey(5, "ap"), nil)))
			assert.Equal(t, []int{1, 2}, stmt.indexes())
			assert.Equal(t, []any{int64(5), "ap"}, stmt.values())
			assert.Equal(t, 1, stmt.batches)
		})
	}
}

func TestBindKafkaPosition(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{metadata.KafkaTopicField, metadata.KafkaPartitionField, metadata.KafkaOffsetField},
		NonKeyFieldNames: []string{"name"},
	}
	b, stmt := newBinder(config.PrimaryKeyKafka, fields, config.InsertModeInsert, nil)

	require.NoError(t, b.Bind(newRecord(nil, newValue(1, "dee", false))))

	require.Len(t, stmt.params, 4)
	assert.Equal(t, []any{"users", int32(3), int64(42), "dee"}, stmt.values())
	assert.Equal(t, schema.TypeString, stmt.params[0].Schema.Type)
	assert.Equal(t, schema.TypeInt32, stmt.params[1].Schema.Type)
	assert.Equal(t, schema.TypeInt64, stmt.params[2].Schema.Type)
}

func TestBindPrimitiveKey(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id"},
		NonKeyFieldNames: []string{"name"},
	}
	stmt := &recordingStatement{}
	pair := metadata.SchemaPair{KeySchema: schema.Int64(), ValueSchema: valueSchema}
	b := New(&recordingEncoder{}, stmt, config.PrimaryKeyRecordKey, pair, fields, config.InsertModeInsert, nil)

	rec := newRecord(nil, newValue(11, "eve", false))
	rec.KeySchema = schema.Int64()
	rec.Key = int64(11)

	require.NoError(t, b.Bind(rec))
	assert.Equal(t, []any{int64(11), "eve"}, stmt.values())
	assert.Same(t, pair.KeySchema, stmt.params[0].Schema)
}

func TestBindNoKeyInsert(t *testing.T) {
	fields := metadata.FieldsMetadata{NonKeyFieldNames: []string{"name"}}
	b, stmt := newBinder(config.PrimaryKeyNone, fields, config.InsertModeInsert, nil)

	require.NoError(t, b.Bind(newRecord(nil, newValue(1, "fay", false))))
	assert.Equal(t, []int{1}, stmt.indexes())
	assert.Equal(t, []any{"fay"}, stmt.values())
}

func TestBindInvariantViolations(t *testing.T) {
	tests := []struct {
		name   string
		pkMode config.PrimaryKeyMode
		mode   config.InsertMode
		fields metadata.FieldsMetadata
		rec    record.Record
	}{
		{
			name:   "none with key fields",
			pkMode: config.PrimaryKeyNone,
			mode:   config.InsertModeInsert,
			fields: metadata.FieldsMetadata{KeyFieldNames: []string{"id"}, NonKeyFieldNames: []string{"name"}},
			rec:    newRecord(nil, newValue(1, "a", false)),
		},
		{
			name:   "kafka with two key fields",
			pkMode: config.PrimaryKeyKafka,
			mode:   config.InsertModeInsert,
			fields: metadata.FieldsMetadata{KeyFieldNames: []string{"a", "b"}},
			rec:    newRecord(nil, newValue(1, "a", false)),
		},
		{
			name:   "unknown pk mode",
			pkMode: config.PrimaryKeyMode(99),
			mode:   config.InsertModeInsert,
			fields: metadata.FieldsMetadata{KeyFieldNames: []string{"id"}},
			rec:    newRecord(nil, newValue(1, "a", false)),
		},
		{
			name:   "unknown insert mode",
			pkMode: config.PrimaryKeyNone,
			mode:   config.InsertMode(99),
			fields: metadata.FieldsMetadata{NonKeyFieldNames: []string{"name"}},
			rec:    newRecord(nil, newValue(1, "a", false)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, stmt := newBinder(tt.pkMode, tt.fields, tt.mode, nil)

			defer func() {
				r := recover()
				require.NotNil(t, r)
				assert.IsType(t, &InvariantViolation{}, r)
				assert.Zero(t, stmt.batches)
			}()
			_ = b.Bind(tt.rec)
		})
	}
}

func TestBindPrimitiveKeyInvariant(t *testing.T) {
	fields := metadata.FieldsMetadata{KeyFieldNames: []string{"a", "b"}}
	pair := metadata.SchemaPair{KeySchema: schema.String(), ValueSchema: valueSchema}
	b := New(&recordingEncoder{}, &recordingStatement{}, config.PrimaryKeyRecordKey, pair, fields, config.InsertModeInsert, nil)

	rec := newRecord(nil, nil)
	rec.Key = "k"

	assert.PanicsWithError(t, `binder invariant violated: primitive key needs 1 key field, got [a b]`, func() {
		_ = b.Bind(rec)
	})
}

func TestBindErrors(t *testing.T) {
	t.Run("unresolved key field", func(t *testing.T) {
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"missing"}}
		b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeInsert, nil)

		err := b.Bind(newRecord(newKey(1, "eu"), nil))

		require.ErrorIs(t, err, ErrUnresolvedField)
		assert.Zero(t, stmt.batches)
	})

	t.Run("unresolved non-key field", func(t *testing.T) {
		fields := metadata.FieldsMetadata{NonKeyFieldNames: []string{"email"}}
		b, _ := newBinder(config.PrimaryKeyNone, fields, config.InsertModeInsert, nil)

		err := b.Bind(newRecord(nil, newValue(1, "a", false)))

		require.ErrorIs(t, err, ErrUnresolvedField)
	})

	t.Run("key struct with reordered fields", func(t *testing.T) {
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id", "region"}}
		b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeInsert, nil)

		reordered := schema.StructOf("key",
			schema.NewField("region", schema.String()),
			schema.NewField("id", schema.Int64()),
		)
		rec := newRecord(nil, nil)
		rec.Key = schema.NewStruct(reordered).MustPut("region", "eu").MustPut("id", int64(1))

		err := b.Bind(rec)

		require.ErrorIs(t, err, ErrUnresolvedField)
		require.ErrorIs(t, err, schema.ErrUnknownField)
		assert.Empty(t, stmt.params)
		assert.Zero(t, stmt.batches)
	})

	t.Run("value struct with reordered key fields", func(t *testing.T) {
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}}
		b, stmt := newBinder(config.PrimaryKeyRecordValue, fields, config.InsertModeInsert, nil)

		reordered := schema.StructOf("value",
			schema.NewField("name", schema.String()),
			schema.NewField("id", schema.Int64()),
		)
		rec := newRecord(nil, nil)
		rec.Value = schema.NewStruct(reordered).MustPut("name", "a").MustPut("id", int64(1))
		rec.ValueSchema = valueSchema

		require.ErrorIs(t, b.Bind(rec), ErrUnresolvedField)
		assert.Zero(t, stmt.batches)
	})

	t.Run("key is not a struct", func(t *testing.T) {
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}}
		b, _ := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeInsert, nil)

		rec := newRecord(nil, nil)
		rec.Key = "plain"

		require.ErrorIs(t, b.Bind(rec), ErrNotStruct)
	})

	t.Run("missing key schema", func(t *testing.T) {
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}}
		b := New(&recordingEncoder{}, &recordingStatement{}, config.PrimaryKeyRecordKey,
			metadata.SchemaPair{ValueSchema: valueSchema}, fields, config.InsertModeInsert, nil)

		require.ErrorIs(t, b.Bind(newRecord(newKey(1, "eu"), nil)), ErrMissingSchema)
	})

	t.Run("encoder error is returned unchanged", func(t *testing.T) {
		encodeErr := errors.New("unsupported value")
		fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id", "region"}, NonKeyFieldNames: []string{"name"}}
		stmt := &recordingStatement{}
		b := New(&recordingEncoder{failAt: 3, err: encodeErr}, stmt, config.PrimaryKeyRecordKey,
			metadata.SchemaPair{KeySchema: keySchema, ValueSchema: valueSchema}, fields, config.InsertModeInsert, nil)

		err := b.Bind(newRecord(newKey(1, "eu"), newValue(1, "a", false)))

		assert.Same(t, encodeErr, err)
		assert.Len(t, stmt.params, 2)
		assert.Zero(t, stmt.batches)
	})

	t.Run("add batch error", func(t *testing.T) {
		addErr := errors.New("closed")
		fields := metadata.FieldsMetadata{NonKeyFieldNames: []string{"name"}}
		stmt := &recordingStatement{addErr: addErr}
		b := New(&recordingEncoder{}, stmt, config.PrimaryKeyNone,
			metadata.SchemaPair{ValueSchema: valueSchema}, fields, config.InsertModeInsert, nil)

		err := b.Bind(newRecord(nil, newValue(1, "a", false)))

		require.ErrorIs(t, err, addErr)
		assert.ErrorContains(t, err, "add batch")
	})
}

func TestBindDeleteByField(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id", "region"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}

	tests := []struct {
		name     string
		opts     *Options
		value    *schema.Struct
		expected []any
	}{
		{
			name:     "flag set and enabled",
			opts:     &Options{DeleteByField: true},
			value:    newValue(1, "a", true),
			expected: []any{int64(1), "eu"},
		},
		{
			name:     "flag unset",
			opts:     &Options{DeleteByField: true},
			value:    newValue(1, "a", false),
			expected: []any{int64(1), "eu", "a", false},
		},
		{
			name:     "feature disabled",
			opts:     &Options{},
			value:    newValue(1, "a", true),
			expected: []any{int64(1), "eu", "a", true},
		},
		{
			name:     "no options",
			opts:     nil,
			value:    newValue(1, "a", true),
			expected: []any{int64(1), "eu", "a", true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, stmt := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeUpsert, tt.opts)

			require.NoError(t, b.Bind(newRecord(newKey(1, "eu"), tt.value)))
			assert.Equal(t, tt.expected, stmt.values())
		})
	}
}

func TestBindDeleteByFieldWithoutDeletedField(t *testing.T) {
	noFlag := schema.StructOf("value", schema.NewField("id", schema.Int64()), schema.NewField("name", schema.String()))
	fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}, NonKeyFieldNames: []string{"name"}}
	stmt := &recordingStatement{}
	b := New(&recordingEncoder{}, stmt, config.PrimaryKeyRecordValue,
		metadata.SchemaPair{ValueSchema: noFlag}, fields, config.InsertModeInsert, &Options{DeleteByField: true})

	rec := record.Record{
		Topic:       "users",
		Value:       schema.NewStruct(noFlag).MustPut("id", int64(4)).MustPut("name", "gus"),
		ValueSchema: noFlag,
	}

	require.NoError(t, b.Bind(rec))
	assert.Equal(t, []any{int64(4), "gus"}, stmt.values())
}

func TestBindDeleteByFieldIgnoresNonBooleanFlag(t *testing.T) {
	textFlag := schema.StructOf("value",
		schema.NewField("id", schema.Int64()),
		schema.NewField("name", schema.String()),
		schema.NewField("deleted", schema.String()),
	)
	fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}, NonKeyFieldNames: []string{"name", "deleted"}}
	stmt := &recordingStatement{}
	b := New(&recordingEncoder{}, stmt, config.PrimaryKeyRecordValue,
		metadata.SchemaPair{ValueSchema: textFlag}, fields, config.InsertModeInsert, &Options{DeleteByField: true})

	rec := record.Record{
		Topic:       "users",
		Value:       schema.NewStruct(textFlag).MustPut("id", int64(5)).MustPut("name", "hal").MustPut("deleted", "true"),
		ValueSchema: textFlag,
	}

	assert.False(t, IsDelete(rec, true))
	require.NoError(t, b.Bind(rec))
	assert.Equal(t, []int{1, 2, 3}, stmt.indexes())
	assert.Equal(t, []any{int64(5), "hal", "true"}, stmt.values())
	assert.Equal(t, 1, stmt.batches)
}

func TestIsDelete(t *testing.T) {
	assert.True(t, IsDelete(newRecord(newKey(1, "eu"), nil), false))
	assert.False(t, IsDelete(newRecord(newKey(1, "eu"), newValue(1, "a", true)), false))
	assert.True(t, IsDelete(newRecord(newKey(1, "eu"), newValue(1, "a", true)), true))
	assert.False(t, IsDelete(newRecord(newKey(1, "eu"), newValue(1, "a", false)), true))

	nilFlag := newRecord(newKey(1, "eu"), schema.NewStruct(valueSchema).MustPut("id", int64(1)))
	assert.False(t, IsDelete(nilFlag, true))
}

// Enum-set columns are resolved to the enum-set schema, yet the declared
// field schema is what the encoder receives.
func TestBindEnumSetKeepsDeclaredSchema(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}
	b, stmt := newBinder(config.PrimaryKeyRecordValue, fields, config.InsertModeInsert, &Options{EnumSets: []string{"name"}})

	require.NoError(t, b.Bind(newRecord(nil, newValue(1, "red,green", false))))

	nameField, ok := valueSchema.Field("name")
	require.True(t, ok)
	assert.Same(t, nameField.Schema, stmt.params[1].Schema)
	assert.False(t, stmt.params[1].Schema.IsEnumSet())
	assert.Equal(t, 1, b.IgnoredEnumSetOverrides())

	require.NoError(t, b.Bind(newRecord(nil, newValue(2, "blue", false))))
	assert.Equal(t, 2, b.IgnoredEnumSetOverrides())
}

func TestBindEnumSetOptionsAreCopied(t *testing.T) {
	opts := &Options{EnumSets: []string{"name"}}
	fields := metadata.FieldsMetadata{NonKeyFieldNames: []string{"name"}}
	b, _ := newBinder(config.PrimaryKeyNone, fields, config.InsertModeInsert, opts)

	opts.EnumSets[0] = "other"

	require.NoError(t, b.Bind(newRecord(nil, newValue(1, "a", false))))
	assert.Equal(t, 1, b.IgnoredEnumSetOverrides())
}

func TestBindIsRepeatable(t *testing.T) {
	fields := metadata.FieldsMetadata{
		KeyFieldNames:    []string{"id", "region"},
		NonKeyFieldNames: []string{"name", "deleted"},
	}
	rec := newRecord(newKey(3, "sa"), newValue(3, "hal", false))

	b1, stmt1 := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeUpsert, nil)
	b2, stmt2 := newBinder(config.PrimaryKeyRecordKey, fields, config.InsertModeUpsert, nil)

	require.NoError(t, b1.Bind(rec))
	require.NoError(t, b2.Bind(rec))
	assert.Equal(t, stmt1.params, stmt2.params)
}

func TestBindNumbersRowsIndependently(t *testing.T) {
	fields := metadata.FieldsMetadata{KeyFieldNames: []string{"id"}, NonKeyFieldNames: []string{"name"}}
	b, stmt := newBinder(config.PrimaryKeyRecordValue, fields, config.InsertModeInsert, nil)

	require.NoError(t, b.Bind(newRecord(nil, newValue(1, "a", false))))
	require.NoError(t, b.Bind(newRecord(nil, newValue(2, "b", false))))

	assert.Equal(t, []int{1, 2, 1, 2}, stmt.indexes())
	assert.Equal(t, 2, stmt.batches)
}
