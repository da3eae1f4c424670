package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

var ErrSchemaRequired = errors.New("record requires a schema envelope")

// Decode builds a record from JSON converter envelopes
// ({"schema": ..., "payload": ...}) for the key and the value. An empty side
// or a null payload leaves that side absent.
func Decode(topic string, partition int32, offset int64, key, value []byte) (Record, error) {
	rec := Record{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
	}

	var err error
	rec.KeySchema, rec.Key, err = decodeEnvelope(key)
	if err != nil {
		return Record{}, fmt.Errorf("decode key of %s: %w", rec, err)
	}

	rec.ValueSchema, rec.Value, err = decodeEnvelope(value)
	if err != nil {
		return Record{}, fmt.Errorf("decode value of %s: %w", rec, err)
	}

	return rec, nil
}

func decodeEnvelope(data []byte) (*schema.Schema, any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	rawSchema, hasSchema := env["schema"]
	rawPayload, hasPayload := env["payload"]
	if !hasSchema || !hasPayload || len(env) != 2 {
		return nil, nil, ErrSchemaRequired
	}

	s, err := schema.Parse(rawSchema)
	if err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(rawPayload))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	if payload == nil {
		return s, nil, nil
	}
	if s == nil {
		return nil, nil, ErrSchemaRequired
	}

	v, err := schema.Convert(s, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert payload: %w", err)
	}

	return s, v, nil
}
