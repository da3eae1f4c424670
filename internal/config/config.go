package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PrimaryKeyMode selects where the primary key columns of a row come from.
type PrimaryKeyMode int

const (
	PrimaryKeyNone PrimaryKeyMode = iota
	PrimaryKeyKafka
	PrimaryKeyRecordKey
	PrimaryKeyRecordValue
)

func (m PrimaryKeyMode) String() string {
	switch m {
	case PrimaryKeyNone:
		return "none"
	case PrimaryKeyKafka:
		return "kafka"
	case PrimaryKeyRecordKey:
		return "record_key"
	case PrimaryKeyRecordValue:
		return "record_value"
	default:
		return fmt.Sprintf("PrimaryKeyMode(%d)", int(m))
	}
}

func (m *PrimaryKeyMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "none", "":
		*m = PrimaryKeyNone
	case "kafka":
		*m = PrimaryKeyKafka
	case "record_key":
		*m = PrimaryKeyRecordKey
	case "record_value":
		*m = PrimaryKeyRecordValue
	default:
		return fmt.Errorf("unknown primary key mode %q", string(text))
	}
	return nil
}

func (m PrimaryKeyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// InsertMode selects the statement used for records that are not deletes.
type InsertMode int

const (
	InsertModeInsert InsertMode = iota
	InsertModeUpsert
	InsertModeUpdate
)

func (m InsertMode) String() string {
	switch m {
	case InsertModeInsert:
		return "insert"
	case InsertModeUpsert:
		return "upsert"
	case InsertModeUpdate:
		return "update"
	default:
		return fmt.Sprintf("InsertMode(%d)", int(m))
	}
}

func (m *InsertMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "insert", "":
		*m = InsertModeInsert
	case "upsert":
		*m = InsertModeUpsert
	case "update":
		*m = InsertModeUpdate
	default:
		return fmt.Errorf("unknown insert mode %q", string(text))
	}
	return nil
}

func (m InsertMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

const (
	DefaultTableNameFormat = "${topic}"
	DefaultBatchSize       = 3000
	DefaultMaxRetries      = 10
	DefaultRetryBackoff    = 3 * time.Second
)

var ErrInvalidConfig = errors.New("invalid sink config")

// SinkConfig describes how records are written to the destination database.
type SinkConfig struct {
	ConnectionURL    string         `json:"connection_url"`
	Dialect          string         `json:"dialect"`
	TableNameFormat  string         `json:"table_name_format" default:"${topic}"`
	InsertMode       InsertMode     `json:"insert_mode" default:"insert"`
	PrimaryKeyMode   PrimaryKeyMode `json:"pk_mode" default:"none"`
	PrimaryKeyFields []string       `json:"pk_fields"`
	FieldsWhitelist  []string       `json:"fields_whitelist"`
	DeleteEnabled    bool           `json:"delete_enabled"`
	// DeleteByField treats a boolean "deleted" value field set to true as a delete.
	DeleteByField bool         `json:"delete_by_field"`
	EnumSets      []string     `json:"enum_sets"`
	BatchSize     int          `json:"batch_size" default:"3000"`
	MaxRetries    int          `json:"max_retries" default:"10"`
	RetryBackoff  JSONDuration `json:"retry_backoff" default:"3s"`
}

// ApplyDefaults fills zero values with their defaults.
func (c *SinkConfig) ApplyDefaults() {
	if c.TableNameFormat == "" {
		c.TableNameFormat = DefaultTableNameFormat
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff.Duration() == 0 {
		c.RetryBackoff = NewJSONDuration(DefaultRetryBackoff)
	}
}

func (c *SinkConfig) Validate() error {
	if c.ConnectionURL == "" {
		return fmt.Errorf("%w: connection_url is required", ErrInvalidConfig)
	}
	if c.Dialect == "" {
		return fmt.Errorf("%w: dialect is required", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size should be > 0: %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries should be >= 0: %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.DeleteEnabled && c.PrimaryKeyMode != PrimaryKeyRecordKey {
		return fmt.Errorf("%w: delete_enabled requires pk_mode=record_key, got %s", ErrInvalidConfig, c.PrimaryKeyMode)
	}
	if c.DeleteByField && c.PrimaryKeyMode != PrimaryKeyRecordKey && c.PrimaryKeyMode != PrimaryKeyRecordValue {
		return fmt.Errorf("%w: delete_by_field requires pk_mode record_key or record_value, got %s",
			ErrInvalidConfig, c.PrimaryKeyMode)
	}
	return nil
}

// TableName expands the table name format for a topic.
func (c *SinkConfig) TableName(topic string) string {
	return strings.ReplaceAll(c.TableNameFormat, "${topic}", topic)
}

type JSONDuration struct {
	t time.Duration
}

func NewJSONDuration(d time.Duration) JSONDuration {
	return JSONDuration{t: d}
}

func (d *JSONDuration) UnmarshalJSON(b []byte) error {
	var rawValue any

	err := json.Unmarshal(b, &rawValue)
	if err != nil {
		return fmt.Errorf("unable to unmarshal duration: %w", err)
	}

	switch val := rawValue.(type) {
	case string:
		var err error
		d.t, err = time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("unable to parse as duration: %w", err)
		}
	default:
		return fmt.Errorf("invalid duration: %#v", rawValue)
	}

	return nil
}

func (d JSONDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.t.String())
}

func (d JSONDuration) String() string {
	return d.t.String()
}

func (d JSONDuration) Duration() time.Duration {
	return d.t
}
