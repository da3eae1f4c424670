package record

import (
	"fmt"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// Record is one change event. A nil Value marks a tombstone.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64

	Key         any
	KeySchema   *schema.Schema
	Value       any
	ValueSchema *schema.Schema
}

func (r Record) IsTombstone() bool {
	return r.Value == nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s-%d@%d", r.Topic, r.Partition, r.Offset)
}
