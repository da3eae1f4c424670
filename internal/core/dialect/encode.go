package dialect

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// convertLogical handles the logical types. native keeps decimal.Decimal and
// uuid.UUID for drivers that accept them directly; otherwise they are bound
// as strings.
func convertLogical(s *schema.Schema, value any, native bool) (any, bool, error) {
	switch s.Name {
	case schema.DecimalName:
		var d decimal.Decimal
		switch val := value.(type) {
		case decimal.Decimal:
			d = val
		case string:
			parsed, err := decimal.NewFromString(val)
			if err != nil {
				return nil, true, fmt.Errorf("%w: decimal %q: %w", ErrUnsupportedValue, val, err)
			}
			d = parsed
		default:
			return nil, true, fmt.Errorf("%w: %T for decimal", ErrUnsupportedValue, value)
		}
		if native {
			return d, true, nil
		}
		return d.String(), true, nil

	case schema.DateName, schema.TimeName, schema.TimestampName:
		t, ok := value.(time.Time)
		if !ok {
			return nil, true, fmt.Errorf("%w: %T for %s", ErrUnsupportedValue, value, s.Name)
		}
		return t.UTC(), true, nil

	case schema.UUIDName:
		var u uuid.UUID
		switch val := value.(type) {
		case uuid.UUID:
			u = val
		case string:
			parsed, err := uuid.Parse(val)
			if err != nil {
				return nil, true, fmt.Errorf("%w: uuid %q: %w", ErrUnsupportedValue, val, err)
			}
			u = parsed
		default:
			return nil, true, fmt.Errorf("%w: %T for uuid", ErrUnsupportedValue, value)
		}
		if native {
			return u, true, nil
		}
		return u.String(), true, nil
	}

	return nil, false, nil
}

// typedSlice converts array items to a slice typed after the element schema.
func typedSlice(s *schema.Schema, items []any) (any, error) {
	elem := s.ValueSchema
	if elem == nil {
		return nil, fmt.Errorf("%w: array without element schema", ErrUnsupportedValue)
	}

	switch elem.Type {
	case schema.TypeString:
		return collect[string](items, func(v any) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64:
		return collect[int64](items, toInt64)
	case schema.TypeFloat32, schema.TypeFloat64:
		return collect[float64](items, func(v any) (float64, bool) {
			switch f := v.(type) {
			case float32:
				return float64(f), true
			case float64:
				return f, true
			default:
				return 0, false
			}
		})
	case schema.TypeBoolean:
		return collect[bool](items, func(v any) (bool, bool) {
			b, ok := v.(bool)
			return b, ok
		})
	case schema.TypeBytes:
		return collect[[]byte](items, func(v any) ([]byte, bool) {
			b, ok := v.([]byte)
			return b, ok
		})
	default:
		return nil, fmt.Errorf("%w: arrays of %s", ErrUnsupportedValue, elem.Type)
	}
}

func collect[T any](items []any, conv func(any) (T, bool)) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		v, ok := conv(item)
		if !ok {
			return nil, fmt.Errorf("%w: array element %d is %T", ErrUnsupportedValue, i, item)
		}
		out[i] = v
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
