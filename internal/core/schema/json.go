package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNullValue = errors.New("null value for required schema")

// descriptor is the JSON converter representation of a schema.
type descriptor struct {
	Type       string            `json:"type"`
	Optional   bool              `json:"optional"`
	Name       string            `json:"name"`
	Version    int               `json:"version"`
	Doc        string            `json:"doc"`
	Parameters map[string]string `json:"parameters"`
	Field      string            `json:"field"`
	Fields     []descriptor      `json:"fields"`
	Items      *descriptor       `json:"items"`
	Keys       *descriptor       `json:"keys"`
	Values     *descriptor       `json:"values"`
}

// Parse reads a JSON converter schema descriptor. A JSON null yields a nil schema.
func Parse(data []byte) (*Schema, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	return fromDescriptor(d)
}

func fromDescriptor(d descriptor) (*Schema, error) {
	t, err := ParseType(d.Type)
	if err != nil {
		return nil, err
	}

	s := &Schema{
		Type:       t,
		Name:       d.Name,
		Optional:   d.Optional,
		Version:    d.Version,
		Doc:        d.Doc,
		Parameters: d.Parameters,
	}

	switch t {
	case TypeArray:
		if d.Items == nil {
			return nil, fmt.Errorf("array schema without items")
		}
		if s.ValueSchema, err = fromDescriptor(*d.Items); err != nil {
			return nil, fmt.Errorf("array items: %w", err)
		}
	case TypeMap:
		if d.Keys == nil || d.Values == nil {
			return nil, fmt.Errorf("map schema without keys or values")
		}
		if s.KeySchema, err = fromDescriptor(*d.Keys); err != nil {
			return nil, fmt.Errorf("map keys: %w", err)
		}
		if s.ValueSchema, err = fromDescriptor(*d.Values); err != nil {
			return nil, fmt.Errorf("map values: %w", err)
		}
	case TypeStruct:
		s.fieldIndex = make(map[string]int, len(d.Fields))
		for _, fd := range d.Fields {
			if fd.Field == "" {
				return nil, fmt.Errorf("struct %q has a field without name", d.Name)
			}
			if _, dup := s.fieldIndex[fd.Field]; dup {
				return nil, fmt.Errorf("struct %q has duplicate field %q", d.Name, fd.Field)
			}
			fs, err := fromDescriptor(fd)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fd.Field, err)
			}
			s.addField(fd.Field, fs)
		}
	}

	return s, nil
}

// Convert turns a decoded JSON payload into the typed value for s. Numbers
// are expected as json.Number (decoder UseNumber) or float64.
func Convert(s *Schema, raw any) (any, error) {
	if raw == nil {
		if s.Optional {
			return nil, nil
		}
		return nil, ErrNullValue
	}

	switch s.Name {
	case DecimalName:
		return toDecimal(s, raw)
	case DateName:
		days, err := toInt(raw, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return time.Unix(0, 0).UTC().AddDate(0, 0, int(days)), nil
	case TimeName:
		ms, err := toInt(raw, 0, 86400000)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case TimestampName:
		ms, err := toInt(raw, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case UUIDName:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to uuid", raw)
		}
		u, err := uuid.Parse(str)
		if err != nil {
			return nil, fmt.Errorf("failed to parse UUID: %w", err)
		}
		return u, nil
	}

	switch s.Type {
	case TypeInt8:
		v, err := toInt(raw, math.MinInt8, math.MaxInt8)
		return int8(v), err
	case TypeInt16:
		v, err := toInt(raw, math.MinInt16, math.MaxInt16)
		return int16(v), err
	case TypeInt32:
		v, err := toInt(raw, math.MinInt32, math.MaxInt32)
		return int32(v), err
	case TypeInt64:
		return toInt(raw, math.MinInt64, math.MaxInt64)
	case TypeFloat32:
		v, err := toFloat(raw)
		return float32(v), err
	case TypeFloat64:
		return toFloat(raw)
	case TypeBoolean:
		switch val := raw.(type) {
		case bool:
			return val, nil
		case string:
			return strconv.ParseBool(val)
		default:
			return nil, fmt.Errorf("cannot convert %v to bool", val)
		}
	case TypeString:
		switch val := raw.(type) {
		case string:
			return val, nil
		case json.Number:
			return val.String(), nil
		default:
			return fmt.Sprintf("%v", val), nil
		}
	case TypeBytes:
		switch val := raw.(type) {
		case string:
			return base64.StdEncoding.DecodeString(val)
		case []byte:
			return val, nil
		default:
			return nil, fmt.Errorf("cannot convert %v to bytes", val)
		}
	case TypeArray:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to array", raw)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := Convert(s.ValueSchema, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case TypeMap:
		return toMap(s, raw)
	case TypeStruct:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to struct", raw)
		}
		st := NewStruct(s)
		for _, f := range s.fields {
			v, err := Convert(f.Schema, obj[f.Name])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			st.values[f.Index] = v
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported schema type %s", s.Type)
	}
}

func toInt(raw any, minVal, maxVal int64) (int64, error) {
	var v int64
	switch val := raw.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert %v to int: %w", val, err)
		}
		v = n
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("cannot convert %v to int", val)
		}
		v = int64(val)
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %v to int: %w", val, err)
		}
		v = n
	default:
		return 0, fmt.Errorf("cannot convert %v to int", val)
	}

	if v < minVal || v > maxVal {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", v, minVal, maxVal)
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	switch val := raw.(type) {
	case json.Number:
		return val.Float64()
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to float", val)
	}
}

func toDecimal(s *Schema, raw any) (decimal.Decimal, error) {
	scale, err := strconv.Atoi(s.Parameter(DecimalScaleParameter))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal scale %q: %w", s.Parameter(DecimalScaleParameter), err)
	}

	switch val := raw.(type) {
	case string:
		b, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("cannot decode decimal: %w", err)
		}
		return decimal.NewFromBigInt(unscaled(b), -int32(scale)), nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("cannot convert %v to decimal: %w", val, err)
		}
		return withScale(d, scale)
	case float64:
		return withScale(decimal.NewFromFloat(val), scale)
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot convert %v to decimal", val)
	}
}

// withScale sets d to the schema scale; digits beyond it are rejected, not rounded.
func withScale(d decimal.Decimal, scale int) (decimal.Decimal, error) {
	scaled := d.Truncate(int32(scale))
	if !scaled.Equal(d) {
		return decimal.Decimal{}, fmt.Errorf("decimal %s has more than %d fractional digits", d, scale)
	}
	return scaled, nil
}

// unscaled decodes a big-endian two's complement integer.
func unscaled(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

func toMap(s *Schema, raw any) (map[any]any, error) {
	if !s.KeySchema.Type.IsPrimitive() || s.KeySchema.Type == TypeBytes {
		return nil, fmt.Errorf("unsupported map key type %s", s.KeySchema.Type)
	}

	out := make(map[any]any)
	switch val := raw.(type) {
	case map[string]any:
		for k, v := range val {
			key, err := Convert(s.KeySchema, k)
			if err != nil {
				return nil, fmt.Errorf("map key %s: %w", k, err)
			}
			mv, err := Convert(s.ValueSchema, v)
			if err != nil {
				return nil, fmt.Errorf("map value %s: %w", k, err)
			}
			out[key] = mv
		}
	case []any:
		for i, entry := range val {
			pair, ok := entry.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("map entry %d is not a key/value pair", i)
			}
			key, err := Convert(s.KeySchema, pair[0])
			if err != nil {
				return nil, fmt.Errorf("map entry %d key: %w", i, err)
			}
			mv, err := Convert(s.ValueSchema, pair[1])
			if err != nil {
				return nil, fmt.Errorf("map entry %d value: %w", i, err)
			}
			out[key] = mv
		}
	default:
		return nil, fmt.Errorf("cannot convert %v to map", raw)
	}
	return out, nil
}
