package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kafaichoi/minipg/internal/record"
)

// Tuple encoding (format version 1), little-endian:
//
//	row_id u64 | value_count u16 | (tag u8 | payload)*
//
// Payloads: Int64 = 8 bytes, Text = u32 len + bytes, Bool = 1 byte,
// Null = empty, Map = u16 pairs + (text key | value)*, List = u16 count +
// value*. Map and List appear only in header-page metadata tuples.
const (
	tagInt64 byte = iota + 1
	tagText
	tagBool
	tagNull
	tagMap
	tagList
)

var (
	ErrBadTuple        = errors.New("tuple: buffer underflow or bad tag")
	ErrVarTooLong      = errors.New("tuple: variable length exceeds u32")
	ErrUnsupportedType = errors.New("tuple: unsupported value type")
)

// Tuple is one decoded row.
type Tuple struct {
	RowID  uint64
	Values []record.Value
}

// EncodeTuple serializes a row tuple.
func EncodeTuple(rowID uint64, values []record.Value) ([]byte, error) {
	if len(values) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d values", ErrUnsupportedType, len(values))
	}
	out := make([]byte, 10)
	binary.LittleEndian.PutUint64(out[0:], rowID)
	binary.LittleEndian.PutUint16(out[8:], uint16(len(values)))
	var err error
	for _, v := range values {
		out, err = appendValue(out, valueToAny(v))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeTuple is the inverse of EncodeTuple.
func DecodeTuple(buf []byte) (Tuple, error) {
	rowID, vals, err := decodeTupleAny(buf)
	if err != nil {
		return Tuple{}, err
	}
	out := Tuple{RowID: rowID, Values: make([]record.Value, len(vals))}
	for i, v := range vals {
		rv, err := anyToValue(v)
		if err != nil {
			return Tuple{}, err
		}
		out.Values[i] = rv
	}
	return out, nil
}

// EncodeMapTuple serializes a metadata tuple whose single value is a map.
// Used for page 0 of every table.
func EncodeMapTuple(rowID uint64, m map[string]any) ([]byte, error) {
	out := make([]byte, 10)
	binary.LittleEndian.PutUint64(out[0:], rowID)
	binary.LittleEndian.PutUint16(out[8:], 1)
	return appendValue(out, m)
}

// DecodeMapTuple is the inverse of EncodeMapTuple.
func DecodeMapTuple(buf []byte) (uint64, map[string]any, error) {
	rowID, vals, err := decodeTupleAny(buf)
	if err != nil {
		return 0, nil, err
	}
	if len(vals) != 1 {
		return 0, nil, fmt.Errorf("%w: metadata tuple has %d values", ErrBadTuple, len(vals))
	}
	m, ok := vals[0].(map[string]any)
	if !ok {
		return 0, nil, fmt.Errorf("%w: metadata tuple value is %T", ErrBadTuple, vals[0])
	}
	return rowID, m, nil
}

func decodeTupleAny(buf []byte) (uint64, []any, error) {
	if len(buf) < 10 {
		return 0, nil, fmt.Errorf("%w: tuple header", ErrBadTuple)
	}
	rowID := binary.LittleEndian.Uint64(buf[0:])
	n := int(binary.LittleEndian.Uint16(buf[8:]))
	pos := 10

	vals := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, next, err := readValue(buf, pos)
		if err != nil {
			return 0, nil, err
		}
		vals = append(vals, v)
		pos = next
	}
	if pos != len(buf) {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrBadTuple, len(buf)-pos)
	}
	return rowID, vals, nil
}

func valueToAny(v record.Value) any {
	switch v.Kind {
	case record.KindInt64:
		return v.Int
	case record.KindText:
		return v.Str
	case record.KindBool:
		return v.Bool
	default:
		return nil
	}
}

func anyToValue(v any) (record.Value, error) {
	switch x := v.(type) {
	case nil:
		return record.Null(), nil
	case int64:
		return record.Int64(x), nil
	case string:
		return record.Text(x), nil
	case bool:
		return record.Boolean(x), nil
	default:
		return record.Value{}, fmt.Errorf("%w: %T in row tuple", ErrUnsupportedType, v)
	}
}

func appendValue(out []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(out, tagNull), nil

	case int64:
		out = append(out, tagInt64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(x))
		return append(out, b[:]...), nil

	case string:
		return appendText(append(out, tagText), x)

	case bool:
		out = append(out, tagBool)
		if x {
			return append(out, 1), nil
		}
		return append(out, 0), nil

	case map[string]any:
		if len(x) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: map with %d keys", ErrUnsupportedType, len(x))
		}
		out = append(out, tagMap)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(len(x)))
		out = append(out, b[:]...)

		// deterministic encoding
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var err error
		for _, k := range keys {
			out, err = appendText(out, k)
			if err != nil {
				return nil, err
			}
			out, err = appendValue(out, x[k])
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case []any:
		if len(x) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: list with %d items", ErrUnsupportedType, len(x))
		}
		out = append(out, tagList)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(len(x)))
		out = append(out, b[:]...)

		var err error
		for _, item := range x {
			out, err = appendValue(out, item)
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func appendText(out []byte, s string) ([]byte, error) {
	if int64(len(s)) > math.MaxUint32 {
		return nil, ErrVarTooLong
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	out = append(out, b[:]...)
	return append(out, s...), nil
}

func readValue(buf []byte, pos int) (any, int, error) {
	if pos >= len(buf) {
		return nil, 0, fmt.Errorf("%w: missing tag", ErrBadTuple)
	}
	tag := buf[pos]
	pos++

	switch tag {
	case tagNull:
		return nil, pos, nil

	case tagInt64:
		if pos+8 > len(buf) {
			return nil, 0, fmt.Errorf("%w: short int64", ErrBadTuple)
		}
		v := int64(binary.LittleEndian.Uint64(buf[pos:]))
		return v, pos + 8, nil

	case tagText:
		s, next, err := readText(buf, pos)
		if err != nil {
			return nil, 0, err
		}
		return s, next, nil

	case tagBool:
		if pos >= len(buf) {
			return nil, 0, fmt.Errorf("%w: short bool", ErrBadTuple)
		}
		return buf[pos] != 0, pos + 1, nil

	case tagMap:
		if pos+2 > len(buf) {
			return nil, 0, fmt.Errorf("%w: short map header", ErrBadTuple)
		}
		n := int(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, next, err := readText(buf, pos)
			if err != nil {
				return nil, 0, err
			}
			v, next2, err := readValue(buf, next)
			if err != nil {
				return nil, 0, err
			}
			m[k] = v
			pos = next2
		}
		return m, pos, nil

	case tagList:
		if pos+2 > len(buf) {
			return nil, 0, fmt.Errorf("%w: short list header", ErrBadTuple)
		}
		n := int(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
		l := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, next, err := readValue(buf, pos)
			if err != nil {
				return nil, 0, err
			}
			l = append(l, v)
			pos = next
		}
		return l, pos, nil

	default:
		return nil, 0, fmt.Errorf("%w: tag %d", ErrBadTuple, tag)
	}
}

func readText(buf []byte, pos int) (string, int, error) {
	if pos+4 > len(buf) {
		return "", 0, fmt.Errorf("%w: short text length", ErrBadTuple)
	}
	n := int(binary.LittleEndian.Uint32(buf[pos:]))
	pos += 4
	if pos+n > len(buf) {
		return "", 0, fmt.Errorf("%w: short text body", ErrBadTuple)
	}
	return string(buf[pos : pos+n]), pos + n, nil
}
