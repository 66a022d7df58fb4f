package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Field is a single typed value. Fields serialize to the fixed-width
// little-endian layout described by their column descriptor.
type Field interface {
	Type() Type
	Serialize(w io.Writer) error
	String() string
	Length() uint16
}

// IntField is a 32-bit signed integer value.
type IntField struct {
	Value int32
}

func NewIntField(v int32) *IntField { return &IntField{Value: v} }

func (f *IntField) Type() Type     { return IntType }
func (f *IntField) Length() uint16 { return 4 }
func (f *IntField) String() string { return strconv.FormatInt(int64(f.Value), 10) }

func (f *IntField) Serialize(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, f.Value)
}

// BigIntField is a 64-bit signed integer value.
type BigIntField struct {
	Value int64
}

func NewBigIntField(v int64) *BigIntField { return &BigIntField{Value: v} }

func (f *BigIntField) Type() Type     { return BigIntType }
func (f *BigIntField) Length() uint16 { return 8 }
func (f *BigIntField) String() string { return strconv.FormatInt(f.Value, 10) }

func (f *BigIntField) Serialize(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, f.Value)
}

// FloatField is a 64-bit floating point value.
type FloatField struct {
	Value float64
}

func NewFloatField(v float64) *FloatField { return &FloatField{Value: v} }

func (f *FloatField) Type() Type     { return FloatType }
func (f *FloatField) Length() uint16 { return 8 }
func (f *FloatField) String() string { return strconv.FormatFloat(f.Value, 'g', -1, 64) }

func (f *FloatField) Serialize(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, math.Float64bits(f.Value))
}

// CharField is a fixed-width string value, zero-padded on disk.
type CharField struct {
	Value string
	Width uint16
}

func NewCharField(v string, width uint16) *CharField {
	return &CharField{Value: v, Width: width}
}

func (f *CharField) Type() Type     { return CharType }
func (f *CharField) Length() uint16 { return f.Width }
func (f *CharField) String() string { return f.Value }

func (f *CharField) Serialize(w io.Writer) error {
	buf := make([]byte, f.Width)
	copy(buf, f.Value)
	_, err := w.Write(buf)
	return err
}

// DateTimeField holds a calendar timestamp with second precision.
// On disk it packs to 8 bytes: year (2), month, day, hour, minute,
// second, one pad byte.
type DateTimeField struct {
	Year                        uint16
	Month, Day, Hour, Min, Sec  uint8
}

func NewDateTimeField(year uint16, month, day, hour, min, sec uint8) *DateTimeField {
	return &DateTimeField{Year: year, Month: month, Day: day, Hour: hour, Min: min, Sec: sec}
}

func (f *DateTimeField) Type() Type     { return DateTimeType }
func (f *DateTimeField) Length() uint16 { return 8 }

func (f *DateTimeField) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		f.Year, f.Month, f.Day, f.Hour, f.Min, f.Sec)
}

// IsValid checks the calendar validity of the date, including leap
// years.
func (f *DateTimeField) IsValid() bool {
	if f.Month < 1 || f.Month > 12 || f.Day < 1 {
		return false
	}
	days := [12]uint8{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	max := days[f.Month-1]
	if f.Month == 2 && (f.Year%400 == 0 || (f.Year%4 == 0 && f.Year%100 != 0)) {
		max++
	}
	if f.Day > max {
		return false
	}
	return f.Hour < 24 && f.Min < 60 && f.Sec < 60
}

func (f *DateTimeField) Serialize(w io.Writer) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:], f.Year)
	buf[2] = f.Month
	buf[3] = f.Day
	buf[4] = f.Hour
	buf[5] = f.Min
	buf[6] = f.Sec
	_, err := w.Write(buf)
	return err
}

// ParseField deserializes one field of the given column descriptor
// from a byte stream.
func ParseField(r io.Reader, col ColDesc) (Field, error) {
	buf := make([]byte, col.Len)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	switch col.Type {
	case IntType:
		return NewIntField(int32(binary.LittleEndian.Uint32(buf))), nil
	case BigIntType:
		return NewBigIntField(int64(binary.LittleEndian.Uint64(buf))), nil
	case FloatType:
		return NewFloatField(math.Float64frombits(binary.LittleEndian.Uint64(buf))), nil
	case CharType:
		return NewCharField(strings.TrimRight(string(buf), "\x00"), col.Len), nil
	case DateTimeType:
		return &DateTimeField{
			Year:  binary.LittleEndian.Uint16(buf[0:]),
			Month: buf[2],
			Day:   buf[3],
			Hour:  buf[4],
			Min:   buf[5],
			Sec:   buf[6],
		}, nil
	default:
		return nil, fmt.Errorf("unknown column type %d", col.Type)
	}
}

// EncodeFields packs a field list into a single fixed-width buffer.
func EncodeFields(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range fields {
		if err := f.Serialize(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeFields unpacks a buffer into fields per the column list.
func DecodeFields(data []byte, cols []ColDesc) ([]Field, error) {
	r := bytes.NewReader(data)
	fields := make([]Field, 0, len(cols))
	for _, c := range cols {
		f, err := ParseField(r, c)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
