package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packFields(t *testing.T, fields ...Field) []byte {
	t.Helper()
	data, err := EncodeFields(fields)
	require.NoError(t, err)
	return data
}

func TestFieldRoundTrip(t *testing.T) {
	cols := []ColDesc{
		NewColDesc(IntType, 0),
		NewColDesc(BigIntType, 0),
		NewColDesc(FloatType, 0),
		NewColDesc(CharType, 8),
		NewColDesc(DateTimeType, 0),
	}
	fields := []Field{
		NewIntField(-42),
		NewBigIntField(1 << 40),
		NewFloatField(3.25),
		NewCharField("abc", 8),
		NewDateTimeField(2024, 2, 29, 23, 59, 58),
	}

	data := packFields(t, fields...)
	require.Len(t, data, TotalLen(cols))

	decoded, err := DecodeFields(data, cols)
	require.NoError(t, err)
	require.Len(t, decoded, len(fields))
	for i := range fields {
		assert.Equal(t, fields[i].String(), decoded[i].String())
	}
}

func TestCompareColumnNumeric(t *testing.T) {
	intCol := NewColDesc(IntType, 0)
	a := packFields(t, NewIntField(-5))
	b := packFields(t, NewIntField(3))
	assert.Equal(t, -1, CompareColumn(a, b, intCol))
	assert.Equal(t, 1, CompareColumn(b, a, intCol))
	assert.Equal(t, 0, CompareColumn(a, a, intCol))

	floatCol := NewColDesc(FloatType, 0)
	fa := packFields(t, NewFloatField(-1.5))
	fb := packFields(t, NewFloatField(2.25))
	assert.Equal(t, -1, CompareColumn(fa, fb, floatCol))
}

func TestCompareColumnDateTime(t *testing.T) {
	col := NewColDesc(DateTimeType, 0)
	early := packFields(t, NewDateTimeField(2023, 12, 31, 23, 59, 59))
	late := packFields(t, NewDateTimeField(2024, 1, 1, 0, 0, 0))
	assert.Equal(t, -1, CompareColumn(early, late, col))
	assert.Equal(t, 1, CompareColumn(late, early, col))
}

func TestCompareKeysMultiColumn(t *testing.T) {
	cols := []ColDesc{NewColDesc(IntType, 0), NewColDesc(CharType, 4)}

	k1 := packFields(t, NewIntField(1), NewCharField("aa", 4))
	k2 := packFields(t, NewIntField(1), NewCharField("ab", 4))
	k3 := packFields(t, NewIntField(2), NewCharField("aa", 4))

	assert.Equal(t, -1, CompareKeys(k1, k2, cols))
	assert.Equal(t, -1, CompareKeys(k2, k3, cols))
	assert.Equal(t, 0, CompareKeys(k1, k1, cols))
}

func TestCompareKeysPrefixProbe(t *testing.T) {
	cols := []ColDesc{NewColDesc(IntType, 0), NewColDesc(CharType, 4)}

	full := packFields(t, NewIntField(7), NewCharField("zz", 4))
	probe := packFields(t, NewIntField(7))
	other := packFields(t, NewIntField(8))

	assert.Equal(t, 0, CompareKeys(probe, full, cols))
	assert.Equal(t, -1, CompareKeys(probe, packFields(t, NewIntField(8), NewCharField("aa", 4)), cols))
	assert.Equal(t, 1, CompareKeys(other, full, cols))
}

func TestCharFieldPadding(t *testing.T) {
	data := packFields(t, NewCharField("hi", 8))
	require.Len(t, data, 8)
	assert.True(t, bytes.HasPrefix(data, []byte("hi")))

	decoded, err := DecodeFields(data, []ColDesc{NewColDesc(CharType, 8)})
	require.NoError(t, err)
	assert.Equal(t, "hi", decoded[0].String())
}

func TestDateTimeValidity(t *testing.T) {
	assert.True(t, NewDateTimeField(2024, 2, 29, 0, 0, 0).IsValid())
	assert.False(t, NewDateTimeField(2023, 2, 29, 0, 0, 0).IsValid())
	assert.False(t, NewDateTimeField(2023, 4, 31, 0, 0, 0).IsValid())
	assert.True(t, NewDateTimeField(2000, 2, 29, 0, 0, 0).IsValid())
	assert.False(t, NewDateTimeField(1900, 2, 29, 0, 0, 0).IsValid())
}
