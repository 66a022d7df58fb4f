package log

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// Codec selects the compression applied to record images (the value
// bytes of INSERT/DELETE/UPDATE records). Each image carries its own
// codec byte, so logs written under different settings stay readable.
type Codec uint8

const (
	CodecSnappy Codec = iota // default
	CodecNone
	CodecLZ4
)

// Compressor and DeCompressor are the pluggable transform pair for
// record images.
type (
	Compressor   func([]byte) []byte
	DeCompressor func([]byte) ([]byte, error)
)

var compressors = map[Codec]Compressor{
	CodecNone: func(in []byte) []byte { return in },
	CodecSnappy: func(in []byte) []byte {
		return snappy.Encode(nil, in)
	},
	CodecLZ4: func(in []byte) []byte {
		buf := &bytes.Buffer{}
		w := lz4.NewWriter(buf)
		w.NoChecksum = true
		_, _ = w.Write(in)
		_ = w.Close()
		return buf.Bytes()
	},
}

var decompressors = map[Codec]DeCompressor{
	CodecNone: func(in []byte) ([]byte, error) { return in, nil },
	CodecSnappy: func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	},
	CodecLZ4: func(in []byte) ([]byte, error) {
		buf := &bytes.Buffer{}
		r := lz4.NewReader(bytes.NewReader(in))
		_, err := buf.ReadFrom(r)
		return buf.Bytes(), err
	},
}

func (c Codec) compress(in []byte) ([]byte, error) {
	fn, ok := compressors[c]
	if !ok {
		return nil, errors.Errorf("unknown image codec %d", c)
	}
	return fn(in), nil
}

func (c Codec) decompress(in []byte) ([]byte, error) {
	fn, ok := decompressors[c]
	if !ok {
		return nil, errors.Errorf("unknown image codec %d", c)
	}
	return fn(in)
}
