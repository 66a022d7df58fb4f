package log

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"reldb/pkg/primitives"
)

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func takeString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, errors.New("unmarshal: short string length")
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return "", nil, errors.New("unmarshal: short string body")
	}
	return string(buf[4 : 4+n]), buf[4+n:], nil
}

func appendRid(buf []byte, rid primitives.Rid) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rid.PageNo))
	return binary.LittleEndian.AppendUint32(buf, uint32(rid.SlotNo))
}

func takeRid(buf []byte) (primitives.Rid, []byte, error) {
	if len(buf) < 8 {
		return primitives.Rid{}, nil, errors.New("unmarshal: short rid")
	}
	rid := primitives.Rid{
		PageNo: primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[0:]))),
		SlotNo: primitives.SlotNumber(int32(binary.LittleEndian.Uint32(buf[4:]))),
	}
	return rid, buf[8:], nil
}

// appendImage encodes value bytes as {codec u8, rawLen u32, encLen u32,
// encoded bytes}.
func appendImage(buf, value []byte, codec Codec) ([]byte, error) {
	enc, err := codec.compress(value)
	if err != nil {
		return nil, err
	}
	buf = append(buf, byte(codec))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(enc)))
	return append(buf, enc...), nil
}

func takeImage(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 9 {
		return nil, nil, errors.New("unmarshal: short image header")
	}
	codec := Codec(buf[0])
	rawLen := int(binary.LittleEndian.Uint32(buf[1:]))
	encLen := int(binary.LittleEndian.Uint32(buf[5:]))
	if len(buf) < 9+encLen {
		return nil, nil, errors.New("unmarshal: short image body")
	}
	raw, err := codec.decompress(buf[9 : 9+encLen])
	if err != nil {
		return nil, nil, err
	}
	if len(raw) != rawLen {
		return nil, nil, errors.Errorf("unmarshal: image decodes to %d bytes, want %d", len(raw), rawLen)
	}
	return raw, buf[9+encLen:], nil
}

func lsnAt(buf []byte, off int) primitives.LSN {
	return primitives.LSN(int64(binary.LittleEndian.Uint64(buf[off:])))
}

func txnAt(buf []byte, off int) primitives.TxnID {
	return primitives.TxnID(int64(binary.LittleEndian.Uint64(buf[off:])))
}

func pageNoAt(buf []byte, off int) primitives.PageNumber {
	return primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[off:])))
}
