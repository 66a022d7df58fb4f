package log

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// prefixSize is the length of the common record prefix:
// type (4) + lsn (8) + prev-lsn (8) + txn-id (8) + total-length (4).
const prefixSize = 4 + 8 + 8 + 8 + 4

// ErrTruncated marks an incomplete trailing record. Readers stop
// scanning when they hit it.
var ErrTruncated = errors.New("log: truncated record")

// Marshal serializes a record to its wire form. All integers are
// little-endian fixed width; strings are length-prefixed; images carry
// a codec byte plus raw and encoded lengths.
func Marshal(rec *Record, codec Codec) ([]byte, error) {
	body, err := marshalBody(rec, codec)
	if err != nil {
		return nil, err
	}

	total := prefixSize + len(body)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(rec.Type))
	binary.LittleEndian.PutUint64(buf[4:], uint64(rec.LSN))
	binary.LittleEndian.PutUint64(buf[12:], uint64(rec.PrevLSN))
	binary.LittleEndian.PutUint64(buf[20:], uint64(rec.TxnID))
	binary.LittleEndian.PutUint32(buf[28:], uint32(total))
	copy(buf[prefixSize:], body)
	return buf, nil
}

func marshalBody(rec *Record, codec Codec) ([]byte, error) {
	var body []byte
	switch rec.Type {
	case RecordBegin, RecordCommit, RecordAbort:
		return nil, nil
	case RecordInsert, RecordDelete:
		body = appendString(body, rec.Table)
		body = appendRid(body, rec.Rid)
		return appendImage(body, rec.Value, codec)
	case RecordUpdate:
		body = appendString(body, rec.Table)
		body = appendRid(body, rec.Rid)
		body, err := appendImage(body, rec.OldValue, codec)
		if err != nil {
			return nil, err
		}
		return appendImage(body, rec.NewValue, codec)
	case RecordNewPage:
		body = appendString(body, rec.Table)
		return binary.LittleEndian.AppendUint32(body, uint32(rec.PageNo)), nil
	default:
		return nil, errors.Errorf("marshal: unknown record type %d", rec.Type)
	}
}

// Unmarshal parses one record from the front of buf. Returns the
// record and the number of bytes consumed; ErrTruncated when buf holds
// only part of a record.
func Unmarshal(buf []byte) (*Record, int, error) {
	if len(buf) < prefixSize {
		return nil, 0, ErrTruncated
	}

	rec := &Record{
		Type:    RecordType(binary.LittleEndian.Uint32(buf[0:])),
		LSN:     lsnAt(buf, 4),
		PrevLSN: lsnAt(buf, 12),
		TxnID:   txnAt(buf, 20),
	}
	total := int(binary.LittleEndian.Uint32(buf[28:]))
	if total < prefixSize {
		return nil, 0, errors.Errorf("unmarshal: corrupt record length %d", total)
	}
	if len(buf) < total {
		return nil, 0, ErrTruncated
	}

	body := buf[prefixSize:total]
	if err := unmarshalBody(rec, body); err != nil {
		return nil, 0, err
	}
	return rec, total, nil
}

func unmarshalBody(rec *Record, body []byte) error {
	var err error
	switch rec.Type {
	case RecordBegin, RecordCommit, RecordAbort:
		return nil
	case RecordInsert, RecordDelete:
		if rec.Table, body, err = takeString(body); err != nil {
			return err
		}
		if rec.Rid, body, err = takeRid(body); err != nil {
			return err
		}
		rec.Value, _, err = takeImage(body)
		return err
	case RecordUpdate:
		if rec.Table, body, err = takeString(body); err != nil {
			return err
		}
		if rec.Rid, body, err = takeRid(body); err != nil {
			return err
		}
		if rec.OldValue, body, err = takeImage(body); err != nil {
			return err
		}
		rec.NewValue, _, err = takeImage(body)
		return err
	case RecordNewPage:
		if rec.Table, body, err = takeString(body); err != nil {
			return err
		}
		if len(body) < 4 {
			return errors.New("unmarshal: short NEWPAGE body")
		}
		rec.PageNo = pageNoAt(body, 0)
		return nil
	default:
		return errors.Errorf("unmarshal: unknown record type %d", rec.Type)
	}
}
