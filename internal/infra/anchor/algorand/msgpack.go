package algorand

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Algorand requires canonical msgpack: map keys sorted, shortest integer
// encodings, zero-valued fields omitted. The payment transaction touches
// a small fixed field set, so the encoder below covers exactly what the
// provider emits.

type paymentTxn struct {
	Fee         uint64
	FirstValid  uint64
	LastValid   uint64
	GenesisID   string
	GenesisHash []byte
	Note        []byte
	Receiver    []byte
	Sender      []byte
}

func (t paymentTxn) fields() map[string]any {
	m := map[string]any{
		"fv":   t.FirstValid,
		"gh":   t.GenesisHash,
		"lv":   t.LastValid,
		"rcv":  t.Receiver,
		"snd":  t.Sender,
		"type": "pay",
	}
	if t.Fee > 0 {
		m["fee"] = t.Fee
	}
	if t.GenesisID != "" {
		m["gen"] = t.GenesisID
	}
	if len(t.Note) > 0 {
		m["note"] = t.Note
	}
	return m
}

func (t paymentTxn) encode() []byte {
	buf := &bytes.Buffer{}
	packMap(buf, t.fields())
	return buf.Bytes()
}

func encodeSignedTxn(sig []byte, txn paymentTxn) []byte {
	buf := &bytes.Buffer{}
	packMap(buf, map[string]any{
		"sig": sig,
		"txn": txn.fields(),
	})
	return buf.Bytes()
}

func packMap(buf *bytes.Buffer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeMapHeader(buf, len(keys))
	for _, k := range keys {
		packString(buf, k)
		packValue(buf, m[k])
	}
}

func packValue(buf *bytes.Buffer, v any) {
	switch value := v.(type) {
	case uint64:
		packUint(buf, value)
	case string:
		packString(buf, value)
	case []byte:
		packBytes(buf, value)
	case map[string]any:
		packMap(buf, value)
	default:
		panic("msgpack: unsupported type")
	}
}

func writeMapHeader(buf *bytes.Buffer, n int) {
	// fixmap covers every map this package encodes.
	buf.WriteByte(0x80 | byte(n))
}

func packUint(buf *bytes.Buffer, v uint64) {
	switch {
	case v <= 0x7f:
		buf.WriteByte(byte(v))
	case v <= 0xff:
		buf.WriteByte(0xcc)
		buf.WriteByte(byte(v))
	case v <= 0xffff:
		buf.WriteByte(0xcd)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	case v <= 0xffffffff:
		buf.WriteByte(0xce)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xcf)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
}

func packString(buf *bytes.Buffer, s string) {
	n := len(s)
	switch {
	case n <= 31:
		buf.WriteByte(0xa0 | byte(n))
	case n <= 0xff:
		buf.WriteByte(0xd9)
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0xda)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	}
	buf.WriteString(s)
}

func packBytes(buf *bytes.Buffer, p []byte) {
	n := len(p)
	switch {
	case n <= 0xff:
		buf.WriteByte(0xc4)
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0xc5)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	}
	buf.Write(p)
}
