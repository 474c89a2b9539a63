package algorand

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestPackUint_ShortestEncodings(t *testing.T) {
	cases := []struct {
		in   uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0xcc, 0x80}},
		{0xff, []byte{0xcc, 0xff}},
		{0x100, []byte{0xcd, 0x01, 0x00}},
		{0x10000, []byte{0xce, 0x00, 0x01, 0x00, 0x00}},
		{1 << 40, []byte{0xcf, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
	for _, tc := range cases {
		buf := &bytes.Buffer{}
		packUint(buf, tc.in)
		if !bytes.Equal(buf.Bytes(), tc.want) {
			t.Fatalf("pack %d = % x, want % x", tc.in, buf.Bytes(), tc.want)
		}
	}
}

func TestPaymentTxn_CanonicalKeyOrder(t *testing.T) {
	txn := paymentTxn{
		Fee:         1000,
		FirstValid:  100,
		LastValid:   1100,
		GenesisID:   "testnet-v1.0",
		GenesisHash: bytes.Repeat([]byte{1}, 32),
		Note:        []byte("note"),
		Receiver:    bytes.Repeat([]byte{2}, 32),
		Sender:      bytes.Repeat([]byte{2}, 32),
	}
	encoded := txn.encode()

	// Keys must appear in sorted order: fee, fv, gen, gh, lv, note, rcv, snd, type.
	order := []string{"fee", "fv", "gen", "gh", "lv", "note", "rcv", "snd", "type"}
	last := -1
	for _, key := range order {
		idx := bytes.Index(encoded, append([]byte{0xa0 | byte(len(key))}, key...))
		if idx < 0 {
			t.Fatalf("key %s not found", key)
		}
		if idx <= last {
			t.Fatalf("key %s out of order", key)
		}
		last = idx
	}

	// Zero-valued fields are omitted entirely.
	zeroFee := paymentTxn{
		FirstValid:  100,
		LastValid:   1100,
		GenesisHash: bytes.Repeat([]byte{1}, 32),
		Receiver:    bytes.Repeat([]byte{2}, 32),
		Sender:      bytes.Repeat([]byte{2}, 32),
	}
	encoded = zeroFee.encode()
	if bytes.Contains(encoded, append([]byte{0xa3}, "fee"...)) {
		t.Fatal("zero fee was encoded")
	}
	if bytes.Contains(encoded, append([]byte{0xa3}, "gen"...)) {
		t.Fatal("empty genesis id was encoded")
	}
	if bytes.Contains(encoded, append([]byte{0xa4}, "note"...)) {
		t.Fatal("empty note was encoded")
	}
}

func TestEncodeSignedTxn(t *testing.T) {
	txn := paymentTxn{
		FirstValid:  1,
		LastValid:   2,
		GenesisHash: bytes.Repeat([]byte{1}, 32),
		Receiver:    bytes.Repeat([]byte{2}, 32),
		Sender:      bytes.Repeat([]byte{2}, 32),
	}
	sig := bytes.Repeat([]byte{3}, 64)
	encoded := encodeSignedTxn(sig, txn)
	if encoded[0] != 0x82 {
		t.Fatalf("signed txn should be a 2-entry fixmap, got 0x%02x", encoded[0])
	}
	if !bytes.Contains(encoded, sig) {
		t.Fatal("signature bytes missing")
	}
}

func TestEncodeAddress(t *testing.T) {
	pub := ed25519.PublicKey(bytes.Repeat([]byte{7}, 32))
	addr := EncodeAddress(pub)
	if len(addr) != 58 {
		t.Fatalf("address length %d, want 58", len(addr))
	}
	again := EncodeAddress(pub)
	if addr != again {
		t.Fatal("address encoding not deterministic")
	}
}
