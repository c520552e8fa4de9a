package symbol

import (
	"bytes"
	"errors"
	"testing"
)

func TestCRCKnownValues(t *testing.T) {
	if crc := New(0x00).CRC(); crc != 0x00 {
		t.Fatalf("crc(00) = %02x", crc)
	}
	if crc := New(0x01).CRC(); crc != 0x01 {
		t.Fatalf("crc(01) = %02x", crc)
	}
	if crc := New(0x01, 0x00).CRC(); crc != 0x9B {
		t.Fatalf("crc(01 00) = %02x want 9b", crc)
	}
}

func TestEscapedRoundTrip(t *testing.T) {
	in := New(0x10, 0x15, 0xB5, 0x09, 0x03, 0xA9, 0xAA, 0x01)
	wire := in.Escaped()
	if bytes.IndexByte(wire, SYN) >= 0 {
		t.Fatalf("escaped form contains SYN: % x", wire)
	}
	out, err := ParseEscaped(wire)
	if err != nil {
		t.Fatalf("parse escaped: %v", err)
	}
	if !bytes.Equal(out.Bytes(), in.Bytes()) {
		t.Fatalf("round-trip mismatch: got=% x want=% x", out.Bytes(), in.Bytes())
	}
}

func TestParseEscapedCRCMismatch(t *testing.T) {
	wire := New(0x10, 0x15, 0xB5, 0x09, 0x00).Escaped()
	wire[len(wire)-1] ^= 0x01
	_, err := ParseEscaped(wire)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestParseEscapedBadSequence(t *testing.T) {
	for _, wire := range [][]byte{{0x10, ESC}, {0x10, ESC, 0x05, 0x00}, {0x10, SYN, 0x00}} {
		if _, err := ParseEscaped(wire); !errors.Is(err, ErrBadEscape) {
			t.Fatalf("expected ErrBadEscape for % x, got %v", wire, err)
		}
	}
	if _, err := ParseEscaped(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestParseHex(t *testing.T) {
	s, err := ParseHex("10 15 b5:09")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if s.Hex() != "1015b509" || s.Len() != 4 || s.At(2) != 0xB5 {
		t.Fatalf("unexpected symbols: %s", s.Hex())
	}
	if _, err := ParseHex("1g"); !errors.Is(err, ErrBadHex) {
		t.Fatalf("expected ErrBadHex, got %v", err)
	}
}

func TestAddressClassification(t *testing.T) {
	masters := []byte{0x00, 0x10, 0x31, 0x33, 0x37, 0x3F, 0x71, 0xFF, 0xF7}
	for _, a := range masters {
		if !IsMaster(a) {
			t.Fatalf("expected %02x to be a master", a)
		}
	}
	for _, a := range []byte{0x08, 0x15, 0x26, 0xFE, 0x52} {
		if IsMaster(a) {
			t.Fatalf("expected %02x to be a slave", a)
		}
	}
	if MasterNumber(0x00) != 1 || MasterNumber(0x10) != 6 || MasterNumber(0xFF) != 25 {
		t.Fatalf("unexpected master numbers")
	}
	if IsValidAddress(SYN) || IsValidAddress(ESC) || !IsValidAddress(0x15) {
		t.Fatalf("unexpected address validity")
	}
	if SlaveAddress(0x10) != 0x15 {
		t.Fatalf("unexpected slave address %02x", SlaveAddress(0x10))
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress(" 15 ")
	if err != nil || a != 0x15 {
		t.Fatalf("parse address: %02x %v", a, err)
	}
	for _, raw := range []string{"", "1", "123", "zz"} {
		if _, err := ParseAddress(raw); !errors.Is(err, ErrBadAddress) {
			t.Fatalf("expected ErrBadAddress for %q, got %v", raw, err)
		}
	}
}
