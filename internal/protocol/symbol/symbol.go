package symbol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Bus symbols with a protocol meaning of their own.
const (
	SYN       byte = 0xAA
	ESC       byte = 0xA9
	ACK       byte = 0x00
	NAK       byte = 0xFF
	BROADCAST byte = 0xFE
)

var (
	ErrBadEscape   = errors.New("symbol: invalid escape sequence")
	ErrCRCMismatch = errors.New("symbol: crc mismatch")
	ErrEmpty       = errors.New("symbol: empty sequence")
	ErrBadHex      = errors.New("symbol: invalid hex")
	ErrBadAddress  = errors.New("symbol: invalid address")
)

// String is an unescaped symbol sequence without CRC.
type String struct {
	data []byte
}

func New(b ...byte) String {
	buf := make([]byte, len(b))
	copy(buf, b)
	return String{data: buf}
}

// ParseHex reads a hex dump such as "1015b509" or "10 15 b5 09".
func ParseHex(raw string) (String, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == ':' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return String{}, fmt.Errorf("%w: %v", ErrBadHex, err)
	}
	return String{data: b}, nil
}

func (s *String) Push(b ...byte) {
	s.data = append(s.data, b...)
}

func (s String) At(i int) byte { return s.data[i] }

func (s String) Len() int { return len(s.data) }

// Bytes returns a copy of the symbols.
func (s String) Bytes() []byte {
	buf := make([]byte, len(s.data))
	copy(buf, s.data)
	return buf
}

// Slice returns the symbols in [from, to) without copying; callers must not modify it.
func (s String) Slice(from, to int) []byte {
	return s.data[from:to]
}

func (s String) Hex() string {
	return hex.EncodeToString(s.data)
}

func (s String) String() string { return s.Hex() }

// CRC is the eBUS CRC-8 (polynomial 0x9B) over the escaped form of s.
func (s String) CRC() byte {
	var crc byte
	for _, b := range escape(s.data) {
		crc = updateCRC(crc, b)
	}
	return crc
}

// Escaped returns the wire form: escaped symbols followed by the escaped CRC.
func (s String) Escaped() []byte {
	out := escape(s.data)
	var crc byte
	for _, b := range out {
		crc = updateCRC(crc, b)
	}
	return append(out, escape([]byte{crc})...)
}

// ParseEscaped reverses Escaped and verifies the trailing CRC.
func ParseEscaped(wire []byte) (String, error) {
	if len(wire) == 0 {
		return String{}, ErrEmpty
	}
	out := make([]byte, 0, len(wire))
	for i := 0; i < len(wire); i++ {
		b := wire[i]
		if b == SYN {
			return String{}, ErrBadEscape
		}
		if b != ESC {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(wire) {
			return String{}, ErrBadEscape
		}
		switch wire[i] {
		case 0x00:
			out = append(out, ESC)
		case 0x01:
			out = append(out, SYN)
		default:
			return String{}, ErrBadEscape
		}
	}
	data := String{data: out[:len(out)-1]}
	if data.CRC() != out[len(out)-1] {
		return String{}, ErrCRCMismatch
	}
	return data, nil
}

func escape(in []byte) []byte {
	out := make([]byte, 0, len(in)+2)
	for _, b := range in {
		switch b {
		case ESC:
			out = append(out, ESC, 0x00)
		case SYN:
			out = append(out, ESC, 0x01)
		default:
			out = append(out, b)
		}
	}
	return out
}

func updateCRC(crc, value byte) byte {
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = crc<<1 ^ 0x9B
		} else {
			crc <<= 1
		}
	}
	return crc ^ value
}

// ParseAddress reads a two digit hex address. It does not check the address class.
func ParseAddress(raw string) (byte, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadAddress, raw)
	}
	v, err := strconv.ParseUint(raw, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadAddress, raw)
	}
	return byte(v), nil
}
