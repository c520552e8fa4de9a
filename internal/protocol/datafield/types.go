package datafield

import (
	"strconv"
	"strings"
)

// PartType tells which part of a frame a field lives in.
type PartType byte

const (
	PartMaster PartType = 'm'
	PartSlave  PartType = 's'
)

func (p PartType) String() string {
	switch p {
	case PartMaster:
		return "m"
	case PartSlave:
		return "s"
	}
	return "?"
}

// ParsePartType accepts "m"/"master" and "s"/"slave".
func ParsePartType(raw string) (PartType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "master":
		return PartMaster, true
	case "s", "slave":
		return PartSlave, true
	}
	return 0, false
}

type kind uint8

const (
	kindNumber kind = iota
	kindString
	kindHex
	kindIgnore
	kindDate
	kindTime
)

// dataType is one of the fixed base encodings.
type dataType struct {
	name      string
	kind      kind
	length    int
	maxLength int
	bcd       bool
	signed    bool
	divisor   int
	minRaw    int64
	maxRaw    int64
	// binary selects plain bytes over BCD for date/time kinds.
	binary bool
	// replacement is the raw "no value" pattern; hasReplacement false means none.
	replacement    uint32
	hasReplacement bool
}

var baseTypes = map[string]*dataType{
	"BCD": {name: "BCD", kind: kindNumber, length: 1, bcd: true, divisor: 1, minRaw: 0, maxRaw: 99, replacement: 0xFF, hasReplacement: true},
	"UCH": {name: "UCH", kind: kindNumber, length: 1, divisor: 1, minRaw: 0, maxRaw: 0xFE, replacement: 0xFF, hasReplacement: true},
	"SCH": {name: "SCH", kind: kindNumber, length: 1, signed: true, divisor: 1, minRaw: -127, maxRaw: 127, replacement: 0x80, hasReplacement: true},
	"D1B": {name: "D1B", kind: kindNumber, length: 1, signed: true, divisor: 1, minRaw: -127, maxRaw: 127, replacement: 0x80, hasReplacement: true},
	"D1C": {name: "D1C", kind: kindNumber, length: 1, divisor: 2, minRaw: 0, maxRaw: 200, replacement: 0xFF, hasReplacement: true},
	"UIN": {name: "UIN", kind: kindNumber, length: 2, divisor: 1, minRaw: 0, maxRaw: 0xFFFE, replacement: 0xFFFF, hasReplacement: true},
	"SIN": {name: "SIN", kind: kindNumber, length: 2, signed: true, divisor: 1, minRaw: -32767, maxRaw: 32767, replacement: 0x8000, hasReplacement: true},
	"D2B": {name: "D2B", kind: kindNumber, length: 2, signed: true, divisor: 256, minRaw: -32767, maxRaw: 32767, replacement: 0x8000, hasReplacement: true},
	"D2C": {name: "D2C", kind: kindNumber, length: 2, signed: true, divisor: 16, minRaw: -32767, maxRaw: 32767, replacement: 0x8000, hasReplacement: true},
	"ULG": {name: "ULG", kind: kindNumber, length: 4, divisor: 1, minRaw: 0, maxRaw: 0xFFFFFFFE, replacement: 0xFFFFFFFF, hasReplacement: true},
	"STR": {name: "STR", kind: kindString, length: 0, maxLength: 32},
	"HEX": {name: "HEX", kind: kindHex, length: 0, maxLength: 32},
	"IGN": {name: "IGN", kind: kindIgnore, length: 0, maxLength: 32},
	"BDA": {name: "BDA", kind: kindDate, length: 4, bcd: true, hasReplacement: true},
	"HDA": {name: "HDA", kind: kindDate, length: 3, binary: true, hasReplacement: true},
	"BTI": {name: "BTI", kind: kindTime, length: 3, bcd: true, hasReplacement: true},
	"HTI": {name: "HTI", kind: kindTime, length: 3, binary: true, hasReplacement: true},
}

// lookupBaseType resolves "UCH" or "STR:10" to a type and its byte length.
// ok is false when token names no base type; reason is set for a known type with a bad length.
func lookupBaseType(token string) (dt *dataType, length int, ok bool, reason string) {
	name, lenRaw, hasLen := strings.Cut(strings.ToUpper(strings.TrimSpace(token)), ":")
	dt, ok = baseTypes[name]
	if !ok {
		return nil, 0, false, ""
	}
	if dt.length > 0 {
		if hasLen {
			return dt, 0, true, "type " + dt.name + " has a fixed length"
		}
		return dt, dt.length, true, ""
	}
	if !hasLen {
		return dt, 0, true, "type " + dt.name + " requires a length"
	}
	n, err := strconv.Atoi(lenRaw)
	if err != nil || n < 1 || n > dt.maxLength {
		return dt, 0, true, "invalid length " + lenRaw + " for type " + dt.name
	}
	return dt, n, true, ""
}
