package datafield

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/ebusctl/internal/protocol"
)

// Field is a single value descriptor at a fixed position of one frame part.
type Field struct {
	Name    string
	Part    PartType
	Unit    string
	Comment string

	typ     *dataType
	length  int
	divisor int
	values  map[int64]string
	tokens  map[string]int64
}

// Spec is the textual definition of one field, as found in catalog rows.
type Spec struct {
	Name          string
	Part          string
	Type          string
	DivisorValues string
	Unit          string
	Comment       string
}

func (f *Field) TypeName() string { return f.typ.name }

// Length is the number of payload bytes the field occupies.
func (f *Field) Length() int { return f.length }

// Divisor is the combined base and configured divisor of numeric fields.
func (f *Field) Divisor() int { return f.divisor }

// Ignored fields occupy bytes but produce no value.
func (f *Field) Ignored() bool { return f.typ.kind == kindIgnore }

// Values returns a copy of the value mapping, or nil.
func (f *Field) Values() map[int64]string {
	if f.values == nil {
		return nil
	}
	out := make(map[int64]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func (f *Field) formatErr(format string, args ...any) error {
	return protocol.FieldError{Field: f.Name, Part: f.Part.String(), Reason: fmt.Sprintf(format, args...)}
}

// Read formats the field found at offset of payload.
func (f *Field) Read(payload []byte, offset int) (string, error) {
	if offset < 0 || offset+f.length > len(payload) {
		return "", fmt.Errorf("%w: field %q needs %d bytes at offset %d, have %d",
			protocol.ErrIncompleteData, f.Name, f.length, offset, len(payload))
	}
	b := payload[offset : offset+f.length]
	switch f.typ.kind {
	case kindIgnore:
		return "", nil
	case kindNumber:
		return f.readNumber(b)
	case kindString:
		return f.readString(b)
	case kindHex:
		return formatHex(b), nil
	case kindDate:
		return f.readDate(b)
	case kindTime:
		return f.readTime(b)
	}
	return "", f.formatErr("unsupported type %s", f.typ.name)
}

// Write encodes token into exactly Length bytes.
func (f *Field) Write(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	switch f.typ.kind {
	case kindIgnore:
		return make([]byte, f.length), nil
	case kindNumber:
		return f.writeNumber(token)
	case kindString:
		return f.writeString(token)
	case kindHex:
		return f.writeHex(token)
	case kindDate:
		return f.writeDate(token)
	case kindTime:
		return f.writeTime(token)
	}
	return nil, f.formatErr("unsupported type %s", f.typ.name)
}

func (f *Field) readNumber(b []byte) (string, error) {
	var raw uint32
	if f.typ.bcd {
		if uint32(b[0]) == f.typ.replacement {
			return "", nil
		}
		v, ok := fromBCD(b[0])
		if !ok {
			return "", f.formatErr("invalid bcd 0x%02x", b[0])
		}
		raw = uint32(v)
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			raw = raw<<8 | uint32(b[i])
		}
		if f.typ.hasReplacement && raw == f.typ.replacement {
			return "", nil
		}
	}
	value := int64(raw)
	if f.typ.signed {
		bits := uint(8 * f.length)
		if raw&(1<<(bits-1)) != 0 {
			value -= 1 << bits
		}
	}
	if value < f.typ.minRaw || value > f.typ.maxRaw {
		return "", f.formatErr("value %d out of range", value)
	}
	if f.values != nil {
		s, ok := f.values[value]
		if !ok {
			return "", f.formatErr("no name for value %d", value)
		}
		return s, nil
	}
	return formatNumber(value, f.divisor), nil
}

func (f *Field) writeNumber(token string) ([]byte, error) {
	if token == "" || token == "-" {
		if !f.typ.hasReplacement {
			return nil, f.formatErr("missing value")
		}
		return f.packRaw(f.typ.replacement), nil
	}
	var value int64
	if f.values != nil {
		v, ok := f.tokens[token]
		if !ok {
			return nil, f.formatErr("unknown value %q", token)
		}
		value = v
	} else {
		fv, err := strconv.ParseFloat(token, 64)
		if err != nil || math.IsNaN(fv) || math.IsInf(fv, 0) {
			return nil, f.formatErr("invalid number %q", token)
		}
		scaled := math.Round(fv * float64(f.divisor))
		if scaled < float64(f.typ.minRaw) || scaled > float64(f.typ.maxRaw) {
			return nil, f.formatErr("value %s out of range", token)
		}
		value = int64(scaled)
	}
	if value < f.typ.minRaw || value > f.typ.maxRaw {
		return nil, f.formatErr("value %d out of range", value)
	}
	if f.typ.bcd {
		return []byte{toBCD(int(value))}, nil
	}
	return f.packRaw(uint32(value)), nil
}

func (f *Field) packRaw(raw uint32) []byte {
	out := make([]byte, f.length)
	for i := range out {
		out[i] = byte(raw >> (8 * i))
	}
	return out
}

func (f *Field) readString(b []byte) (string, error) {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0x00) {
		end--
	}
	for _, c := range b[:end] {
		if c < 0x20 || c > 0x7E {
			return "", f.formatErr("invalid character 0x%02x", c)
		}
	}
	return string(b[:end]), nil
}

func (f *Field) writeString(token string) ([]byte, error) {
	if len(token) > f.length {
		return nil, f.formatErr("value longer than %d characters", f.length)
	}
	out := make([]byte, f.length)
	for i := range out {
		out[i] = ' '
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c < 0x20 || c > 0x7E {
			return nil, f.formatErr("invalid character 0x%02x", c)
		}
		out[i] = c
	}
	return out, nil
}

func formatHex(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = hex.EncodeToString([]byte{c})
	}
	return strings.Join(parts, " ")
}

func (f *Field) writeHex(token string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(token, " ", ""))
	if err != nil {
		return nil, f.formatErr("invalid hex %q", token)
	}
	if len(b) != f.length {
		return nil, f.formatErr("expected %d hex bytes, got %d", f.length, len(b))
	}
	return b, nil
}

func allReplacement(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return true
}

func (f *Field) readDate(b []byte) (string, error) {
	if allReplacement(b) {
		return "", nil
	}
	var day, month, year int
	if f.typ.binary {
		day, month, year = int(b[0]), int(b[1]), int(b[2])
	} else {
		var okD, okM, okY bool
		day, okD = fromBCD(b[0])
		month, okM = fromBCD(b[1])
		year, okY = fromBCD(b[3])
		weekday, okW := fromBCD(b[2])
		if !okD || !okM || !okY || !okW || weekday > 6 {
			return "", f.formatErr("invalid bcd date % x", b)
		}
	}
	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if year > 99 || t.Day() != day || int(t.Month()) != month {
		return "", f.formatErr("invalid date % x", b)
	}
	return t.Format("02.01.2006"), nil
}

func (f *Field) writeDate(token string) ([]byte, error) {
	if token == "" || token == "-" {
		return f.replacementBytes(), nil
	}
	t, err := time.Parse("02.01.2006", token)
	if err != nil || t.Year() < 2000 || t.Year() > 2099 {
		return nil, f.formatErr("invalid date %q", token)
	}
	yy := t.Year() - 2000
	if f.typ.binary {
		return []byte{byte(t.Day()), byte(t.Month()), byte(yy)}, nil
	}
	weekday := (int(t.Weekday()) + 6) % 7
	return []byte{toBCD(t.Day()), toBCD(int(t.Month())), toBCD(weekday), toBCD(yy)}, nil
}

func (f *Field) readTime(b []byte) (string, error) {
	if allReplacement(b) {
		return "", nil
	}
	var hour, minute, second int
	if f.typ.binary {
		hour, minute, second = int(b[0]), int(b[1]), int(b[2])
	} else {
		var okS, okM, okH bool
		second, okS = fromBCD(b[0])
		minute, okM = fromBCD(b[1])
		hour, okH = fromBCD(b[2])
		if !okS || !okM || !okH {
			return "", f.formatErr("invalid bcd time % x", b)
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return "", f.formatErr("invalid time % x", b)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hour, minute, second), nil
}

func (f *Field) writeTime(token string) ([]byte, error) {
	if token == "" || token == "-" {
		return f.replacementBytes(), nil
	}
	t, err := time.Parse("15:04:05", token)
	if err != nil {
		return nil, f.formatErr("invalid time %q", token)
	}
	if f.typ.binary {
		return []byte{byte(t.Hour()), byte(t.Minute()), byte(t.Second())}, nil
	}
	return []byte{toBCD(t.Second()), toBCD(t.Minute()), toBCD(t.Hour())}, nil
}

func (f *Field) replacementBytes() []byte {
	out := make([]byte, f.length)
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func formatNumber(value int64, divisor int) string {
	if divisor <= 1 {
		return strconv.FormatInt(value, 10)
	}
	return strconv.FormatFloat(float64(value)/float64(divisor), 'f', -1, 64)
}

func fromBCD(b byte) (int, bool) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return int(hi)*10 + int(lo), true
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | v%10)
}
