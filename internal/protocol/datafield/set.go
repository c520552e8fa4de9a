package datafield

import (
	"fmt"
	"strings"

	"github.com/danmuck/ebusctl/internal/protocol"
)

// Set is the ordered value-descriptor tree of one message.
type Set struct {
	fields []*Field
}

func NewSet(fields ...*Field) *Set {
	return &Set{fields: append([]*Field(nil), fields...)}
}

// Fields returns the fields in wire order.
func (s *Set) Fields() []*Field {
	return append([]*Field(nil), s.fields...)
}

// Length is the byte count the fields of part occupy.
func (s *Set) Length(part PartType) int {
	n := 0
	for _, f := range s.fields {
		if f.Part == part {
			n += f.Length()
		}
	}
	return n
}

// Count is the number of values the fields of part produce or consume.
func (s *Set) Count(part PartType) int {
	n := 0
	for _, f := range s.fields {
		if f.Part == part && !f.Ignored() {
			n++
		}
	}
	return n
}

// Read formats every field of part found in payload, joined by separator.
// Nothing is returned unless payload holds all of the part's bytes.
func (s *Set) Read(part PartType, payload []byte, separator byte) (string, error) {
	need := s.Length(part)
	if len(payload) < need {
		return "", fmt.Errorf("%w: part %s needs %d bytes, have %d",
			protocol.ErrIncompleteData, part, need, len(payload))
	}
	values := make([]string, 0, len(s.fields))
	offset := 0
	for _, f := range s.fields {
		if f.Part != part {
			continue
		}
		v, err := f.Read(payload, offset)
		if err != nil {
			return "", err
		}
		offset += f.Length()
		if f.Ignored() {
			continue
		}
		values = append(values, v)
	}
	return strings.Join(values, string(separator)), nil
}

// Write parses the separator-delimited input into the bytes of part.
func (s *Set) Write(part PartType, input string, separator byte) ([]byte, error) {
	want := s.Count(part)
	var tokens []string
	if want > 0 {
		tokens = strings.Split(input, string(separator))
	} else if strings.TrimSpace(input) != "" {
		return nil, protocol.FieldError{Part: part.String(), Reason: "no values expected"}
	}
	if len(tokens) > want {
		return nil, protocol.FieldError{Part: part.String(), Reason: fmt.Sprintf("expected %d values, got %d", want, len(tokens))}
	}
	out := make([]byte, 0, s.Length(part))
	next := 0
	for _, f := range s.fields {
		if f.Part != part {
			continue
		}
		if f.Ignored() {
			b, _ := f.Write("")
			out = append(out, b...)
			continue
		}
		if next >= len(tokens) {
			return nil, f.formatErr("missing value")
		}
		b, err := f.Write(tokens[next])
		if err != nil {
			return nil, err
		}
		next++
		out = append(out, b...)
	}
	return out, nil
}
