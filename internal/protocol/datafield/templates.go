package datafield

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/ebusctl/internal/protocol"
)

// SpecColumns is the number of columns describing one field in a message row.
const SpecColumns = 6

// Templates resolves named field definitions referenced from message rows.
// It is filled once during startup and read-only afterwards.
type Templates struct {
	byName map[string]*Field
	order  []string
}

func NewTemplates() *Templates {
	return &Templates{byName: make(map[string]*Field)}
}

// Add registers a template from a "name,type,divisor/values,unit,comment" row.
func (t *Templates) Add(row []string) error {
	cols := pad(row, 5)
	name := strings.TrimSpace(cols[0])
	if name == "" {
		return protocol.DefinitionError{Column: "name", Reason: "missing template name"}
	}
	if _, ok := t.byName[name]; ok {
		return protocol.DefinitionError{Row: name, Reason: "duplicate template"}
	}
	dt, length, ok, reason := lookupBaseType(cols[1])
	if !ok {
		return protocol.DefinitionError{Row: name, Column: "type", Reason: fmt.Sprintf("unknown type %q", cols[1])}
	}
	if reason != "" {
		return protocol.DefinitionError{Row: name, Column: "type", Reason: reason}
	}
	f := &Field{
		Name:    name,
		Unit:    strings.TrimSpace(cols[3]),
		Comment: strings.TrimSpace(cols[4]),
		typ:     dt,
		length:  length,
		divisor: dt.divisor,
	}
	if err := f.applyDivisorValues(cols[2]); err != nil {
		return err
	}
	t.byName[name] = f
	t.order = append(t.order, name)
	return nil
}

// Get returns the named template.
func (t *Templates) Get(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

func (t *Templates) Names() []string {
	return append([]string(nil), t.order...)
}

func (t *Templates) Len() int { return len(t.byName) }

// Create builds the field set from repeated name,part,type,divisor/values,unit,comment
// column groups. Groups that are entirely empty are skipped.
func (t *Templates) Create(columns []string, defaultPart PartType) (*Set, error) {
	fields := make([]*Field, 0, len(columns)/SpecColumns+1)
	for i := 0; i < len(columns); i += SpecColumns {
		group := pad(columns[i:min(i+SpecColumns, len(columns))], SpecColumns)
		spec := Spec{
			Name:          strings.TrimSpace(group[0]),
			Part:          strings.TrimSpace(group[1]),
			Type:          strings.TrimSpace(group[2]),
			DivisorValues: strings.TrimSpace(group[3]),
			Unit:          strings.TrimSpace(group[4]),
			Comment:       strings.TrimSpace(group[5]),
		}
		if spec == (Spec{}) {
			continue
		}
		f, err := t.NewField(spec, defaultPart)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return NewSet(fields...), nil
}

// NewField builds one field from spec, resolving the type against base types
// first and templates second. t may be nil.
func (t *Templates) NewField(spec Spec, defaultPart PartType) (*Field, error) {
	part := defaultPart
	if spec.Part != "" {
		p, ok := ParsePartType(spec.Part)
		if !ok {
			return nil, protocol.DefinitionError{Row: spec.Name, Column: "part", Reason: fmt.Sprintf("invalid part %q", spec.Part)}
		}
		part = p
	}
	if spec.Type == "" {
		return nil, protocol.DefinitionError{Row: spec.Name, Column: "type", Reason: "missing type"}
	}

	f := &Field{Name: spec.Name, Part: part, Unit: spec.Unit, Comment: spec.Comment}
	dt, length, ok, reason := lookupBaseType(spec.Type)
	switch {
	case ok && reason != "":
		return nil, protocol.DefinitionError{Row: spec.Name, Column: "type", Reason: reason}
	case ok:
		f.typ, f.length, f.divisor = dt, length, dt.divisor
	default:
		var tmpl *Field
		if t != nil {
			tmpl, ok = t.byName[spec.Type]
		}
		if !ok {
			return nil, protocol.DefinitionError{Row: spec.Name, Column: "type", Reason: fmt.Sprintf("unknown type or template %q", spec.Type)}
		}
		f.typ, f.length, f.divisor = tmpl.typ, tmpl.length, tmpl.divisor
		f.values, f.tokens = tmpl.values, tmpl.tokens
		if f.Name == "" {
			f.Name = tmpl.Name
		}
		if f.Unit == "" {
			f.Unit = tmpl.Unit
		}
		if f.Comment == "" {
			f.Comment = tmpl.Comment
		}
		if spec.DivisorValues != "" {
			f.divisor, f.values, f.tokens = tmpl.typ.divisor, nil, nil
		}
	}
	if err := f.applyDivisorValues(spec.DivisorValues); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Field) applyDivisorValues(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if f.typ.kind != kindNumber {
		return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: "not allowed for type " + f.typ.name}
	}
	if !strings.Contains(raw, "=") {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: fmt.Sprintf("invalid divisor %q", raw)}
		}
		f.divisor = f.typ.divisor * d
		return nil
	}
	if f.typ.divisor != 1 {
		return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: "values not allowed for scaled type " + f.typ.name}
	}
	values := make(map[int64]string)
	tokens := make(map[string]int64)
	for _, entry := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(entry, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || v == "" {
			return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: fmt.Sprintf("invalid value entry %q", entry)}
		}
		n, err := strconv.ParseInt(k, 0, 64)
		if err != nil || n < f.typ.minRaw || n > f.typ.maxRaw {
			return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: fmt.Sprintf("invalid value key %q", k)}
		}
		if _, dup := values[n]; dup {
			return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: fmt.Sprintf("duplicate value key %q", k)}
		}
		if _, dup := tokens[v]; dup {
			return protocol.DefinitionError{Row: f.Name, Column: "divisor/values", Reason: fmt.Sprintf("duplicate value name %q", v)}
		}
		values[n] = v
		tokens[v] = n
	}
	f.values, f.tokens = values, tokens
	return nil
}

func pad(cols []string, n int) []string {
	if len(cols) >= n {
		return cols
	}
	out := make([]string, n)
	copy(out, cols)
	return out
}
