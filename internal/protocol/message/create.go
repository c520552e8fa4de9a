package message

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
)

// Column positions of a message row.
const (
	ColType = iota
	ColClass
	ColName
	ColComment
	ColSrc
	ColDst
	ColPBSB
	ColID
	ColFields
)

// DefaultsPrefix marks a row whose values later rows of the same class inherit.
const DefaultsPrefix = "*"

// Defaults collects defaults rows in the order they were read.
type Defaults struct {
	rows [][]string
}

func IsDefaultsRow(row []string) bool {
	return len(row) > 0 && strings.HasPrefix(strings.TrimSpace(row[ColType]), DefaultsPrefix)
}

// Add stores a defaults row. The type column keeps its leading marker.
func (d *Defaults) Add(row []string) error {
	if !IsDefaultsRow(row) {
		return protocol.DefinitionError{Column: "type", Reason: "not a defaults row"}
	}
	typ, _, _, err := parseType(strings.TrimPrefix(strings.TrimSpace(row[ColType]), DefaultsPrefix))
	if err != nil {
		return err
	}
	stored := pad(row, ColFields)
	stored[ColType] = typ
	d.rows = append(d.rows, stored)
	return nil
}

func (d *Defaults) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// match returns the last defaults row for typ, preferring one for class over
// an unqualified one.
func (d *Defaults) match(typ, class string) []string {
	if d == nil {
		return nil
	}
	var generic []string
	for i := len(d.rows) - 1; i >= 0; i-- {
		row := d.rows[i]
		if row[ColType] != typ {
			continue
		}
		rowClass := strings.TrimSpace(row[ColClass])
		if rowClass == class {
			return row
		}
		if rowClass == "" && generic == nil {
			generic = row
		}
	}
	return generic
}

// Create builds a Message from one catalog row:
//
//	type,class,name,comment,QQ,ZZ,PBSB,ID,<name,part,type,divisor/values,unit,comment>...
//
// Empty columns are filled from the matching defaults row before validation.
func Create(row []string, defaults *Defaults, templates *datafield.Templates) (*Message, error) {
	if len(row) == 0 {
		return nil, protocol.DefinitionError{Reason: "empty row"}
	}
	cols := pad(row, ColFields)
	for i := range cols[:ColFields] {
		cols[i] = strings.TrimSpace(cols[i])
	}
	typ, isSet, isPassive, err := parseType(cols[ColType])
	if err != nil {
		return nil, err
	}
	pollPriority, err := parsePollPriority(cols[ColType], typ)
	if err != nil {
		return nil, err
	}
	class, name := cols[ColClass], cols[ColName]
	rowID := identity(class, name, isSet)

	fieldCols := append([]string(nil), cols[ColFields:]...)
	if def := defaults.match(typ, class); def != nil {
		inheritEmpty(cols, def, ColComment)
		inheritEmpty(cols, def, ColSrc)
		inheritEmpty(cols, def, ColDst)
		defPBSB := strings.TrimSpace(def[ColPBSB])
		if cols[ColPBSB] == "" {
			cols[ColPBSB] = defPBSB
		}
		if strings.EqualFold(cols[ColPBSB], defPBSB) {
			cols[ColID] = strings.TrimSpace(def[ColID]) + cols[ColID]
		}
		fieldCols = append(padGroups(def[ColFields:]), fieldCols...)
	}

	src := symbol.SYN
	if cols[ColSrc] != "" {
		src, err = symbol.ParseAddress(cols[ColSrc])
		if err != nil || !symbol.IsMaster(src) {
			return nil, protocol.DefinitionError{Row: rowID, Column: "QQ", Reason: fmt.Sprintf("invalid source address %q", cols[ColSrc])}
		}
	}
	dst := symbol.SYN
	if cols[ColDst] != "" {
		dst, err = symbol.ParseAddress(cols[ColDst])
		if err != nil || !symbol.IsValidAddress(dst) {
			return nil, protocol.DefinitionError{Row: rowID, Column: "ZZ", Reason: fmt.Sprintf("invalid destination address %q", cols[ColDst])}
		}
	}
	id, err := hex.DecodeString(cols[ColPBSB] + cols[ColID])
	if err != nil {
		return nil, protocol.DefinitionError{Row: rowID, Column: "id", Reason: fmt.Sprintf("invalid id %q", cols[ColPBSB]+cols[ColID])}
	}
	if len(id) < MinIDLength {
		return nil, protocol.DefinitionError{Row: rowID, Column: "id", Reason: "id needs primary and secondary byte"}
	}

	defaultPart := datafield.PartSlave
	if isSet {
		defaultPart = datafield.PartMaster
	}
	fields, err := templates.Create(fieldCols, defaultPart)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rowID, err)
	}
	return New(class, name, isSet, isPassive, cols[ColComment], src, dst, id, fields, pollPriority)
}

// parseType maps r/w/u/uw with an optional poll digit to its canonical letters.
func parseType(raw string) (typ string, isSet, isPassive bool, err error) {
	letters := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "0123456789"))
	switch letters {
	case "r":
		return letters, false, false, nil
	case "w":
		return letters, true, false, nil
	case "u":
		return letters, false, true, nil
	case "uw":
		return letters, true, true, nil
	}
	return "", false, false, protocol.DefinitionError{Column: "type", Reason: fmt.Sprintf("invalid type %q", raw)}
}

func parsePollPriority(raw, typ string) (uint8, error) {
	digits := strings.TrimSpace(raw)[len(typ):]
	if digits == "" {
		return 0, nil
	}
	if typ != "r" {
		return 0, protocol.DefinitionError{Column: "type", Reason: fmt.Sprintf("poll priority only allowed for active get messages: %q", raw)}
	}
	p, err := strconv.ParseUint(digits, 10, 8)
	if err != nil || p == 0 || p > 9 {
		return 0, protocol.DefinitionError{Column: "type", Reason: fmt.Sprintf("invalid poll priority %q", digits)}
	}
	return uint8(p), nil
}

func inheritEmpty(cols, def []string, i int) {
	if cols[i] == "" {
		cols[i] = strings.TrimSpace(def[i])
	}
}

// padGroups extends field columns to whole groups so appended row fields stay aligned.
func padGroups(cols []string) []string {
	n := len(cols)
	if rem := n % datafield.SpecColumns; rem != 0 {
		n += datafield.SpecColumns - rem
	}
	out := make([]string, n)
	copy(out, cols)
	return out
}

func pad(cols []string, n int) []string {
	out := make([]string, max(n, len(cols)))
	copy(out, cols)
	return out
}
