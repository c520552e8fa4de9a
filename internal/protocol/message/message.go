package message

import (
	"fmt"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
)

const (
	// MinIDLength is PB and SB.
	MinIDLength = 2
	// MaxIDLength is the longest ID the key layout can hold.
	MaxIDLength = 6
	// MaxDataLength is the largest NN of one frame part.
	MaxDataLength = 16
	// DefaultSeparator delimits values in text input and output.
	DefaultSeparator byte = ';'
)

// Message is one known request/response shape. It is immutable once built.
type Message struct {
	class        string
	name         string
	isSet        bool
	isPassive    bool
	comment      string
	srcAddress   byte
	dstAddress   byte
	id           []byte
	key          uint64
	fields       *datafield.Set
	pollPriority uint8
}

// New validates the definition and derives its key. dst may be symbol.SYN for a
// virtual definition that is only reachable by name.
func New(class, name string, isSet, isPassive bool, comment string,
	srcAddress, dstAddress byte, id []byte, fields *datafield.Set, pollPriority uint8,
) (*Message, error) {
	row := identity(class, name, isSet)
	if name == "" {
		return nil, protocol.DefinitionError{Row: row, Column: "name", Reason: "missing name"}
	}
	if len(id) < MinIDLength || len(id) > MaxIDLength {
		return nil, protocol.DefinitionError{Row: row, Column: "id", Reason: fmt.Sprintf("id length %d not in %d..%d", len(id), MinIDLength, MaxIDLength)}
	}
	if srcAddress != symbol.SYN && !symbol.IsMaster(srcAddress) {
		return nil, protocol.DefinitionError{Row: row, Column: "QQ", Reason: fmt.Sprintf("%02x is not a master address", srcAddress)}
	}
	if dstAddress == symbol.ESC {
		return nil, protocol.DefinitionError{Row: row, Column: "ZZ", Reason: fmt.Sprintf("%02x is not a participant address", dstAddress)}
	}
	if fields == nil {
		fields = datafield.NewSet()
	}
	if n := len(id) - 2 + fields.Length(datafield.PartMaster); n > MaxDataLength {
		return nil, protocol.DefinitionError{Row: row, Reason: fmt.Sprintf("master data length %d exceeds %d", n, MaxDataLength)}
	}
	if n := fields.Length(datafield.PartSlave); n > MaxDataLength {
		return nil, protocol.DefinitionError{Row: row, Reason: fmt.Sprintf("slave data length %d exceeds %d", n, MaxDataLength)}
	}
	m := &Message{
		class:        class,
		name:         name,
		isSet:        isSet,
		isPassive:    isPassive,
		comment:      comment,
		srcAddress:   srcAddress,
		dstAddress:   dstAddress,
		id:           append([]byte(nil), id...),
		fields:       fields,
		pollPriority: pollPriority,
	}
	if m.HasKey() {
		m.key = DeriveKey(dstAddress, m.id)
	}
	return m, nil
}

// DeriveKey packs ZZ into the top byte, the ID length into the next one and the
// ID bytes below, so IDs sharing a prefix never collide.
func DeriveKey(dstAddress byte, id []byte) uint64 {
	key := uint64(dstAddress)<<56 | uint64(len(id))<<48
	shift := 40
	for _, b := range id {
		if shift < 0 {
			break
		}
		key |= uint64(b) << shift
		shift -= 8
	}
	return key
}

func identity(class, name string, isSet bool) string {
	kind := "get"
	if isSet {
		kind = "set"
	}
	if class == "" {
		return fmt.Sprintf("%s (%s)", name, kind)
	}
	return fmt.Sprintf("%s/%s (%s)", class, name, kind)
}

func (m *Message) Class() string { return m.class }

func (m *Message) Name() string { return m.name }

func (m *Message) IsSet() bool { return m.isSet }

// IsPassive reports whether only other participants initiate this message.
func (m *Message) IsPassive() bool { return m.isPassive }

func (m *Message) Comment() string { return m.comment }

// SrcAddress is symbol.SYN for any sender.
func (m *Message) SrcAddress() byte { return m.srcAddress }

func (m *Message) DstAddress() byte { return m.dstAddress }

// ID returns a copy of PB, SB and the extension bytes.
func (m *Message) ID() []byte { return append([]byte(nil), m.id...) }

func (m *Message) Key() uint64 { return m.key }

// HasKey is false for virtual definitions without a destination.
func (m *Message) HasKey() bool { return m.dstAddress != symbol.SYN }

func (m *Message) PollPriority() uint8 { return m.pollPriority }

func (m *Message) Fields() *datafield.Set { return m.fields }

// Identity is the human-readable lookup identity.
func (m *Message) Identity() string { return identity(m.class, m.name, m.isSet) }

// MasterLength is the NN a master frame of this message carries.
func (m *Message) MasterLength() int {
	return len(m.id) - 2 + m.fields.Length(datafield.PartMaster)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s zz=%02x id=%x", m.Identity(), m.dstAddress, m.id)
}

// PrepareMaster builds QQ ZZ PB SB NN followed by the ID extension and the
// encoded master fields. CRC and escaping are left to the caller.
func (m *Message) PrepareMaster(srcAddress byte, input string, separator byte) (symbol.String, error) {
	if !m.HasKey() {
		return symbol.String{}, protocol.DefinitionError{Row: m.Identity(), Column: "ZZ", Reason: "no destination address"}
	}
	if !symbol.IsMaster(srcAddress) {
		return symbol.String{}, protocol.FieldError{Field: "QQ", Reason: fmt.Sprintf("%02x is not a master address", srcAddress)}
	}
	payload, err := m.fields.Write(datafield.PartMaster, input, separator)
	if err != nil {
		return symbol.String{}, err
	}
	ext := m.id[2:]
	out := symbol.New(srcAddress, m.dstAddress, m.id[0], m.id[1], byte(len(ext)+len(payload)))
	out.Push(ext...)
	out.Push(payload...)
	return out, nil
}

// Decode formats the fields of part found in data. data is the unescaped master
// part (QQ ZZ PB SB NN ...) or slave part (NN ...) without CRC.
func (m *Message) Decode(part datafield.PartType, data symbol.String, separator byte) (string, error) {
	var payload []byte
	switch part {
	case datafield.PartMaster:
		if data.Len() < 5 {
			return "", fmt.Errorf("%w: master header needs 5 bytes, have %d", protocol.ErrIncompleteData, data.Len())
		}
		nn := int(data.At(4))
		if data.Len() < 5+nn {
			return "", fmt.Errorf("%w: master declares %d bytes, have %d", protocol.ErrIncompleteData, nn, data.Len()-5)
		}
		ext := len(m.id) - 2
		if nn < ext {
			return "", fmt.Errorf("%w: master data shorter than id extension", protocol.ErrIncompleteData)
		}
		payload = data.Slice(5+ext, 5+nn)
	case datafield.PartSlave:
		if data.Len() < 1 {
			return "", fmt.Errorf("%w: slave part is empty", protocol.ErrIncompleteData)
		}
		nn := int(data.At(0))
		if data.Len() < 1+nn {
			return "", fmt.Errorf("%w: slave declares %d bytes, have %d", protocol.ErrIncompleteData, nn, data.Len()-1)
		}
		payload = data.Slice(1, 1+nn)
	default:
		return "", protocol.FieldError{Part: part.String(), Reason: "unknown part type"}
	}
	return m.fields.Read(part, payload, separator)
}
