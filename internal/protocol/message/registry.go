package message

import (
	"sort"
	"sync"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/rs/zerolog/log"
)

type nameKey struct {
	class string
	name  string
	isSet bool
}

type bareName struct {
	name  string
	isSet bool
}

// Registry owns every known Message. Both indices hold positions into the
// owning slice, never a second reference.
//
// Population is expected once at startup; afterwards all methods are safe for
// concurrent readers. A reload builds a new Registry instead of mutating one.
type Registry struct {
	mu          sync.RWMutex
	entries     []*Message
	byName      map[nameKey]int
	byBareName  map[bareName][]string
	byKey       map[uint64]int
	minIDLength int
	maxIDLength int
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.entries = nil
	r.byName = make(map[nameKey]int)
	r.byBareName = make(map[bareName][]string)
	r.byKey = make(map[uint64]int)
	r.minIDLength = MaxIDLength
	r.maxIDLength = 0
}

// Add takes ownership of m. Nothing is inserted when m collides with an
// existing identity or key.
func (r *Registry) Add(m *Message) error {
	if m == nil {
		return protocol.DefinitionError{Reason: "nil message"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	nk := nameKey{class: m.class, name: m.name, isSet: m.isSet}
	if _, ok := r.byName[nk]; ok {
		log.Debug().Str("definition", m.Identity()).Msg("registry.Add duplicate identity")
		return protocol.DuplicateError{Identity: m.Identity()}
	}
	if m.HasKey() {
		if idx, ok := r.byKey[m.key]; ok {
			log.Debug().
				Str("definition", m.Identity()).
				Str("existing", r.entries[idx].Identity()).
				Uint64("key", m.key).
				Msg("registry.Add duplicate key")
			return protocol.DuplicateError{Identity: m.Identity() + " collides with " + r.entries[idx].Identity(), Key: m.key}
		}
	}

	idx := len(r.entries)
	r.entries = append(r.entries, m)
	r.byName[nk] = idx
	bn := bareName{name: m.name, isSet: m.isSet}
	classes := append(r.byBareName[bn], m.class)
	sort.Strings(classes)
	r.byBareName[bn] = classes
	if m.HasKey() {
		r.byKey[m.key] = idx
		if n := len(m.id); n < r.minIDLength {
			r.minIDLength = n
		}
		if n := len(m.id); n > r.maxIDLength {
			r.maxIDLength = n
		}
	}
	return nil
}

// Find resolves a human identity. An unknown class falls back to the
// ungrouped definition; an empty class falls back to the first class (by name)
// defining it.
func (r *Registry) Find(class, name string, isSet bool) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx, ok := r.byName[nameKey{class: class, name: name, isSet: isSet}]; ok {
		return r.entries[idx], nil
	}
	if class != "" {
		if idx, ok := r.byName[nameKey{name: name, isSet: isSet}]; ok {
			return r.entries[idx], nil
		}
		return nil, protocol.ErrNotFound
	}
	classes := r.byBareName[bareName{name: name, isSet: isSet}]
	if len(classes) == 0 {
		return nil, protocol.ErrNotFound
	}
	return r.entries[r.byName[nameKey{class: classes[0], name: name, isSet: isSet}]], nil
}

// FindMaster identifies the Message of an observed master part
// (QQ ZZ PB SB NN data...). ID lengths are probed from shortest to longest;
// a candidate must match the key and the source of a passive definition with
// a specific sender. The first candidate whose shape implies exactly NN wins,
// otherwise the first one whose master part fits within NN.
func (r *Registry) FindMaster(master symbol.String) (*Message, error) {
	if master.Len() < 5 {
		return nil, protocol.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	qq, zz, nn := master.At(0), master.At(1), int(master.At(4))
	id := make([]byte, 0, MaxIDLength)
	var fallback *Message
	for length := r.minIDLength; length <= r.maxIDLength; length++ {
		ext := length - 2
		if ext > nn || 5+ext > master.Len() {
			break
		}
		id = append(id[:0], master.At(2), master.At(3))
		id = append(id, master.Slice(5, 5+ext)...)
		idx, ok := r.byKey[DeriveKey(zz, id)]
		if !ok {
			continue
		}
		m := r.entries[idx]
		if qq != symbol.SYN && m.isPassive && m.srcAddress != symbol.SYN && m.srcAddress != qq {
			log.Trace().Str("definition", m.Identity()).Uint8("qq", qq).Msg("registry.FindMaster source mismatch")
			continue
		}
		switch want := m.MasterLength(); {
		case want == nn:
			return m, nil
		case want < nn && fallback == nil:
			fallback = m
		default:
			log.Trace().Str("definition", m.Identity()).Int("nn", nn).Msg("registry.FindMaster shape mismatch")
		}
	}
	if fallback != nil {
		log.Trace().Str("definition", fallback.Identity()).Int("nn", nn).Msg("registry.FindMaster accepted longer master part")
		return fallback, nil
	}
	return nil, protocol.ErrNotFound
}

// Clear drops every Message and resets the ID length bounds.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Messages returns all messages in insertion order.
func (r *Registry) Messages() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Message(nil), r.entries...)
}

func (r *Registry) MinIDLength() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minIDLength
}

func (r *Registry) MaxIDLength() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxIDLength
}

// Polled returns messages with a poll priority, highest first.
func (r *Registry) Polled() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Message, 0)
	for _, m := range r.entries {
		if m.pollPriority > 0 {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].pollPriority > out[j].pollPriority
	})
	return out
}
