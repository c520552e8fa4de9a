// Package bus resolves observed frames against a message registry and builds
// outbound master frames. It performs no I/O.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ebusctl/internal/observability"
	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/rs/zerolog/log"
)

var (
	ErrPassive      = errors.New("bus: passive message cannot be sent")
	ErrInvalidOwner = errors.New("bus: own address is not a master address")
)

// Config configures a Handler.
type Config struct {
	// Address is the own master address, QQ of prepared frames.
	Address   byte
	Separator byte
}

func DefaultConfig() Config {
	return Config{Address: 0x31, Separator: message.DefaultSeparator}
}

// Handler is safe for concurrent use once built; the registry guards itself.
type Handler struct {
	registry *message.Registry
	cfg      Config
	stats    counters
}

func NewHandler(registry *message.Registry, cfg Config) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("bus: nil registry")
	}
	if !symbol.IsMaster(cfg.Address) {
		return nil, fmt.Errorf("%w: %02x", ErrInvalidOwner, cfg.Address)
	}
	if cfg.Separator == 0 {
		cfg.Separator = message.DefaultSeparator
	}
	return &Handler{registry: registry, cfg: cfg}, nil
}

func (h *Handler) Registry() *message.Registry { return h.registry }

func (h *Handler) Address() byte { return h.cfg.Address }

// Result is one decoded exchange.
type Result struct {
	Message *message.Message
	// Master holds the decoded master fields, Slave the decoded slave fields.
	Master string
	Slave  string
	// Answered reports whether a slave part was decoded.
	Answered bool
}

// Observe resolves master and decodes both parts. master is QQ ZZ PB SB NN
// data and slave is NN data, both unescaped without CRC. slave may be empty
// for broadcast and master-master exchanges.
func (h *Handler) Observe(master, slave symbol.String) (Result, error) {
	m, err := h.registry.FindMaster(master)
	observability.RecordLookup("master", err == nil)
	if err != nil {
		log.Debug().Str("master", master.Hex()).Err(err).Msg("bus.Observe unresolved")
		return Result{}, err
	}
	res := Result{Message: m}

	res.Master, err = h.decode(m, datafield.PartMaster, master)
	if err != nil {
		return res, fmt.Errorf("%s: %w", m.Identity(), err)
	}

	if expectsAnswer(master.At(1)) {
		if slave.Len() == 0 {
			if m.Fields().Length(datafield.PartSlave) > 0 {
				return res, fmt.Errorf("%s: %w: slave part missing", m.Identity(), protocol.ErrIncompleteData)
			}
		} else {
			res.Slave, err = h.decode(m, datafield.PartSlave, slave)
			if err != nil {
				return res, fmt.Errorf("%s: %w", m.Identity(), err)
			}
			res.Answered = true
		}
	}

	log.Debug().
		Str("definition", m.Identity()).
		Str("master", res.Master).
		Str("slave", res.Slave).
		Msg("bus.Observe decoded")
	return res, nil
}

func (h *Handler) decode(m *message.Message, part datafield.PartType, data symbol.String) (string, error) {
	start := time.Now()
	out, err := m.Decode(part, data, h.cfg.Separator)
	observability.RecordCodec("decode", part.String(), err, time.Since(start))
	return out, err
}

// expectsAnswer is false for broadcast and master destinations.
func expectsAnswer(dst byte) bool {
	return dst != symbol.BROADCAST && !symbol.IsMaster(dst)
}

// Frame is a prepared outbound master part.
type Frame struct {
	Message *message.Message
	Master  symbol.String
	// Wire is Master with CRC, escaped for transmission.
	Wire []byte
}

// Prepare builds the master frame for the named message from input values.
func (h *Handler) Prepare(class, name string, isSet bool, input string) (Frame, error) {
	m, err := h.registry.Find(class, name, isSet)
	observability.RecordLookup("name", err == nil)
	if err != nil {
		return Frame{}, err
	}
	return h.PrepareMessage(m, input)
}

func (h *Handler) PrepareMessage(m *message.Message, input string) (Frame, error) {
	if m.IsPassive() {
		return Frame{}, fmt.Errorf("%w: %s", ErrPassive, m.Identity())
	}
	start := time.Now()
	master, err := m.PrepareMaster(h.cfg.Address, input, h.cfg.Separator)
	observability.RecordCodec("encode", datafield.PartMaster.String(), err, time.Since(start))
	if err != nil {
		return Frame{}, fmt.Errorf("%s: %w", m.Identity(), err)
	}
	log.Debug().Str("definition", m.Identity()).Str("master", master.Hex()).Msg("bus.Prepare")
	return Frame{Message: m, Master: master, Wire: master.Escaped()}, nil
}

// PollFrames prepares every polled get message in poll order. Messages that
// cannot be prepared are returned joined in the error.
func (h *Handler) PollFrames() ([]Frame, error) {
	polled := h.registry.Polled()
	frames := make([]Frame, 0, len(polled))
	var errs []error
	for _, m := range polled {
		f, err := h.PrepareMessage(m, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, errors.Join(errs...)
}
