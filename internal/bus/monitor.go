package bus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/danmuck/ebusctl/internal/observability"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/rs/zerolog/log"
)

// Observation is the outcome of one monitored line.
type Observation struct {
	Line   int
	Result Result
	Err    error
}

// Stats counts monitored frames.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Decoded uint64 `json:"decoded"`
	Failed  uint64 `json:"failed"`
}

type counters struct {
	frames  atomic.Uint64
	decoded atomic.Uint64
	failed  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{Frames: c.frames.Load(), Decoded: c.decoded.Load(), Failed: c.failed.Load()}
}

func (h *Handler) Stats() Stats { return h.stats.snapshot() }

// ParseLine splits "master[/slave]" into its unescaped parts. Hex digits may be
// grouped with spaces.
func ParseLine(line string) (master, slave symbol.String, err error) {
	masterHex, slaveHex, _ := strings.Cut(line, "/")
	master, err = symbol.ParseHex(masterHex)
	if err != nil {
		return symbol.String{}, symbol.String{}, fmt.Errorf("master: %w", err)
	}
	if strings.TrimSpace(slaveHex) != "" {
		slave, err = symbol.ParseHex(slaveHex)
		if err != nil {
			return symbol.String{}, symbol.String{}, fmt.Errorf("slave: %w", err)
		}
	}
	return master, slave, nil
}

// Monitor observes every line of r until EOF or ctx is done. Blank lines and
// lines starting with '#' are skipped. Frame errors go to fn; only read errors
// end the walk early.
func (h *Handler) Monitor(ctx context.Context, r io.Reader, fn func(Observation)) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		obs := Observation{Line: line}
		master, slave, err := ParseLine(text)
		if err == nil {
			obs.Result, err = h.Observe(master, slave)
		}
		obs.Err = err

		h.stats.frames.Add(1)
		if err != nil {
			h.stats.failed.Add(1)
			log.Debug().Int("line", line).Err(err).Msg("bus.Monitor frame failed")
		} else {
			h.stats.decoded.Add(1)
		}
		observability.RecordFrame(err)
		if fn != nil {
			fn(obs)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("bus: monitor read: %w", err)
	}
	return nil
}
