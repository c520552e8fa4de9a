package bus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/danmuck/ebusctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	tmpl := datafield.NewTemplates()
	if err := tmpl.Add([]string{"temp", "D2C", "", "°C", "temperature"}); err != nil {
		t.Fatalf("add template: %v", err)
	}
	reg := message.NewRegistry()
	rows := [][]string{
		{"r2", "heating", "flowtemp", "", "", "15", "b509", "0d2800", "temp", "s", "temp"},
		{"w", "heating", "flowtemp", "", "", "15", "b509", "0e2800", "temp", "m", "temp"},
		{"r1", "heating", "status", "", "", "15", "b504", "00"},
		{"u", "", "outsidetemp", "", "10", "fe", "0701", "", "temp", "m", "temp"},
	}
	for _, row := range rows {
		m, err := message.Create(row, nil, tmpl)
		if err != nil {
			t.Fatalf("create %v: %v", row, err)
		}
		if err := reg.Add(m); err != nil {
			t.Fatalf("add %s: %v", m, err)
		}
	}
	h, err := NewHandler(reg, DefaultConfig())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func mustHex(t *testing.T, raw string) symbol.String {
	t.Helper()
	s, err := symbol.ParseHex(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return s
}

func TestNewHandlerRejectsSlaveAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := NewHandler(message.NewRegistry(), Config{Address: 0x15}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
	if _, err := NewHandler(nil, DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestObserveMasterSlave(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	res, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 28 00"), mustHex(t, "02 70 03"))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if res.Message.Name() != "flowtemp" || res.Message.IsSet() {
		t.Fatalf("unexpected message %s", res.Message)
	}
	if !res.Answered || res.Slave != "55" || res.Master != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestObserveBroadcast(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	res, err := h.Observe(mustHex(t, "10 fe 07 01 02 50 00"), symbol.String{})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if res.Answered || res.Master != "5" || !res.Message.IsPassive() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestObserveErrors(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	if _, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 29 00"), mustHex(t, "02 70 03")); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 28 00"), symbol.String{}); !errors.Is(err, protocol.ErrIncompleteData) {
		t.Fatalf("expected ErrIncompleteData for missing slave, got %v", err)
	}
	if _, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 28 00"), mustHex(t, "01 70")); !errors.Is(err, protocol.ErrIncompleteData) {
		t.Fatalf("expected ErrIncompleteData for short slave, got %v", err)
	}
	res, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 28 00"), mustHex(t, "02 00 80"))
	if err != nil || res.Slave != "" {
		t.Fatalf("replacement value must decode empty: %q %v", res.Slave, err)
	}
}

func TestPrepare(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	f, err := h.Prepare("heating", "flowtemp", true, "55")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if f.Master.Hex() != "3115b509050e28007003" {
		t.Fatalf("unexpected master %s", f.Master.Hex())
	}
	back, err := symbol.ParseEscaped(f.Wire)
	if err != nil {
		t.Fatalf("parse wire: %v", err)
	}
	if back.Hex() != f.Master.Hex() {
		t.Fatalf("wire does not round trip: %s != %s", back.Hex(), f.Master.Hex())
	}
	res, err := h.Observe(f.Master, symbol.New(0x00))
	if err != nil || res.Message != f.Message || res.Master != "55" {
		t.Fatalf("prepared frame not observed back: %+v %v", res, err)
	}
}

func TestPrepareErrors(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	if _, err := h.Prepare("", "outsidetemp", false, ""); !errors.Is(err, ErrPassive) {
		t.Fatalf("expected ErrPassive, got %v", err)
	}
	if _, err := h.Prepare("heating", "returntemp", false, ""); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.Prepare("heating", "flowtemp", true, "hot"); !errors.Is(err, protocol.ErrFieldFormat) {
		t.Fatalf("expected ErrFieldFormat, got %v", err)
	}
	if _, err := h.Prepare("heating", "flowtemp", false, "1"); !errors.Is(err, protocol.ErrFieldFormat) {
		t.Fatalf("expected ErrFieldFormat for unexpected input, got %v", err)
	}
}

func TestPollFrames(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)
	frames, err := h.PollFrames()
	if err != nil {
		t.Fatalf("poll frames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 polled frames, got %d", len(frames))
	}
	if frames[0].Message.Name() != "flowtemp" || frames[1].Message.Name() != "status" {
		t.Fatalf("unexpected poll order: %s, %s", frames[0].Message, frames[1].Message)
	}
	if frames[1].Master.Hex() != "3115b5040100" {
		t.Fatalf("unexpected status frame %s", frames[1].Master.Hex())
	}
}

func TestHandlerLogsKeepMessageKey(t *testing.T) {
	testlog.Start(t)
	h := newTestHandler(t)

	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	if _, err := h.Prepare("heating", "flowtemp", true, "55"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := h.Observe(mustHex(t, "31 15 b5 09 03 0d 28 00"), mustHex(t, "02 70 03")); err != nil {
		t.Fatalf("observe: %v", err)
	}
	var checked int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"message":"bus.`) {
			continue
		}
		checked++
		if strings.Count(line, `"message":`) != 1 || !strings.Contains(line, `"definition":"heating/flowtemp`) {
			t.Fatalf("unexpected log line %s", line)
		}
	}
	if checked < 2 {
		t.Fatalf("expected prepare and observe log lines, got %q", buf.String())
	}
}
