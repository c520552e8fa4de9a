package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/ebusctl/internal/bus"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/rs/zerolog/log"
)

func kind(m *message.Message) string {
	switch {
	case m.IsPassive() && m.IsSet():
		return "uw"
	case m.IsPassive():
		return "u"
	case m.IsSet():
		return "w"
	}
	return "r"
}

func (a *app) list(out io.Writer) error {
	for _, m := range a.handler.Registry().Messages() {
		dst := "--"
		if m.HasKey() {
			dst = fmt.Sprintf("%02x", m.DstAddress())
		}
		fmt.Fprintf(out, "%-2s %-12s %-24s zz=%s id=%s\n", kind(m), m.Class(), m.Name(), dst, hex.EncodeToString(m.ID()))
	}
	return nil
}

func (a *app) find(out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: find needs a master part", errUsage)
	}
	master, err := symbol.ParseHex(strings.Join(args, ""))
	if err != nil {
		return err
	}
	m, err := a.handler.Registry().FindMaster(master)
	if err != nil {
		return fmt.Errorf("find %s: %w", master.Hex(), err)
	}
	fmt.Fprintln(out, m.String())
	return nil
}

func (a *app) decode(out io.Writer, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("%w: decode needs a master part and an optional slave part", errUsage)
	}
	line := args[0]
	if len(args) == 2 {
		line += "/" + args[1]
	}
	master, slave, err := bus.ParseLine(line)
	if err != nil {
		return err
	}
	res, err := a.handler.Observe(master, slave)
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func (a *app) encode(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	isSet := fs.Bool("set", false, "use the set message")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) < 2 || len(rest) > 3 {
		return fmt.Errorf("%w: encode needs class, name and optional values", errUsage)
	}
	input := ""
	if len(rest) == 3 {
		input = rest[2]
	}
	f, err := a.handler.Prepare(rest[0], rest[1], *isSet, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", f.Master.Hex(), hex.EncodeToString(f.Wire))
	return nil
}

func (a *app) poll(out io.Writer) error {
	frames, err := a.handler.PollFrames()
	for _, f := range frames {
		fmt.Fprintf(out, "%d %s %s\n", f.Message.PollPriority(), f.Message.Identity(), f.Master.Hex())
	}
	return err
}

func (a *app) monitor(ctx context.Context, in io.Reader, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	metricsAddr := fs.String("metrics", a.cfg.MetricsAddr, "status server listen address, empty disables")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serverErr := make(chan error, 1)
	if *metricsAddr != "" {
		srv := bus.NewServer(*metricsAddr, a.handler)
		go func() { serverErr <- srv.Serve(ctx) }()
	} else {
		close(serverErr)
	}

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- a.handler.Monitor(ctx, in, func(o bus.Observation) {
			if o.Err != nil {
				fmt.Fprintf(out, "line %d: error: %v\n", o.Line, o.Err)
				return
			}
			printResult(out, o.Result)
		})
	}()

	var err error
	serverDone := false
	select {
	case err = <-monitorErr:
	case srvErr := <-serverErr:
		serverDone = true
		if srvErr != nil {
			cancel()
			return fmt.Errorf("status server: %w", srvErr)
		}
		err = <-monitorErr
	}
	stats := a.handler.Stats()
	log.Info().Uint64("frames", stats.Frames).Uint64("decoded", stats.Decoded).Uint64("failed", stats.Failed).Msg("monitor done")

	cancel()
	if !serverDone {
		if srvErr := <-serverErr; srvErr != nil && err == nil {
			err = fmt.Errorf("status server: %w", srvErr)
		}
	}
	return err
}

func printResult(out io.Writer, res bus.Result) {
	m := res.Message
	values := res.Master
	if res.Answered {
		if values != "" {
			values += " / "
		}
		values += res.Slave
	}
	fmt.Fprintf(out, "%s %s\n", m.Identity(), values)
}
