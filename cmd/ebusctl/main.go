package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: ebusctl [-config path] [-log-level level] <command> [args]

commands:
  list                               list loaded messages
  find <master-hex>                  resolve an observed master part
  decode <master-hex> [slave-hex]    decode an observed exchange
  encode [-set] <class> <name> [values]
                                     build the master frame of a message
  poll                               print the frames of polled messages
  monitor [-metrics addr]            decode "master[/slave]" lines from stdin
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "ebusctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("ebusctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "ebusctl.toml", "config file path")
	logLevel := fs.String("log-level", "", "override log_level of the config")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	app, err := newApp(*configPath, *logLevel)
	if err != nil {
		return err
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "list":
		return app.list(stdout)
	case "find":
		return app.find(stdout, cmdArgs)
	case "decode":
		return app.decode(stdout, cmdArgs)
	case "encode":
		return app.encode(stdout, cmdArgs)
	case "poll":
		return app.poll(stdout)
	case "monitor":
		return app.monitor(ctx, stdin, stdout, cmdArgs)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}
