// Package main implements timectl, an operator CLI for the time engine:
// timezone conversions, snapshot inspection and development tokens.
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

	"github.com/fatih/color"
)

const usage = `Usage: timectl <command> [flags]

Commands:
  convert    convert a local wall-clock time to UTC or an instant to local time
  snapshot   list or print cached engine snapshots
  keygen     write a new RSA signing key in PEM form
  token      mint a bearer token for a user

Run "timectl <command> -h" for command flags.
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "convert":
		return runConvert(rest, stdout, stderr)
	case "snapshot":
		return runSnapshot(ctx, rest, stdout, stderr)
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("timectl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

var (
	labelColor = color.New(color.FgCyan)
	valueColor = color.New(color.Bold)
	warnColor  = color.New(color.FgYellow)
	dimColor   = color.New(color.FgHiBlack)
)

// field prints an aligned "label: value" line.
func field(w io.Writer, label, value string) {
	labelColor.Fprintf(w, "%-12s", label+":")
	valueColor.Fprintln(w, value)
}
