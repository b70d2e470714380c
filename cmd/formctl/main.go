// Command formctl drives the typeahead resolver and the upload dispatcher
// against a live backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

const usage = `usage:
  formctl search --url URL [--min N] [--debounce D] [--limit N] QUERY...
  formctl upload --binary URL --json URL [--field F] [--meta k=v]... [--force-json] FILE...
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "search":
		err = runSearch(ctx, args[1:], stdout, stderr)
	case "upload":
		err = runUpload(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "formctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func newLogger(stderr io.Writer, verbosity int) logr.Logger {
	if verbosity <= 0 {
		return logr.Discard()
	}
	stdr.SetVerbosity(verbosity)
	return stdr.New(log.New(stderr, "", log.LstdFlags)).WithName("formctl")
}
