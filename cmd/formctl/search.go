package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"formkit/internal/typeahead"
)

type searchOptions struct {
	url        string
	minLen     int
	debounce   time.Duration
	limit      int
	keystroke  time.Duration
	quiet      time.Duration
	timeout    time.Duration
	idField    string
	labelField string
	verbosity  int
}

func runSearch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts searchOptions
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.url, "url", "", "search endpoint, e.g. http://localhost:8081/api/search")
	fs.IntVar(&opts.minLen, "min", 0, "minimum query length before searching")
	fs.DurationVar(&opts.debounce, "debounce", typeahead.DefaultDebounce, "quiet period before a query is sent")
	fs.IntVar(&opts.limit, "limit", typeahead.DefaultPageSize, "page size requested from the endpoint")
	fs.DurationVar(&opts.keystroke, "keystroke", 40*time.Millisecond, "delay between simulated keystrokes")
	fs.DurationVar(&opts.quiet, "settle", 100*time.Millisecond, "idle time after which results are considered final")
	fs.DurationVar(&opts.timeout, "timeout", 15*time.Second, "overall timeout")
	fs.StringVar(&opts.idField, "id-field", "id", "record field holding the option id")
	fs.StringVar(&opts.labelField, "label-field", "name", "record field holding the option label")
	fs.IntVarP(&opts.verbosity, "verbose", "v", 0, "log verbosity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	queries := fs.Args()
	if strings.TrimSpace(opts.url) == "" {
		return errors.New("--url is required")
	}
	if len(queries) == 0 {
		return errors.New("at least one QUERY is required")
	}
	log := newLogger(stderr, opts.verbosity)

	fetch, err := typeahead.NewHTTPSource(typeahead.HTTPSourceConfig{
		URL:        opts.url,
		IDField:    opts.idField,
		LabelField: opts.labelField,
	})
	if err != nil {
		return err
	}

	type update struct {
		results []typeahead.Option[typeahead.Record]
		err     error
	}
	updates := make(chan update, 64)
	r, err := typeahead.New(typeahead.Config[typeahead.Record]{
		Fetch:          fetch,
		Debounce:       opts.debounce,
		MinQueryLength: opts.minLen,
		PageSize:       opts.limit,
		Logger:         log,
		OnResults: func(o []typeahead.Option[typeahead.Record]) {
			select {
			case updates <- update{results: o}:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case updates <- update{err: err}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	for _, q := range queries {
		if n := len([]rune(strings.TrimSpace(q))); n > 0 && n < opts.minLen {
			fmt.Fprintf(stdout, "%q: below minimum length %d\n", strings.TrimSpace(q), opts.minLen)
			continue
		}
		if err := typeQuery(ctx, r, q, opts.keystroke); err != nil {
			return err
		}
		r.Open()

		last, err := settle(ctx, r, updates, opts.quiet)
		if err != nil {
			return err
		}
		if last.err != nil {
			fmt.Fprintf(stdout, "%q: error: %v\n", strings.TrimSpace(q), last.err)
			continue
		}
		printOptions(stdout, q, last.results)
	}

	m := r.Metrics()
	log.V(1).Info("search finished", "fetches", m.Fetches, "cacheHits", m.CacheHits, "superseded", m.Superseded, "failures", m.Failures)
	return nil
}

// typeQuery feeds q one rune at a time, like a user typing.
func typeQuery(ctx context.Context, r *typeahead.Resolver[typeahead.Record], q string, delay time.Duration) error {
	runes := []rune(q)
	for i := 1; i <= len(runes); i++ {
		r.SetQuery(string(runes[:i]))
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

// settle waits until the resolver is idle and no update has arrived for
// quiet, then returns the most recent update.
func settle[U any](ctx context.Context, r *typeahead.Resolver[typeahead.Record], updates <-chan U, quiet time.Duration) (U, error) {
	var last U
	got := false
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case u := <-updates:
			last, got = u, true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)
		case <-timer.C:
			if got && !r.State().Loading {
				return last, nil
			}
			timer.Reset(quiet)
		}
	}
}

func printOptions(w io.Writer, q string, opts []typeahead.Option[typeahead.Record]) {
	fmt.Fprintf(w, "%q: %d option(s)\n", strings.TrimSpace(q), len(opts))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range opts {
		fmt.Fprintf(tw, "  %s\t%s\n", o.ID, o.Label)
	}
	_ = tw.Flush()
}
