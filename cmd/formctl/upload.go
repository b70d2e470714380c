package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"formkit/internal/upload"
)

type uploadOptions struct {
	binaryURL   string
	jsonURL     string
	field       string
	meta        []string
	headers     []string
	forceJSON   bool
	concurrency int
	timeout     time.Duration
	progress    bool
	verbosity   int
}

func runUpload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts uploadOptions
	fs := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.binaryURL, "binary", "", "multipart endpoint for streamable media")
	fs.StringVar(&opts.jsonURL, "json", "", "JSON endpoint for base64-encoded files")
	fs.StringVar(&opts.field, "field", upload.DefaultField, "file field name")
	fs.StringArrayVar(&opts.meta, "meta", nil, "metadata as key=value (repeatable)")
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, "extra request header as 'Name: value' (repeatable)")
	fs.BoolVar(&opts.forceJSON, "force-json", false, "always use the JSON encoding")
	fs.IntVarP(&opts.concurrency, "concurrency", "c", 4, "parallel uploads")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall timeout")
	fs.BoolVar(&opts.progress, "progress", false, "report transfer progress on stderr")
	fs.IntVarP(&opts.verbosity, "verbose", "v", 0, "log verbosity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return errors.New("at least one FILE is required")
	}
	if strings.TrimSpace(opts.binaryURL) == "" && strings.TrimSpace(opts.jsonURL) == "" {
		return errors.New("--binary or --json is required")
	}
	meta, err := parseMeta(opts.meta)
	if err != nil {
		return err
	}
	header, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}

	d := upload.New(upload.Config{
		Client:       &http.Client{},
		DefaultField: opts.field,
		Header:       header,
		Logger:       newLogger(stderr, opts.verbosity),
	})

	var progressMu sync.Mutex
	tasks := make([]upload.Task, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FileFromPath(p)
		if err != nil {
			for _, t := range tasks {
				if c, ok := t.File.Body.(io.Closer); ok {
					_ = c.Close()
				}
			}
			return err
		}
		so := upload.SendOptions{
			Endpoints:         upload.Endpoints{Binary: opts.binaryURL, JSON: opts.jsonURL},
			Meta:              meta,
			ForceJSONEncoding: opts.forceJSON,
		}
		if opts.progress {
			name := f.Name
			so.OnProgress = func(sent, total int64) {
				progressMu.Lock()
				defer progressMu.Unlock()
				if total > 0 {
					fmt.Fprintf(stderr, "%s: %s / %s\n", name, humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(total)))
					return
				}
				fmt.Fprintf(stderr, "%s: %s\n", name, humanize.Bytes(uint64(sent)))
			}
		}
		tasks = append(tasks, upload.Task{File: f, Options: so})
	}
	names := make([]string, len(tasks))
	sizes := make([]int64, len(tasks))
	for i, t := range tasks {
		names[i], sizes[i] = t.File.Name, t.File.Size
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	outs := d.SendAll(ctx, tasks, opts.concurrency)

	failed := 0
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tENCODING\tSTATUS\tHTTP\tREFERENCE")
	for i, out := range outs {
		ref := out.FileRef
		if !out.RefFound {
			ref = "-"
		}
		httpStatus := "-"
		if out.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(out.HTTPStatus)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", names[i], humanize.Bytes(uint64(max(sizes[i], 0))), out.Strategy, out.Status, httpStatus, ref)
		if !out.OK() {
			failed++
		}
	}
	_ = tw.Flush()
	for i, out := range outs {
		if out.Err != nil && !out.Canceled() {
			fmt.Fprintf(stderr, "%s: %v\n", names[i], out.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d upload(s) failed", failed, len(outs))
	}
	return nil
}

func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--meta %q: want key=value", pair)
		}
		meta[k] = v
	}
	return meta, nil
}

func parseHeaders(lines []string) (http.Header, error) {
	header := http.Header{}
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--header %q: want 'Name: value'", line)
		}
		header.Add(k, strings.TrimSpace(v))
	}
	return header, nil
}
