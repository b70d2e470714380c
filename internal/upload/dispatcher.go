// Package upload sends a single file plus companion metadata to a server,
// choosing multipart or base64-in-JSON encoding from the file identity, and
// recovers a durable reference from whatever the server answers.
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"formkit/internal/remote"
)

const (
	DefaultField            = "file"
	defaultMaxResponseBytes = 8 << 20
)

var errUploadFinished = errors.New("upload: request finished")

// Endpoints names where each encoding is posted.
type Endpoints struct {
	Binary string
	JSON   string
}

// SendOptions accompanies one file.
type SendOptions struct {
	Endpoints Endpoints
	// Meta is copied into the request next to the file.
	Meta map[string]any
	// FieldName overrides the dispatcher's default file field.
	FieldName string
	// OnProgress receives cumulative bytes handed to the transport. total is
	// -1 when unknown.
	OnProgress func(sent, total int64)
	// ForceJSONEncoding disables the multipart path.
	ForceJSONEncoding bool
}

type Config struct {
	Client *http.Client
	Policy StrategyPolicy
	// DefaultField is the file field name when SendOptions.FieldName is empty.
	DefaultField string
	Extractor    Extractor
	Header       http.Header
	// MaxResponseBytes caps how much of a response is read.
	MaxResponseBytes int64
	Logger           logr.Logger
}

// Dispatcher holds only immutable configuration and is safe for concurrent use.
type Dispatcher struct {
	client       *http.Client
	policy       StrategyPolicy
	defaultField string
	extractor    Extractor
	header       http.Header
	maxResponse  int64
	log          logr.Logger
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		client:       cfg.Client,
		policy:       cfg.Policy,
		defaultField: strings.TrimSpace(cfg.DefaultField),
		extractor:    cfg.Extractor,
		header:       cfg.Header.Clone(),
		maxResponse:  cfg.MaxResponseBytes,
		log:          cfg.Logger.WithName("upload"),
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.policy.isZero() {
		d.policy = DefaultPolicy()
	}
	if d.defaultField == "" {
		d.defaultField = DefaultField
	}
	if len(d.extractor) == 0 {
		d.extractor = DefaultExtractor()
	}
	if d.maxResponse <= 0 {
		d.maxResponse = defaultMaxResponseBytes
	}
	return d
}

// Strategy reports which encoding Send would use, without side effects.
func (d *Dispatcher) Strategy(f File, forceJSON bool) Strategy {
	return d.policy.Select(f.Name, f.ContentType, forceJSON)
}

// Send transfers f and never returns a Go error: every failure is folded
// into the Outcome. Cancelling ctx aborts the transfer with StatusCanceled.
func (d *Dispatcher) Send(ctx context.Context, f File, opts SendOptions) Outcome {
	defer closeBody(f.Body)

	strategy := d.Strategy(f, opts.ForceJSONEncoding)
	field := strings.TrimSpace(opts.FieldName)
	if field == "" {
		field = d.defaultField
	}
	log := d.log.WithValues("strategy", strategy.String(), "ext", f.Ext(), "size", sizeLabel(f.Size), "metaFields", len(opts.Meta))

	if f.Body == nil {
		return invalid(strategy, errors.New("upload: file has no body"))
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusCanceled, Strategy: strategy, Err: err}
	}

	var out Outcome
	switch strategy {
	case StrategyMultipart:
		endpoint := strings.TrimSpace(opts.Endpoints.Binary)
		if endpoint == "" {
			return invalid(strategy, errors.New("upload: binary endpoint is required for multipart uploads"))
		}
		out = d.sendMultipart(ctx, endpoint, f, field, opts)
	default:
		endpoint := strings.TrimSpace(opts.Endpoints.JSON)
		if endpoint == "" {
			return invalid(strategy, errors.New("upload: json endpoint is required for encoded uploads"))
		}
		out = d.sendJSON(ctx, endpoint, f, field, opts)
	}
	out.Strategy = strategy

	switch out.Status {
	case StatusOK:
		log.V(1).Info("upload finished", "status", out.HTTPStatus, "refFound", out.RefFound, "responseBytes", len(out.Raw))
	case StatusCanceled:
		log.V(1).Info("upload canceled")
	default:
		log.Error(out.Err, "upload failed", "outcome", out.Status.String(), "status", out.HTTPStatus, "responseBytes", len(out.Raw))
	}
	return out
}

type formField struct {
	name, value string
}

// multipartFields renders meta in key order. The file field name is skipped
// and nil values are omitted.
func multipartFields(meta map[string]any, field string) ([]formField, error) {
	fields := make([]formField, 0, len(meta))
	for _, key := range sortedKeys(meta) {
		if key == field {
			continue
		}
		value, ok, err := metaString(meta[key])
		if err != nil {
			return nil, fmt.Errorf("upload: meta %q: %w", key, err)
		}
		if ok {
			fields = append(fields, formField{name: key, value: value})
		}
	}
	return fields, nil
}

func (d *Dispatcher) sendMultipart(ctx context.Context, endpoint string, f File, field string, opts SendOptions) Outcome {
	fields, err := multipartFields(opts.Meta, field)
	if err != nil {
		return invalid(StrategyMultipart, err)
	}

	var src io.Reader = f.Body
	if opts.OnProgress != nil {
		total := f.Size
		if total < 0 {
			total = -1
		}
		src = &progressReader{r: f.Body, total: total, fn: opts.OnProgress}
	}
	body := &sourceReader{r: src}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	// readErr is filled before the pipe is closed, so it is visible by the
	// time the transport reports the failure.
	readErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			readErr <- body.err
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			if cerr := mw.Close(); cerr != nil {
				_ = pw.CloseWithError(cerr)
				return
			}
			_ = pw.Close()
		}()
		err = writeMultipartBody(mw, body, f, field, fields)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return invalid(StrategyMultipart, fmt.Errorf("upload: build request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	out := d.do(ctx, req)
	// unblock the writer if the transport stopped reading early
	_ = pr.CloseWithError(errUploadFinished)

	if out.Status == StatusTransportError {
		select {
		case rerr := <-readErr:
			if rerr != nil {
				return invalid(StrategyMultipart, fmt.Errorf("upload: read file: %w", rerr))
			}
		default:
		}
	}
	return out
}

// sourceReader remembers the first read failure of the file body, as
// opposed to failures writing into the pipe.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func writeMultipartBody(mw *multipart.Writer, src io.Reader, f File, field string, fields []formField) error {
	for _, ff := range fields {
		if err := mw.WriteField(ff.name, ff.value); err != nil {
			return err
		}
	}
	ctype := strings.TrimSpace(f.ContentType)
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(f.Name)))
	header.Set("Content-Type", ctype)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

type encodedFile struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	ContentType   string `json:"content_type"`
}

func (d *Dispatcher) sendJSON(ctx context.Context, endpoint string, f File, field string, opts SendOptions) Outcome {
	content, err := io.ReadAll(f.Body)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Status: StatusCanceled, Err: ctx.Err()}
		}
		return invalid(StrategyJSON, fmt.Errorf("upload: read file: %w", err))
	}
	ctype := strings.TrimSpace(f.ContentType)
	if ctype == "" {
		ctype = detectContentType(f.Name, content)
	}

	payload := make(map[string]any, len(opts.Meta)+1)
	for k, v := range opts.Meta {
		payload[k] = v
	}
	payload[field] = encodedFile{
		Filename:      f.Name,
		ContentBase64: base64.StdEncoding.EncodeToString(content),
		ContentType:   ctype,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return invalid(StrategyJSON, fmt.Errorf("upload: encode body: %w", err))
	}

	var body io.Reader = bytes.NewReader(raw)
	if opts.OnProgress != nil {
		body = &progressReader{r: body, total: int64(len(raw)), fn: opts.OnProgress}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return invalid(StrategyJSON, fmt.Errorf("upload: build request: %w", err))
	}
	req.ContentLength = int64(len(raw))
	req.Header.Set("Content-Type", "application/json")
	return d.do(ctx, req)
}

func (d *Dispatcher) do(ctx context.Context, req *http.Request) Outcome {
	for k, vs := range d.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		if remote.Classify(ctx, err) == remote.KindCanceled {
			return Outcome{Status: StatusCanceled, Err: context.Canceled}
		}
		return Outcome{Status: StatusTransportError, Err: &remote.TransportError{Op: "upload", Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponse))
	if err != nil {
		if remote.Classify(ctx, err) == remote.KindCanceled {
			return Outcome{Status: StatusCanceled, HTTPStatus: resp.StatusCode, Err: context.Canceled}
		}
		return Outcome{Status: StatusTransportError, HTTPStatus: resp.StatusCode, Err: &remote.TransportError{Op: "read upload response", Err: err}}
	}
	data := decodeResponse(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Status:     StatusHTTPError,
			HTTPStatus: resp.StatusCode,
			Data:       data,
			Raw:        raw,
			Err:        &remote.StatusError{Status: resp.StatusCode, Body: raw},
		}
	}
	ref, found := d.extractor.Extract(data)
	return Outcome{
		Status:     StatusOK,
		HTTPStatus: resp.StatusCode,
		Data:       data,
		Raw:        raw,
		FileRef:    ref,
		RefFound:   found,
	}
}

// decodeResponse returns the JSON value of raw, the trimmed text when raw
// is not JSON, or nil for an empty body.
func decodeResponse(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		if _, err := dec.Token(); errors.Is(err, io.EOF) {
			return v
		}
	}
	return string(trimmed)
}

func invalid(strategy Strategy, err error) Outcome {
	return Outcome{Status: StatusInvalid, Strategy: strategy, Err: err}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}
