package typeahead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"formkit/internal/remote"
)

const maxSearchResponseBytes = 4 << 20

// Record is the payload of options produced by an HTTP source: the raw
// decoded record as returned by the server.
type Record = map[string]any

// HTTPSourceConfig describes a GET search endpoint.
type HTTPSourceConfig struct {
	// URL is the search endpoint, e.g. https://host/api/search.
	URL    string
	Client *http.Client
	Header http.Header

	// QueryParam and LimitParam name the query-string parameters. Defaults: q, limit.
	QueryParam string
	LimitParam string
	// IDField and LabelField name record fields. Defaults: id, name.
	IDField    string
	LabelField string
}

// NewHTTPSource returns a FetchFunc issuing GET <URL>?q=<query>&limit=<n>.
func NewHTTPSource(cfg HTTPSourceConfig) (FetchFunc[Record], error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("typeahead: parse source url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("typeahead: source url %q must be absolute", cfg.URL)
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	queryParam := firstNonEmpty(cfg.QueryParam, "q")
	limitParam := firstNonEmpty(cfg.LimitParam, "limit")
	idField := firstNonEmpty(cfg.IDField, "id")
	labelField := firstNonEmpty(cfg.LabelField, "name")

	return func(ctx context.Context, req Request) (FetchResult[Record], error) {
		u := *base
		values := u.Query()
		values.Set(queryParam, req.Query)
		if req.Limit > 0 {
			values.Set(limitParam, strconv.Itoa(req.Limit))
		}
		u.RawQuery = values.Encode()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return Invalid[Record](), err
		}
		for k, vs := range cfg.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		httpReq.Header.Set("Accept", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return Invalid[Record](), ctx.Err()
			}
			return Invalid[Record](), &remote.TransportError{Op: "search", Err: err}
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseBytes))
		if err != nil {
			if ctx.Err() != nil {
				return Invalid[Record](), ctx.Err()
			}
			return Invalid[Record](), &remote.TransportError{Op: "search read", Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return Invalid[Record](), &remote.StatusError{Status: resp.StatusCode, Body: body}
		}
		return DecodeRecords(body, idField, labelField), nil
	}, nil
}

// DecodeRecords classifies a JSON search response. A top-level array is a
// list, an object with an "items" array is a page, anything else is invalid.
// Records without a usable id are skipped.
func DecodeRecords(raw []byte, idField, labelField string) FetchResult[Record] {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return Invalid[Record]()
	}
	switch v := top.(type) {
	case []any:
		return List(recordsToOptions(v, idField, labelField))
	case map[string]any:
		items, ok := v["items"].([]any)
		if !ok {
			return Invalid[Record]()
		}
		count := -1
		if n, ok := v["count"].(json.Number); ok {
			if c, err := n.Int64(); err == nil {
				count = int(c)
			}
		}
		return Page(recordsToOptions(items, idField, labelField), count)
	default:
		return Invalid[Record]()
	}
}

func recordsToOptions(items []any, idField, labelField string) []Option[Record] {
	out := make([]Option[Record], 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := scalarString(rec[idField])
		if !ok || id == "" {
			continue
		}
		label, _ := scalarString(rec[labelField])
		out = append(out, Option[Record]{ID: id, Label: label, Payload: rec})
	}
	return out
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
