package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkit/internal/gateway/app"
	"formkit/internal/gateway/config"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := app.NewWithConfig(&config.Config{Port: ":0", PublicBaseURL: "http://gateway.test", UploadMaxBytes: 1 << 20}, logr.Discard())
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage:")

	stderr.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	assert.Equal(t, 0, run(context.Background(), []string{"help"}, &stdout, &stderr))
}

func TestRunSearch(t *testing.T) {
	srv := newGateway(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"search", "--url", srv.URL + "/api/search",
		"--min", "2", "--debounce", "10ms", "--keystroke", "1ms", "--settle", "40ms", "--limit", "2",
		"jo", "j", "zzz",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, `"jo": 2 option(s)`)
	assert.Contains(t, out, "Joanna Lee")
	assert.Contains(t, out, "John Carter")
	assert.NotContains(t, out, "Johnny Walker")
	assert.Contains(t, out, `"j": below minimum length 2`)
	assert.Contains(t, out, `"zzz": 0 option(s)`)
}

func TestRunSearchRequiresURL(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"search", "jo"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--url is required")
}

func TestRunUpload(t *testing.T) {
	srv := newGateway(t)
	dir := t.TempDir()
	audio := filepath.Join(dir, "call.wav")
	doc := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF....WAVEfmt "), 0o600))
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.7"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"upload",
		"--binary", srv.URL + "/api/uploads/binary",
		"--json", srv.URL + "/api/uploads/json",
		"--meta", "form=intake", "--meta", "note=a=b",
		"--progress",
		audio, doc,
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "REFERENCE")
	assert.Contains(t, lines[1], "call.wav")
	assert.Contains(t, lines[1], "multipart")
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[1], "201")
	assert.Contains(t, lines[2], "scan.pdf")
	assert.Contains(t, lines[2], "json")
	assert.Contains(t, stderr.String(), "call.wav: 16 B / 16 B")
}

func TestRunUploadReportsFailures(t *testing.T) {
	srv := newGateway(t)
	dir := t.TempDir()
	doc := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.7"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"upload", "--binary", srv.URL + "/api/uploads/binary", doc}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "invalid")
	assert.Contains(t, stderr.String(), "1 of 1 upload(s) failed")

	stderr.Reset()
	code = run(context.Background(), []string{"upload", "--json", srv.URL, filepath.Join(dir, "missing.pdf")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestParseMetaAndHeaders(t *testing.T) {
	meta, err := parseMeta([]string{"a=1", " b =x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y", "c": ""}, meta)
	_, err = parseMeta([]string{"novalue"})
	assert.Error(t, err)

	h, err := parseHeaders([]string{"Authorization: Bearer t", "X-Trace:1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", h.Get("Authorization"))
	assert.Equal(t, "1", h.Get("X-Trace"))
	_, err = parseHeaders([]string{"broken"})
	assert.Error(t, err)
}
