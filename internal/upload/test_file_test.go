package upload

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "Scan.PDF")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o600))
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.WriteFile(notes, []byte("just some text"), 0o600))

	f, err := FileFromPath(pdf)
	require.NoError(t, err)
	assert.Equal(t, "Scan.PDF", f.Name)
	assert.Equal(t, ".pdf", f.Ext())
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.EqualValues(t, 8, f.Size)
	raw, err := io.ReadAll(f.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(raw))
	closeBody(f.Body)

	f, err = FileFromPath(notes)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.ContentType, "text/plain"))
	raw, err = io.ReadAll(f.Body)
	require.NoError(t, err)
	assert.Equal(t, "just some text", string(raw))
	closeBody(f.Body)

	_, err = FileFromPath(dir)
	assert.Error(t, err)
	_, err = FileFromPath(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileFromBytes(t *testing.T) {
	f := FileFromBytes("photo.png", "", []byte("\x89PNG\r\n\x1a\n"))
	assert.Equal(t, "image/png", f.ContentType)
	assert.EqualValues(t, 8, f.Size)

	f = FileFromBytes("blob", "", []byte("%PDF-1.4"))
	assert.Equal(t, "application/pdf", f.ContentType)

	f = FileFromBytes("x.bin", "application/x-custom", nil)
	assert.Equal(t, "application/x-custom", f.ContentType)
	assert.Zero(t, f.Size)
}

type label string

func (l label) String() string { return "label:" + string(l) }

func TestMetaString(t *testing.T) {
	var nilPtr *int
	var nilMap map[string]any
	n := 5
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{name: "nil", in: nil},
		{name: "nil pointer", in: nilPtr},
		{name: "nil map", in: nilMap},
		{name: "string verbatim", in: `a "quoted" value`, want: `a "quoted" value`, wantOK: true},
		{name: "empty string kept", in: "", want: "", wantOK: true},
		{name: "bool", in: true, want: "true", wantOK: true},
		{name: "int", in: 12, want: "12", wantOK: true},
		{name: "float", in: 0.25, want: "0.25", wantOK: true},
		{name: "uint8", in: uint8(7), want: "7", wantOK: true},
		{name: "pointer to int", in: &n, want: "5", wantOK: true},
		{name: "time", in: stamp, want: "2024-03-01T12:00:00Z", wantOK: true},
		{name: "stringer", in: label("x"), want: "label:x", wantOK: true},
		{name: "slice", in: []int{1, 2}, want: "[1,2]", wantOK: true},
		{name: "map", in: map[string]any{"k": "v"}, want: `{"k":"v"}`, wantOK: true},
		{name: "struct", in: struct {
			A int `json:"a"`
		}{A: 1}, want: `{"a":1}`, wantOK: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := metaString(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, _, err := metaString(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
