package typeahead

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkit/internal/remote"
)

func TestDecodeRecordsShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantShape Shape
		wantIDs   []string
		wantCount *int
	}{
		{
			name:      "bare array",
			body:      `[{"id":1,"name":"Anna"},{"id":"b2","name":"Bob"}]`,
			wantShape: ShapeList,
			wantIDs:   []string{"1", "b2"},
		},
		{
			name:      "page with count",
			body:      `{"items":[{"id":7,"name":"Cell 7"}],"count":31}`,
			wantShape: ShapePage,
			wantIDs:   []string{"7"},
			wantCount: intPtr(31),
		},
		{
			name:      "page without count",
			body:      `{"items":[]}`,
			wantShape: ShapePage,
			wantIDs:   []string{},
		},
		{
			name:      "records without id are skipped",
			body:      `[{"name":"ghost"},"scalar",{"id":"","name":"blank"},{"id":3}]`,
			wantShape: ShapeList,
			wantIDs:   []string{"3"},
		},
		{name: "object without items", body: `{"data":[{"id":1}]}`, wantShape: ShapeInvalid},
		{name: "items not an array", body: `{"items":{"id":1}}`, wantShape: ShapeInvalid},
		{name: "scalar", body: `"hello"`, wantShape: ShapeInvalid},
		{name: "not json", body: `<html>`, wantShape: ShapeInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := DecodeRecords([]byte(tc.body), "id", "name")
			assert.Equal(t, tc.wantShape, res.Shape)
			if tc.wantShape == ShapeInvalid {
				assert.Empty(t, normalize(res))
				return
			}
			ids := make([]string, 0, len(res.Items))
			for _, o := range res.Items {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
			assert.Equal(t, tc.wantCount, res.Count)
		})
	}
}

func TestHTTPSourceRequestContract(t *testing.T) {
	var gotQuery, gotLimit, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		gotQuery = r.URL.Query().Get("term")
		gotLimit = r.URL.Query().Get("size")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"items":[{"prisoner_no":"A123","full_name":"Anna Smith"}],"count":1}`))
	}))
	defer srv.Close()

	fetch, err := NewHTTPSource(HTTPSourceConfig{
		URL:        srv.URL + "/api/prisoners",
		QueryParam: "term",
		LimitParam: "size",
		IDField:    "prisoner_no",
		LabelField: "full_name",
	})
	require.NoError(t, err)

	res, err := fetch(context.Background(), Request{Query: "ann smith", Limit: 15})
	require.NoError(t, err)
	assert.Equal(t, "ann smith", gotQuery)
	assert.Equal(t, "15", gotLimit)
	assert.Equal(t, "application/json", gotAccept)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "A123", res.Items[0].ID)
	assert.Equal(t, "Anna Smith", res.Items[0].Label)
	assert.Equal(t, "Anna Smith", res.Items[0].Payload["full_name"])
}

func TestHTTPSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "search backend down", http.StatusBadGateway)
	}))
	fetch, err := NewHTTPSource(HTTPSourceConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = fetch(context.Background(), Request{Query: "x"})
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Contains(t, string(se.Body), "search backend down")

	srv.Close()
	_, err = fetch(context.Background(), Request{Query: "x"})
	var te *remote.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, remote.KindTransport, remote.Classify(nil, err))
}

func TestHTTPSourceCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	fetch, err := NewHTTPSource(HTTPSourceConfig{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = fetch(ctx, Request{Query: "slow"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewHTTPSourceRejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPSource(HTTPSourceConfig{URL: "/api/search"})
	assert.Error(t, err)
}

func TestResolverOverHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`[{"id":1,"name":"` + q + ` one"},{"id":2,"name":"` + q + ` two"}]`))
	}))
	defer srv.Close()

	fetch, err := NewHTTPSource(HTTPSourceConfig{URL: srv.URL})
	require.NoError(t, err)

	results := make(chan []Option[Record], 8)
	r, err := New(Config[Record]{
		Fetch:          fetch,
		Debounce:       15 * time.Millisecond,
		MinQueryLength: 2,
		OnResults:      func(o []Option[Record]) { results <- o },
	})
	require.NoError(t, err)
	defer r.Close()

	for _, q := range []string{"j", "jo", "joh", "john"} {
		r.SetQuery(q)
	}
	select {
	case got := <-results:
		require.Len(t, got, 2)
		assert.Equal(t, "john one", got[0].Label)
		assert.Equal(t, "john one", r.Label("1"))
	case <-time.After(2 * time.Second):
		t.Fatal("no results")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func intPtr(v int) *int { return &v }
