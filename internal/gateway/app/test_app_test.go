package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkit/internal/gateway/config"
	"formkit/internal/typeahead"
	"formkit/internal/upload"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := NewWithConfig(&config.Config{
		Port:           ":0",
		Env:            "test",
		PublicBaseURL:  "http://gateway.test",
		UploadMaxBytes: 1 << 20,
	}, logr.Discard())
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return srv
}

func TestGatewayServesTypeahead(t *testing.T) {
	srv := newTestGateway(t)
	fetch, err := typeahead.NewHTTPSource(typeahead.HTTPSourceConfig{URL: srv.URL + "/api/search"})
	require.NoError(t, err)

	results := make(chan []typeahead.Option[typeahead.Record], 4)
	r, err := typeahead.New(typeahead.Config[typeahead.Record]{
		Fetch:          fetch,
		Debounce:       10 * time.Millisecond,
		MinQueryLength: 2,
		PageSize:       3,
		OnResults:      func(o []typeahead.Option[typeahead.Record]) { results <- o },
	})
	require.NoError(t, err)
	defer r.Close()

	for _, q := range []string{"j", "jo"} {
		r.SetQuery(q)
	}
	select {
	case got := <-results:
		require.Len(t, got, 3)
		assert.Equal(t, "Joanna Lee", got[0].Label)
		assert.Equal(t, "3", got[0].ID)
		assert.Equal(t, "Engineering", got[0].Payload["description"])
		assert.Equal(t, "Joanna Lee", r.Label("3"))
	case <-time.After(2 * time.Second):
		t.Fatal("no results")
	}
}

func TestGatewayAcceptsUploads(t *testing.T) {
	srv := newTestGateway(t)
	d := upload.New(upload.Config{})
	ep := upload.Endpoints{Binary: srv.URL + "/api/uploads/binary", JSON: srv.URL + "/api/uploads/json"}

	outs := d.SendAll(context.Background(), []upload.Task{
		{File: upload.FileFromBytes("call.ogg", "audio/ogg", []byte("OggS")), Options: upload.SendOptions{Endpoints: ep}},
		{File: upload.FileFromBytes("form.pdf", "application/pdf", []byte("%PDF")), Options: upload.SendOptions{Endpoints: ep}},
	}, 2)
	require.Len(t, outs, 2)
	assert.Equal(t, upload.StrategyMultipart, outs[0].Strategy)
	assert.Equal(t, upload.StrategyJSON, outs[1].Strategy)
	for _, out := range outs {
		require.Equal(t, upload.StatusOK, out.Status, "err: %v", out.Err)
		assert.True(t, out.RefFound)
		assert.NotEmpty(t, out.FileRef)
	}

	data := outs[1].Data.(map[string]any)
	resp, err := http.Get(srv.URL + "/api/files/" + data["path"].(string))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "%PDF", string(body))
	assert.Equal(t, "http://gateway.test/api/files/"+data["path"].(string), data["url"])
}

func TestGatewayOpsRoutes(t *testing.T) {
	srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/search?q=an")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `formkit_gateway_http_requests_total{code="200",method="get",route="search"} 1`)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/uploads/json", nil)
	req.Header.Set("Origin", "http://forms.test")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://forms.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGatewayLiveSearch(t *testing.T) {
	srv := newTestGateway(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/search/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "query", "seq": 4, "q": "carter"}))
	var out struct {
		Type  string `json:"type"`
		Seq   int    `json:"seq"`
		Count int    `json:"count"`
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "results", out.Type)
	assert.Equal(t, 4, out.Seq)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "John Carter", out.Items[0].Name)
}
