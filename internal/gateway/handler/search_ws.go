package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"formkit/internal/gateway/repository/catalog"
)

// Live search keeps one socket per open picker. Each query frame carries the
// client's sequence number and the answer echoes it, so the client can drop
// answers that belong to an older query.

const (
	searchWSWriteWait = 10 * time.Second
	searchWSPongWait  = 60 * time.Second
	searchWSPingEvery = (searchWSPongWait * 9) / 10
)

var searchWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type searchWSInbound struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq,omitempty"`
	Q     string `json:"q,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchWSOutbound struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Items   []catalog.Entry `json:"items,omitempty"`
	Count   int             `json:"count"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HandleLive serves GET /api/search/ws.
func (h *SearchHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := searchWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(searchWSPongWait)); err != nil {
		h.log.Error(err, "live search set read deadline failed")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(searchWSPongWait))
	})

	writeCh := make(chan searchWSOutbound, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(searchWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(searchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(searchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// At most one search runs per socket; a newer query cancels the older one.
	var cancelSearch context.CancelFunc = func() {}
	defer func() { cancelSearch() }()

	for {
		var in searchWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushSearchWS(writeCh, searchWSOutbound{Type: "pong", Seq: in.Seq})
		case "query":
			limit := in.Limit
			if limit <= 0 {
				limit = DefaultSearchLimit
			}
			if limit > MaxSearchLimit {
				limit = MaxSearchLimit
			}
			cancelSearch()
			var searchCtx context.Context
			searchCtx, cancelSearch = context.WithTimeout(ctx, searchTimeout)
			go h.liveSearch(searchCtx, writeCh, in.Seq, strings.TrimSpace(in.Q), limit)
		case "":
			pushSearchWS(writeCh, searchWSOutbound{Type: "error", Seq: in.Seq, Code: "invalid_argument", Message: "type is required"})
		default:
			pushSearchWS(writeCh, searchWSOutbound{Type: "error", Seq: in.Seq, Code: "invalid_argument", Message: "unsupported type: " + in.Type})
		}
	}
}

func (h *SearchHandler) liveSearch(ctx context.Context, writeCh chan searchWSOutbound, seq uint64, query string, limit int) {
	entries, total, err := h.source.Search(ctx, query, limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.metrics.ObserveSearch("canceled")
			return
		}
		h.metrics.ObserveSearch("error")
		h.log.Error(err, "live catalog search failed", "queryLength", len(query), "limit", limit)
		pushSearchWS(writeCh, searchWSOutbound{Type: "error", Seq: seq, Code: "unavailable", Message: "catalog unavailable"})
		return
	}
	h.metrics.ObserveSearch("ok")
	pushSearchWS(writeCh, searchWSOutbound{Type: "results", Seq: seq, Items: entries, Count: total})
}

// pushSearchWS never blocks the reader; when the buffer is full the oldest
// frame is dropped.
func pushSearchWS(writeCh chan searchWSOutbound, out searchWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
