package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"formkit/internal/gateway/metrics"
	"formkit/internal/gateway/repository/catalog"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	searchTimeout      = 5 * time.Second
)

type SearchHandler struct {
	source  catalog.Source
	metrics *metrics.Metrics
	log     logr.Logger
}

func NewSearchHandler(source catalog.Source, m *metrics.Metrics, log logr.Logger) *SearchHandler {
	return &SearchHandler{source: source, metrics: m, log: log.WithName("search")}
}

type searchResponse struct {
	Items []catalog.Entry `json:"items"`
	Count int             `json:"count"`
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.metrics.ObserveSearch("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()
	entries, total, err := h.source.Search(ctx, query, limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.metrics.ObserveSearch("canceled")
			return
		}
		h.metrics.ObserveSearch("error")
		h.log.Error(err, "catalog search failed", "queryLength", len(query), "limit", limit)
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	h.metrics.ObserveSearch("ok")
	h.log.V(1).Info("catalog search", "queryLength", len(query), "limit", limit, "returned", len(entries), "total", total)
	writeJSON(w, http.StatusOK, searchResponse{Items: entries, Count: total})
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSearchLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > MaxSearchLimit {
		n = MaxSearchLimit
	}
	return n, nil
}
