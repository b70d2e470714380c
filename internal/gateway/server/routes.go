package server

import (
	"net/http"

	"formkit/internal/gateway/handler"
	"formkit/internal/gateway/metrics"
	"formkit/internal/gateway/middleware"
)

func NewMux(
	searchHandler *handler.SearchHandler,
	uploadHandler *handler.UploadHandler,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	// API
	mux.Handle("/api/search", m.Instrument("search", searchHandler))
	mux.HandleFunc("/api/search/ws", searchHandler.HandleLive)
	mux.Handle("/api/uploads/binary", m.Instrument("upload_binary", http.HandlerFunc(uploadHandler.HandleBinary)))
	mux.Handle("/api/uploads/json", m.Instrument("upload_json", http.HandlerFunc(uploadHandler.HandleJSON)))
	mux.Handle("/api/files/", m.Instrument("files", http.HandlerFunc(uploadHandler.HandleFile)))

	// Ops
	mux.HandleFunc("/healthz", handler.HandleHealth)
	mux.Handle("/metrics", m.Handler())

	return middleware.CORS(mux)
}
