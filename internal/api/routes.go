package api

import (
	"net/http"

	"github.com/wgomg/tably/internal/utils"
	"github.com/wgomg/tably/internal/utils/httputils"
)

func RegisterRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /{$}", handler.HandleRoot)
	mux.HandleFunc("GET /ping", handler.HandlePing)
	mux.HandleFunc("GET /health", handler.HandleHealth)
	mux.HandleFunc("GET /status", handler.HandleStatus)
	mux.HandleFunc("POST /analyze_tabs", handler.HandleAnalyzeTabs)
}

// NewRouter wires the routes behind request-id, CORS and access-log
// middleware.
func NewRouter(logger *utils.Logger, handler *Handler) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, handler)

	var h http.Handler = mux
	h = httputils.WithAccessLog(logger, h)
	h = httputils.WithCORS(handler.cfg.App.CORSOrigin, h)
	h = httputils.WithRequestID(h)
	return h
}
