package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/extract"
	"github.com/wgomg/tably/internal/processor"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
	"github.com/wgomg/tably/internal/utils/httputils"
)

const (
	maxRequestBytes    = 16 << 20
	healthCheckTimeout = 5 * time.Second
)

var Version = "dev"

type Handler struct {
	logger   *utils.Logger
	analyzer *processor.Analyzer
	cfg      *config.Config
}

func NewHandler(logger *utils.Logger, analyzer *processor.Analyzer, cfg *config.Config) *Handler {
	return &Handler{
		logger:   logger,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	httputils.JSONResponse(w, http.StatusOK, map[string]string{
		"message": "Tab Assistant backend is running",
	})
}

func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	httputils.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Tab analysis service is running\n")
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := utils.RequestID(ctx)

	embedder := h.analyzer.Embedder()
	status := StatusResponse{
		Status:  "ok",
		Version: Version,
		Embedder: semantic.Status{
			Backend:   embedder.Name(),
			Model:     embedder.Model(),
			Dimension: embedder.Dimension(),
			Healthy:   true,
		},
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := embedder.HealthCheck(checkCtx); err != nil {
		h.logger.Error(&reqID, "Embedder health check failed: %v", err)
		status.Status = "degraded"
		status.Embedder.Healthy = false
		status.Embedder.Error = err.Error()
	}

	if cached, ok := embedder.(*semantic.CachedEmbedder); ok {
		status.MemoryCache = cached.MemoryStats()

		if st, err := cached.StoreStats(ctx); err != nil {
			h.logger.Error(&reqID, "Failed to read embedding cache stats: %v", err)
		} else if st != nil {
			status.DiskCache = &DiskCacheResponse{Path: st.Path, Entries: st.Entries}
		}
	}

	if err := httputils.JSONResponse(w, http.StatusOK, status); err != nil {
		h.logger.Error(&reqID, "Error sending response: %v", err)
	}
}

func (h *Handler) HandleAnalyzeTabs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := utils.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	if _, err := httputils.LogRequestBody(r, h.logger, reqID); err != nil {
		h.logger.Error(&reqID, "Failed to read request body: %v", err)
		httputils.HandleError(w, &httputils.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Failed to read request body",
		})
		return
	}

	var payload AnalyzeRequest
	if err := httputils.DecodeJSON(r, &payload); err != nil {
		h.logger.Error(&reqID, "JSON decode error: %v", err)
		httputils.HandleError(w, err)
		return
	}

	tabs, err := h.toTabRecords(reqID, payload)
	if err != nil {
		h.logger.Error(&reqID, "Validation error: %v", err)
		httputils.HandleError(w, err)
		return
	}

	h.logger.Info(&reqID, "Received %d tabs for analysis", len(tabs))

	if timeout := h.cfg.App.HttpTimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	result, err := h.analyzer.Analyze(ctx, tabs)
	if err != nil {
		h.logger.Error(&reqID, "Analysis failed: %v", err)
		if errors.Is(err, semantic.ErrEmbeddingUnavailable) {
			httputils.HandleError(w, &httputils.HTTPError{
				Code:    http.StatusServiceUnavailable,
				Message: "embedding unavailable",
			})
			return
		}
		httputils.HandleError(w, err)
		return
	}

	if err := httputils.JSONResponse(w, http.StatusOK, result); err != nil {
		h.logger.Error(&reqID, "Error sending response: %v", err)
	}
}

func (h *Handler) toTabRecords(reqID string, payload AnalyzeRequest) ([]processor.TabRecord, error) {
	if payload.Tabs == nil {
		return nil, unprocessable("tabs: field required")
	}
	return ResolveTabs(h.logger, reqID, payload.Tabs)
}

// ResolveTabs validates tab inputs and resolves html bodies to text. An
// explicit text always wins over html. A failed extraction leaves the text
// empty rather than failing the batch.
func ResolveTabs(logger *utils.Logger, reqID string, inputs []TabInput) ([]processor.TabRecord, error) {
	tabs := make([]processor.TabRecord, len(inputs))
	for i, in := range inputs {
		if in.Title == nil {
			return nil, unprocessable(fmt.Sprintf("tabs[%d].title: field required", i))
		}
		if in.URL == nil {
			return nil, unprocessable(fmt.Sprintf("tabs[%d].url: field required", i))
		}

		tab := processor.TabRecord{Title: *in.Title, URL: *in.URL}
		if in.Text != nil {
			tab.Text = *in.Text
		}

		if tab.Text == "" && in.HTML != nil && *in.HTML != "" {
			text, err := extract.Text(tab.URL, *in.HTML)
			if err != nil {
				logger.Error(&reqID, "Failed to extract text for tab %d: %v", i, err)
			}
			tab.Text = text
		}

		tabs[i] = tab
	}
	return tabs, nil
}

func unprocessable(message string) error {
	return &httputils.HTTPError{Code: http.StatusUnprocessableEntity, Message: message}
}
