package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/progress"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// HTTPIntake accepts receipt uploads over HTTP
type HTTPIntake struct {
	analyzer       ports.ReceiptAnalyzer
	progress       ports.ProgressRepository
	reports        ports.FraudReportRepository
	gatherer       prometheus.Gatherer
	logger         *zap.Logger
	listenAddr     string
	maxUploadBytes int64
	server         *http.Server
}

// NewHTTPIntake creates a new HTTP intake
func NewHTTPIntake(
	analyzer ports.ReceiptAnalyzer,
	progressRepo ports.ProgressRepository,
	reports ports.FraudReportRepository,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	listenAddr string,
	maxUploadBytes int64,
) *HTTPIntake {
	return &HTTPIntake{
		analyzer:       analyzer,
		progress:       progressRepo,
		reports:        reports,
		gatherer:       gatherer,
		logger:         logger,
		listenAddr:     listenAddr,
		maxUploadBytes: maxUploadBytes,
	}
}

// Router builds the HTTP routes
func (h *HTTPIntake) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/receipts", h.handleAnalyze)
		r.Get("/receipts/{id}/progress", h.handleProgress)
		r.Post("/fraud-reports", h.handleFraudReport)
	})
	return r
}

// Start starts the HTTP server
func (h *HTTPIntake) Start() error {
	h.server = &http.Server{
		Addr:              h.listenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.logger.Info("HTTP intake starting", zap.String("address", h.listenAddr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down
func (h *HTTPIntake) Stop() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// handleAnalyze handles POST /v1/receipts with a multipart "image" field
func (h *HTTPIntake) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	report, err := h.analyzer.AnalyzeImage(r.Context(), core.ImageInput{
		ReceiptID: r.FormValue("receipt_id"),
		Path:      header.Filename,
		Data:      data,
		MimeType:  header.Header.Get("Content-Type"),
	})
	if err != nil {
		h.logger.Error("Failed to analyze receipt",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("filename", header.Filename),
			zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleProgress handles GET /v1/receipts/{id}/progress
func (h *HTTPIntake) handleProgress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		writeError(w, http.StatusNotImplemented, progress.ErrNoHistory.Error())
		return
	}

	id := chi.URLParam(r, "id")
	events, err := h.progress.History(r.Context(), id)
	switch {
	case errors.Is(err, progress.ErrNoHistory):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to load progress", zap.String("receipt_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	case len(events) == 0:
		writeError(w, http.StatusNotFound, "no progress recorded for receipt")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_id": id,
		"latest":     events[len(events)-1],
		"events":     events,
	})
}

type fraudReportRequest struct {
	Account  string `json:"account"`
	Reason   string `json:"reason"`
	Verified bool   `json:"verified"`
}

// handleFraudReport handles POST /v1/fraud-reports
func (h *HTTPIntake) handleFraudReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotImplemented, "fraud reports are not configured")
		return
	}

	var req fraudReportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report := &core.FraudReport{Account: req.Account, Reason: req.Reason, Verified: req.Verified}
	if err := h.reports.Add(r.Context(), report); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *HTTPIntake) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
