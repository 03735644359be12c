// Package api exposes the index service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/trogers1052/stock-index-service/internal/database"
	"github.com/trogers1052/stock-index-service/internal/export"
	"github.com/trogers1052/stock-index-service/internal/index"
	"github.com/trogers1052/stock-index-service/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IndexBuilder rebuilds the index for a date range
type IndexBuilder interface {
	BuildIndex(ctx context.Context, startDate, endDate time.Time, topN int) (*models.IndexBuildResult, error)
}

// IndexReader answers read queries over built index data
type IndexReader interface {
	GetIndexComposition(ctx context.Context, date time.Time) (*models.IndexCompositionResult, error)
	GetIndexPerformance(ctx context.Context, startDate, endDate time.Time) (*models.IndexPerformanceResult, error)
	GetCompositionChanges(ctx context.Context, startDate, endDate time.Time) (*models.CompositionChangesResult, error)
}

// Ingestor runs an ingestion sweep
type Ingestor interface {
	Ingest(ctx context.Context, symbols []string, startDate, endDate time.Time) (*models.IngestionSummary, error)
}

// Exporter writes index data workbooks
type Exporter interface {
	Export(ctx context.Context, opts export.Options) (*models.ExportResult, error)
}

// HandlerDeps collects the services the handlers delegate to
type HandlerDeps struct {
	Builder        IndexBuilder
	Reader         IndexReader
	Ingestor       Ingestor
	Exporter       Exporter
	ExportDir      string
	DefaultSymbols []string
	DefaultTopN    int
	Logger         *slog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	builder        IndexBuilder
	reader         IndexReader
	ingestor       Ingestor
	exporter       Exporter
	exportDir      string
	defaultSymbols []string
	defaultTopN    int
	logger         *slog.Logger
}

// NewHandler creates a new Handler
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.DefaultTopN <= 0 {
		deps.DefaultTopN = 100
	}
	return &Handler{
		builder:        deps.Builder,
		reader:         deps.Reader,
		ingestor:       deps.Ingestor,
		exporter:       deps.Exporter,
		exportDir:      deps.ExportDir,
		defaultSymbols: deps.DefaultSymbols,
		defaultTopN:    deps.DefaultTopN,
		logger:         deps.Logger,
	}
}

type buildIndexRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TopN      int    `json:"top_n"`
}

type exportRequest struct {
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	IncludePerformance  *bool  `json:"include_performance"`
	IncludeCompositions *bool  `json:"include_compositions"`
	IncludeChanges      *bool  `json:"include_changes"`
}

// BuildIndex handles POST /api/v1/build-index. end_date defaults to
// start_date, top_n to the configured default.
func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	var req buildIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	endDate := startDate
	if req.EndDate != "" {
		endDate, err = parseDate(req.EndDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
	}
	if endDate.Before(startDate) {
		respondError(w, http.StatusBadRequest, "start_date is after end_date")
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = h.defaultTopN
	}

	result, err := h.builder.BuildIndex(r.Context(), startDate, endDate, topN)
	if err != nil {
		if errors.Is(err, index.ErrNoTradingData) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("index build failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetIndexPerformance handles GET /api/v1/index-performance
func (h *Handler) GetIndexPerformance(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, ok := rangeParams(w, r)
	if !ok {
		return
	}

	result, err := h.reader.GetIndexPerformance(r.Context(), startDate, endDate)
	if err != nil {
		h.respondReadError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetIndexComposition handles GET /api/v1/index-composition
func (h *Handler) GetIndexComposition(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	result, err := h.reader.GetIndexComposition(r.Context(), date)
	if err != nil {
		h.respondReadError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetCompositionChanges handles GET /api/v1/composition-changes
func (h *Handler) GetCompositionChanges(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, ok := rangeParams(w, r)
	if !ok {
		return
	}

	result, err := h.reader.GetCompositionChanges(r.Context(), startDate, endDate)
	if err != nil {
		h.respondReadError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ExportData handles POST /api/v1/export-data. The include flags default
// to true when omitted.
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return
	}
	if endDate.Before(startDate) {
		respondError(w, http.StatusBadRequest, "start_date is after end_date")
		return
	}

	result, err := h.exporter.Export(r.Context(), export.Options{
		StartDate:           startDate,
		EndDate:             endDate,
		IncludePerformance:  boolOrTrue(req.IncludePerformance),
		IncludeCompositions: boolOrTrue(req.IncludeCompositions),
		IncludeChanges:      boolOrTrue(req.IncludeChanges),
	})
	if err != nil {
		h.logger.Error("export failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// DownloadFile handles GET /api/v1/download/{filename}. Only files inside
// the export directory are served.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if filename == "" || filename != filepath.Base(filename) {
		respondError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path := filepath.Join(h.exportDir, filename)
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

// Ingest handles POST /api/v1/ingest, running the sweep synchronously.
// The body is the same payload the Kafka request topic carries; symbols
// defaults to the configured universe.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return
	}
	if endDate.Before(startDate) {
		respondError(w, http.StatusBadRequest, "start_date is after end_date")
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = h.defaultSymbols
	}
	if len(symbols) == 0 {
		respondError(w, http.StatusBadRequest, "no symbols provided and none configured")
		return
	}

	summary, err := h.ingestor.Ingest(r.Context(), symbols, startDate, endDate)
	if err != nil {
		h.logger.Error("ingestion failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// respondReadError maps missing read-side data to 404
func (h *Handler) respondReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("read query failed", "error", err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

// rangeParams parses the required start_date/end_date query parameters,
// answering the request itself when they are invalid.
func rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	startDate, err := parseDate(r.URL.Query().Get("start_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	endDate, err := parseDate(r.URL.Query().Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	if endDate.Before(startDate) {
		respondError(w, http.StatusBadRequest, "start_date is after end_date")
		return time.Time{}, time.Time{}, false
	}
	return startDate, endDate, true
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(models.DateFormat, value)
}

func boolOrTrue(v *bool) bool {
	return v == nil || *v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
