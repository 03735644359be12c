package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Index routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	api.HandleFunc("/build-index", handler.BuildIndex).Methods("POST")
	api.HandleFunc("/index-performance", handler.GetIndexPerformance).Methods("GET")
	api.HandleFunc("/index-composition", handler.GetIndexComposition).Methods("GET")
	api.HandleFunc("/composition-changes", handler.GetCompositionChanges).Methods("GET")
	api.HandleFunc("/export-data", handler.ExportData).Methods("POST")
	api.HandleFunc("/download/{filename}", handler.DownloadFile).Methods("GET")
	api.HandleFunc("/ingest", handler.Ingest).Methods("POST")

	return r
}
