package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/player4sir/movieapp-sub004/internal/proxy"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler, proxyHandler *proxy.Handler) http.Handler {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Playback token minting (called by the content-detail endpoint)
	api.HandleFunc("/playback/sources", handler.PlaybackSources).Methods("POST")

	// Streaming proxy entry points. Preflight is handled without any
	// origin fetch.
	api.HandleFunc("/proxy/video", proxyHandler.HandleVideo).Methods("GET")
	api.HandleFunc("/proxy/video", proxyHandler.Preflight).Methods("OPTIONS")
	api.HandleFunc("/proxy/asset", proxyHandler.HandleAsset).Methods("GET")
	api.HandleFunc("/proxy/asset", proxyHandler.Preflight).Methods("OPTIONS")

	// Enable CORS
	r.Use(corsMiddleware)

	// Logging middleware
	r.Use(loggingMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		next.ServeHTTP(w, r)
	})
}
