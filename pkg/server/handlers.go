package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/browse"
	"github.com/nicktill/dirview/pkg/httpx"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/metrics"
	"github.com/nicktill/dirview/pkg/presenter"
	"github.com/nicktill/dirview/pkg/server/monitor"
	"github.com/nicktill/dirview/pkg/storage"
)

// Version is reported by /v1/health.
const Version = "0.1.0"

var startTime = time.Now()

// QueueStatus reports the presenter's job queue.
type QueueStatus struct {
	Mode    string `json:"mode"`
	Pending int    `json:"pending"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Uptime  string                `json:"uptime"`
	Root    string                `json:"root"`
	Queue   QueueStatus           `json:"queue"`
	Compute monitor.ComputeStatus `json:"compute"`
	Store   *storage.Stats        `json:"store,omitempty"`
}

// Deps are the components SetupRoutes wires into the router.
type Deps struct {
	Handler   *browse.Handler
	Hub       *browse.Hub
	Presenter *presenter.Presenter
	Store     storage.Store
	Monitor   *monitor.ComputeMonitor
}

// handleHealth returns service health status.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overallStatus := "healthy"
		statusCode := http.StatusOK

		if !deps.Monitor.IsHealthy() {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:  overallStatus,
			Version: Version,
			Uptime:  time.Since(startTime).String(),
			Root:    deps.Handler.Root(),
			Queue: QueueStatus{
				Mode:    deps.Presenter.Mode(),
				Pending: deps.Presenter.Pending(),
			},
			Compute: deps.Monitor.Status(),
		}

		stats, err := deps.Store.Stats(r.Context())
		if err != nil {
			logging.WithContext(r.Context()).Warn("store stats unavailable", zap.Error(err))
		} else {
			response.Store = stats
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, deps Deps, port string) {
	router.Use(logging.Middleware)
	router.Use(corsMiddleware(port))

	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/entries", deps.Handler.HandleList).Methods("GET")
	api.HandleFunc("/entries/size", deps.Handler.HandleTrigger).Methods("POST", "OPTIONS")
	api.HandleFunc("/entries/release", deps.Handler.HandleRelease).Methods("POST", "OPTIONS")
	api.HandleFunc("/health", handleHealth(deps)).Methods("GET")

	// WebSocket for cell change notifications
	api.HandleFunc("/ws", deps.Handler.HandleWebSocket(deps.Hub)).Methods("GET")

	router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowedOrigins := []string{
				"http://localhost:" + port,
				"http://127.0.0.1:" + port,
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
