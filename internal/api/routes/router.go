package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zatekoja/recursiadx/internal/api/handlers"
	"github.com/zatekoja/recursiadx/internal/api/middleware"
	"github.com/zatekoja/recursiadx/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	authHandler   *handlers.AuthHandler
	sampleHandler *handlers.SampleHandler
	assetHandler  *handlers.AssetHandler
	reportHandler *handlers.ReportHandler
	mlHandler     *handlers.MLHandler
	sseHandler    *handlers.SSEHandler

	authenticator  middleware.Authenticator
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	authHandler *handlers.AuthHandler,
	sampleHandler *handlers.SampleHandler,
	assetHandler *handlers.AssetHandler,
	reportHandler *handlers.ReportHandler,
	mlHandler *handlers.MLHandler,
	sseHandler *handlers.SSEHandler,
	authenticator middleware.Authenticator,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		authHandler:    authHandler,
		sampleHandler:  sampleHandler,
		assetHandler:   assetHandler,
		reportHandler:  reportHandler,
		mlHandler:      mlHandler,
		sseHandler:     sseHandler,
		authenticator:  authenticator,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes registers every route and returns the wrapped handler.
// All /api routes require authentication except register, login and
// refresh-token.
func (r *Router) SetupRoutes() http.Handler {
	requireAuth := middleware.AuthMiddleware(r.authenticator)
	protected := func(pattern string, h http.HandlerFunc) {
		r.mux.Handle(pattern, requireAuth(h))
	}

	// Operational endpoints
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	r.mux.HandleFunc("POST /api/auth/register", r.authHandler.Register)
	r.mux.HandleFunc("POST /api/auth/login", r.authHandler.Login)
	r.mux.HandleFunc("POST /api/auth/refresh-token", r.authHandler.RefreshToken)
	protected("POST /api/auth/logout", r.authHandler.Logout)
	protected("GET /api/auth/me", r.authHandler.Me)
	protected("PUT /api/auth/profile", r.authHandler.UpdateProfile)
	protected("PUT /api/auth/change-password", r.authHandler.ChangePassword)
	protected("DELETE /api/auth/deactivate", r.authHandler.Deactivate)

	// Samples
	protected("POST /api/samples", r.sampleHandler.CreateSample)
	protected("GET /api/samples", r.sampleHandler.ListSamples)
	protected("GET /api/samples/search", r.sampleHandler.SearchSamples)
	protected("GET /api/samples/stats/overview", r.sampleHandler.GetStats)
	protected("POST /api/samples/upload-with-analysis", r.sampleHandler.UploadWithAnalysis)
	protected("GET /api/samples/{id}", r.sampleHandler.GetSample)
	protected("PUT /api/samples/{id}", r.sampleHandler.UpdateSample)
	protected("DELETE /api/samples/{id}", r.sampleHandler.DeleteSample)
	protected("PUT /api/samples/{id}/assign", r.sampleHandler.AssignSample)
	protected("PUT /api/samples/{id}/status", r.sampleHandler.UpdateStatus)
	protected("POST /api/samples/{id}/images", r.sampleHandler.AddImage)

	// Stored assets
	protected("GET /api/samples/image/{filename}", r.assetHandler.GetImage)
	protected("GET /api/samples/heatmap/{filename}", r.assetHandler.GetHeatmap)

	// Real-time updates
	protected("GET /api/stream/samples/{id}", r.sseHandler.StreamSampleUpdates)

	// Reports
	protected("POST /api/reports/generate/{sampleId}", r.reportHandler.GenerateReport)
	protected("GET /api/reports", r.reportHandler.ListReports)
	protected("GET /api/reports/{id}", r.reportHandler.GetReport)
	protected("PATCH /api/reports/{id}/status", r.reportHandler.UpdateReportStatus)
	protected("GET /api/reports/{id}/download", r.reportHandler.DownloadReport)

	// ML service
	protected("GET /api/ml/health", r.mlHandler.Health)

	// Apply middleware (in reverse order of execution)
	var handler http.Handler = r.mux

	// Logging middleware
	handler = middleware.LoggingMiddleware(handler)

	// Gzip for JSON responses
	handler = middleware.Compression(handler)

	// Tracing and request metrics
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS middleware (outermost, so preflights short-circuit)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
