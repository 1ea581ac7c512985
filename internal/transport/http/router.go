package http

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/metrics"
)

// RouterConfig holds everything the router needs.
type RouterConfig struct {
	Service        *app.AssessmentService
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter wires the REST API, the websocket endpoint, health and metrics.
func NewRouter(c RouterConfig) http.Handler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := NewAPIHandler(c.Service, logger)
	ws := NewWSHandler(c.Service, logger, c.AllowedOrigins)

	r := mux.NewRouter()
	if c.Metrics != nil {
		r.Use(c.Metrics.Middleware(routeTemplate))
		r.Handle("/metrics", c.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api").Subrouter()
	v1.HandleFunc("/questionnaire", api.Questionnaire).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", api.CreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", api.GetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", api.DeleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/start", api.Start).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/pre-assessment", api.SubmitPreAssessment).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/answers", api.RecordAnswer).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/back", api.GoBack).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/jump", api.Jump).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/restart", api.Restart).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/summary", api.Summary).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/recommendations", api.Recommendations).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/plan", api.GeneratePlan).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/plan/messages", api.RefinePlan).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/report.csv", api.ReportCSV).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/certificate", api.Certificate).Methods(http.MethodGet)

	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.ExposedHeaders([]string{"Content-Disposition"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(cors(r))
}

// routeTemplate keeps metric labels bounded to registered paths.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
