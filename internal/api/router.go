package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/lightlabcreation/big-pos-backend/internal/handler"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/auth"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/observability"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter wires the public, authenticated and admin-only routes of h
// and exposes /metrics.
func SetupRouter(h *handler.Handler, redisClient redis.RedisClient, tokens *auth.JWTService) *mux.Router {
	observability.RegisterMetrics()

	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	h.RegisterPublicRoutes(r)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth.AuthMiddleware(redisClient, tokens))
	h.RegisterProtectedRoutes(protected)

	admin := protected.NewRoute().Subrouter()
	admin.Use(auth.RequireRole(models.RoleAdmin))
	h.RegisterAdminRoutes(admin)

	return r
}

// metricsMiddleware labels requests by route template so path ids do not
// blow up label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		observability.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(recorder.status)).Inc()
		observability.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
