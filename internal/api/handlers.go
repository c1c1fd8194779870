// Package api exposes HTTP handlers for the recommendation read service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/recommendation/internal/auth"
	"example.com/recommendation/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "api")}
}

// NewRouter wires endpoints behind authentication. Health and metrics stay open.
func NewRouter(h *Handler, authn auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/recommendations", func(r chi.Router) {
		r.Use(authn.Wrap)
		r.Use(auth.RequireScope(auth.ScopeRecommendationsRead, auth.ScopeRecommendationsAdmin))
		r.Get("/user/{userID}", h.userRecommendations)
		r.Get("/activity/{activityID}", h.activityRecommendation)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) userRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	claims, _ := auth.FromContext(r.Context())
	if !claims.CanRead(userID) {
		writeError(w, http.StatusForbidden, "forbidden", "cannot read recommendations of another user")
		return
	}

	recs, err := h.service.GetRecommendationsForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list recommendations failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to load recommendations")
		return
	}

	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toView(rec))
	}
	writeJSON(w, http.StatusOK, RecommendationListResponse{Items: items})
}

func (h *Handler) activityRecommendation(w http.ResponseWriter, r *http.Request) {
	activityID := chi.URLParam(r, "activityID")

	rec, err := h.service.GetActivityRecommendation(r.Context(), activityID)
	if err != nil {
		if errors.Is(err, domain.ErrRecommendationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no recommendation found for activity "+activityID)
			return
		}
		h.logger.Error("get recommendation failed", "activity_id", activityID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to load recommendation")
		return
	}

	claims, _ := auth.FromContext(r.Context())
	if !claims.CanRead(rec.UserID) {
		writeError(w, http.StatusForbidden, "forbidden", "cannot read recommendations of another user")
		return
	}
	writeJSON(w, http.StatusOK, toView(*rec))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
