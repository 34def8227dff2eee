package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/config"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/service"
)

// Engine bundles the services both transports expose.
type Engine struct {
	Bookings     *service.BookingService
	Holds        *service.HoldService
	Availability *service.AvailabilityService
}

// HTTPServer exposes the engine as a JSON API.
type HTTPServer struct {
	cfg    *config.APIConfig
	engine *Engine
	mux    *http.ServeMux
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, engine *Engine, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		engine: engine,
		mux:    http.NewServeMux(),
		auth:   NewHTTPAuth(cfg),
		log:    *logging.Component(logger, "http"),
	}

	srv.mux.HandleFunc("GET /api/v1/slots", srv.handleSlots)
	srv.mux.HandleFunc("GET /api/v1/slots/next-available", srv.handleNextAvailable)
	srv.mux.HandleFunc("GET /api/v1/calendar", srv.handleCalendar)
	srv.mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	srv.mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	srv.mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	srv.mux.HandleFunc("PATCH /api/v1/bookings/{id}", srv.handleUpdateBooking)
	srv.mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancelBooking)
	srv.mux.HandleFunc("POST /api/v1/bookings/{id}/rebook", srv.handleRebook)
	srv.mux.HandleFunc("GET /api/v1/bookings/{id}/logs", srv.handleBookingLogs)
	srv.mux.HandleFunc("POST /api/v1/holds", srv.handleCreateHold)
	srv.mux.HandleFunc("GET /api/v1/holds", srv.handleListHolds)
	srv.mux.HandleFunc("DELETE /api/v1/holds/{id}", srv.handleDeleteHold)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(srv.mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, "unauthorized", err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = errors.New("permission denied")

func (a *HTTPAuth) headers() (apiKeyHeader, extraHeader string) {
	apiKeyHeader = strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader = strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	return apiKeyHeader, extraHeader
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader, extraHeader := a.headers()
	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	if !hasPermission(client, requiredPermissionHTTP(r)) {
		return errPermissionDenied
	}
	return nil
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/slots"), strings.HasPrefix(path, "/api/v1/calendar"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/bookings"):
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/holds"):
		return permWriteHolds
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	if !a.limiter.allow(a.clientKey(r)) {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader, _ := a.headers()
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		_, pattern := s.mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(pattern)
		event := s.log.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// actorFromRequest reads the caller identity. A missing id is answered with 401.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get(actorIDHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor headers")
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Role: models.ParseRole(strings.TrimSpace(r.Header.Get(actorRoleHeader)))}, true
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, code, kindName(err), publicMessage(err))
}

func decodeBody(r *http.Request, out any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, kind, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "kind": kind})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
