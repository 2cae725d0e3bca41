package handlers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeTease/custom404/pkg/catalog"
	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/metrics"
	"github.com/CodeTease/custom404/pkg/ratelimit"
	"github.com/CodeTease/custom404/pkg/session"
)

// SessionHeader carries the id of the session behind a rendered page.
const SessionHeader = "X-Custom404-Session"

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

type Handler struct {
	ConfigManager *config.Manager
	Factory       *session.Factory
	Sessions      *session.Store
	Limiter       ratelimit.Limiter
}

// Routes returns the service mux. Static files and metrics are mounted
// according to the configuration at call time.
func (h *Handler) Routes() http.Handler {
	cfg := h.ConfigManager.Get()
	mux := http.NewServeMux()

	mux.Handle("GET /healthcheck", h.instrument("/healthcheck", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})))
	if cfg.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	if cfg.StaticDir != "" {
		mux.Handle("GET /errors/", h.instrument("/errors/{file}", http.FileServer(http.Dir(cfg.StaticDir))))
	}
	mux.Handle("POST /_404/refresh/{session}", h.instrument("/_404/refresh/{session}", http.HandlerFunc(h.HandleRefresh)))
	mux.Handle("GET /_404/image/{session}", h.instrument("/_404/image/{session}", http.HandlerFunc(h.HandleImage)))
	mux.Handle("/", h.instrument("/{path}", http.HandlerFunc(h.HandleNotFound)))
	return mux
}

func (h *Handler) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("custom404/http").Start(ctx, r.Method+" "+route,
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.URLPathKey.String(r.URL.Path),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				attribute.String("client.ip", clientIP(r)),
			),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := strconv.Itoa(rec.statusCode)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, status, route).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, status, route).Observe(time.Since(start).Seconds())
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(rec.statusCode))
	})
}

// HandleNotFound renders a fresh 404 page for any unknown path.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := h.ConfigManager.Get()
	settings := h.ConfigManager.Options().Resolve()

	s, err := h.Factory.New(settings, hostname(r))
	if err != nil {
		slog.Error("Session creation failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := s.Build(ctx, cfg.ImageWait); err != nil {
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, catalog.ErrInvalidCatalog) {
			slog.Error("Image selection failed", "session", s.ID, "error", err)
		}
		slog.Debug("Rendering page without image", "session", s.ID, "error", err)
	}
	h.Sessions.Add(s)

	var page bytes.Buffer
	if err := s.Render(&page); err != nil {
		slog.Error("Page render failed", "session", s.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	metrics.PagesRenderedTotal.Inc()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(SessionHeader, s.ID)
	writeEncoded(w, r, http.StatusNotFound, page.Bytes())
}

// HandleRefresh swaps the session's image for a new draw.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cfg := h.ConfigManager.Get()
	if cfg.RateLimit > 0 && h.Limiter != nil {
		if !h.Limiter.Allow(clientIP(r)) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
	}

	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	_, src, err := s.RefreshImage(r.Context())
	switch {
	case errors.Is(err, session.ErrNoImage):
		http.Error(w, "No image attached yet", http.StatusConflict)
		return
	case err != nil:
		slog.Error("Refresh failed", "session", s.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", session.ImagePath(s.ID))
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"session": s.ID,
		"src":     src,
	})
}

// HandleImage serves the session's settled watermarked PNG.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	data, ok := s.SettledImage(r.Context())
	if !ok {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Image pending", http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("session")
	s, ok := h.Sessions.Get(id)
	if !ok {
		http.Error(w, (&SessionNotFoundError{ID: id}).Error(), http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func writeEncoded(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Add("Vary", "Accept-Encoding")

	acceptEncoding := r.Header.Get("Accept-Encoding")
	switch {
	case strings.Contains(acceptEncoding, "br"):
		w.Header().Set("Content-Encoding", "br")
		w.WriteHeader(status)
		bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
		bw.Write(body)
		bw.Close()
	case strings.Contains(acceptEncoding, "gzip"):
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		gw := gzip.NewWriter(w)
		gw.Write(body)
		gw.Close()
	default:
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		w.Write(body)
	}
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}
