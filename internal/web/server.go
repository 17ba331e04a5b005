// Package web serves the launcher's HTTP control surface: a speak button
// (POST /listen), a stop button (POST /stop), the controller state, the
// application catalogue and a websocket stream of feedback events, next to
// the health and metrics endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/health"
	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/internal/session"
	"github.com/MrWong99/voicelaunch/pkg/apps"
)

const (
	// maxBodyBytes caps POST /listen request bodies.
	maxBodyBytes = 4 << 10

	// writeTimeout bounds a single websocket frame write.
	writeTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown in [Server.Run].
	shutdownTimeout = 5 * time.Second
)

// Controller is the subset of [session.Controller] the server drives.
type Controller interface {
	StartListening(ctx context.Context, cfg session.Config) error
	StopListening() error
	Status() session.Status
}

// EventSource publishes feedback events. [feedback.Dispatcher] implements it.
type EventSource interface {
	Subscribe() (<-chan feedback.Event, func())
}

// Config holds the dependencies of a [Server].
type Config struct {
	// Addr is the TCP listen address. Required by [Server.Run].
	Addr string

	// Controller receives listen and stop requests. Required.
	Controller Controller

	// Listen is the attempt configuration used when POST /listen carries no
	// body. Fields present in a JSON body override it.
	Listen session.Config

	// Events feeds GET /events. Nil disables the route.
	Events EventSource

	// Registry feeds GET /apps. Nil disables the route.
	Registry apps.Registry

	// Health serves /healthz and /readyz. Nil disables them.
	Health *health.Handler

	// Gatherer feeds /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer

	// Metrics records HTTP request durations. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP control surface.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("web: controller is required")
	}
	if cfg.Listen == (session.Config{}) {
		cfg.Listen = session.DefaultConfig
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /listen", s.handleListen)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /state", s.handleState)
	if cfg.Registry != nil {
		mux.HandleFunc("GET /apps", s.handleApps)
	}
	if cfg.Events != nil {
		mux.HandleFunc("GET /events", s.handleEvents)
	}
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s, nil
}

// Handler returns the instrumented route handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %q: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web: control surface listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// errorBody is the JSON body of failed requests.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Listen
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}

	err := s.cfg.Controller.StartListening(r.Context(), cfg)
	if err != nil {
		status := listenErrorStatus(err)
		observe.Logger(r.Context()).Info("web: listen rejected", "status", status, "err", err)
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, s.cfg.Controller.Status())
}

// listenErrorStatus maps StartListening errors to HTTP status codes.
func listenErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRecognizerUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleStop reports the controller status after stopping. The controller is
// idle even when the engine fails to stop, so that failure is only logged.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Controller.StopListening(); err != nil {
		observe.Logger(r.Context()).Warn("web: stop recognizer", "err", err)
	}
	writeJSON(w, http.StatusOK, s.cfg.Controller.Status())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Controller.Status())
}

// appView is the JSON form of [apps.App].
type appView struct {
	DisplayName string `json:"display_name"`
	Identifier  string `json:"identifier"`
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Registry.ListInstalledApps(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	out := make([]appView, 0, len(list))
	for _, a := range list {
		out = append(out, appView{DisplayName: a.DisplayName, Identifier: a.Identifier})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents streams feedback events as JSON text frames until the client
// disconnects or the event source closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.cfg.Events.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead cancels ctx once they go away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(r.Context())
	log.Debug("web: event subscriber connected")

	for {
		select {
		case <-ctx.Done():
			log.Debug("web: event subscriber disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				log.Debug("web: event write failed", "err", err)
				return
			}
		}
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: encode response", "err", err)
	}
}
