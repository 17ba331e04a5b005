package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/health"
	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/internal/session"
	"github.com/MrWong99/voicelaunch/internal/web"
	"github.com/MrWong99/voicelaunch/pkg/apps"
	appsmock "github.com/MrWong99/voicelaunch/pkg/apps/mock"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

// fakeController records listen requests and returns a scripted error.
type fakeController struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	started   []session.Config
	stopCalls int
	status    session.Status
}

func (c *fakeController) StartListening(_ context.Context, cfg session.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.startErr != nil {
		return c.startErr
	}
	c.started = append(c.started, cfg)
	c.status.State = session.StateListening
	return nil
}

func (c *fakeController) StopListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	c.status.State = session.StateIdle
	return c.stopErr
}

func (c *fakeController) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newServer(t *testing.T, cfg web.Config) *web.Server {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = testMetrics(t)
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	s, err := web.New(cfg)
	if err != nil {
		t.Fatalf("web.New: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestNew_RequiresController(t *testing.T) {
	t.Parallel()
	if _, err := web.New(web.Config{}); err == nil {
		t.Fatal("expected error without controller")
	}
}

func TestListen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantCfg    *session.Config
	}{
		{
			name:       "no body uses defaults",
			wantStatus: http.StatusAccepted,
			wantCfg:    &session.Config{LanguageModel: stt.WebSearch, MaxResults: 2},
		},
		{
			name:       "body overrides fields",
			body:       `{"language_model":"free_form"}`,
			wantStatus: http.StatusAccepted,
			wantCfg:    &session.Config{LanguageModel: stt.FreeForm, MaxResults: 2},
		},
		{
			name:       "invalid json",
			body:       `{"language_model":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"model":"free_form"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid configuration",
			body:       `{"max_results":-1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "busy",
			startErr:   session.ErrSessionBusy,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "recognizer unavailable",
			startErr:   fmt.Errorf("%w: %w", session.ErrRecognizerUnavailable, stt.ErrUnavailable),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "closed",
			startErr:   session.ErrClosed,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unexpected",
			startErr:   errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := &fakeController{startErr: tt.startErr}
			s := newServer(t, web.Config{
				Controller: ctrl,
				Listen:     session.Config{LanguageModel: stt.WebSearch, MaxResults: 2},
			})

			rec := do(t, s.Handler(), "POST", "/listen", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantCfg == nil {
				var body struct {
					Error string `json:"error"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error == "" {
					t.Errorf("expected JSON error body, got %q (err %v)", rec.Body, err)
				}
				return
			}
			if len(ctrl.started) != 1 || ctrl.started[0] != *tt.wantCfg {
				t.Errorf("StartListening configs = %+v, want [%+v]", ctrl.started, *tt.wantCfg)
			}
			var st struct {
				State string `json:"state"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if st.State != "listening" {
				t.Errorf("state = %q, want listening", st.State)
			}
		})
	}
}

func TestStopAndState(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{status: session.Status{
		State:     session.StateListening,
		AttemptID: "a1",
	}}
	s := newServer(t, web.Config{Controller: ctrl})

	rec := do(t, s.Handler(), "GET", "/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /state status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state":"listening"`) {
		t.Errorf("GET /state body = %s", rec.Body)
	}

	rec = do(t, s.Handler(), "POST", "/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /stop status = %d", rec.Code)
	}
	if ctrl.stopCalls != 1 {
		t.Errorf("StopListening calls = %d, want 1", ctrl.stopCalls)
	}
	if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("POST /stop body = %s", rec.Body)
	}

	if rec := do(t, s.Handler(), "GET", "/stop", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /stop status = %d, want 405", rec.Code)
	}
}

func TestStop_EngineErrorStillReportsIdle(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{
		stopErr: errors.New("session: stop recognizer: device busy"),
		status:  session.Status{State: session.StateListening},
	}
	s := newServer(t, web.Config{Controller: ctrl})

	rec := do(t, s.Handler(), "POST", "/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /stop status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("POST /stop body = %s", rec.Body)
	}
}

func TestApps(t *testing.T) {
	t.Parallel()
	reg := &appsmock.Registry{Apps: []apps.App{
		{DisplayName: "Calculator", Identifier: "calc"},
		{DisplayName: "KakaoTalk", Identifier: "com.kakao.talk"},
	}}
	s := newServer(t, web.Config{Controller: &fakeController{}, Registry: reg})

	rec := do(t, s.Handler(), "GET", "/apps", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []struct {
		DisplayName string `json:"display_name"`
		Identifier  string `json:"identifier"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].Identifier != "com.kakao.talk" {
		t.Errorf("apps = %+v", got)
	}

	reg.ListErr = errors.New("unreadable")
	if rec := do(t, s.Handler(), "GET", "/apps", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with failing registry = %d, want 503", rec.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "voicelaunch_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := newServer(t, web.Config{
		Controller: &fakeController{},
		Health:     health.New(health.Checker{Name: "session", Check: func(context.Context) error { return nil }}),
		Gatherer:   reg,
	})

	if rec := do(t, s.Handler(), "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", rec.Code)
	}
	if rec := do(t, s.Handler(), "GET", "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d", rec.Code)
	}
	rec := do(t, s.Handler(), "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "voicelaunch_test_total 1") {
		t.Errorf("/metrics body missing counter:\n%s", rec.Body)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("responses should carry X-Correlation-ID")
	}
}

func TestEvents_StreamsFeedback(t *testing.T) {
	t.Parallel()
	d := feedback.New(nil)
	t.Cleanup(func() { _ = d.Close() })

	s := newServer(t, web.Config{Controller: &fakeController{}, Events: d})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	// The subscription is registered after the upgrade; keep announcing
	// until the first event arrives.
	received := make(chan feedback.Event, 2)
	go func() {
		for {
			var ev feedback.Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				close(received)
				return
			}
			received <- ev
		}
	}()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		d.Announce(feedback.LaunchingApp("KakaoTalk"))
		select {
		case ev, ok := <-received:
			if !ok {
				t.Fatal("connection closed before an event arrived")
			}
			if ev.Kind != feedback.KindLaunchingApp || ev.AppName != "KakaoTalk" {
				t.Errorf("event = %+v, want launching KakaoTalk", ev)
			}
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}

func TestEvents_ClosedSourceEndsStream(t *testing.T) {
	t.Parallel()
	d := feedback.New(nil)
	_ = d.Close()

	s := newServer(t, web.Config{Controller: &fakeController{}, Events: d})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s := newServer(t, web.Config{Controller: &fakeController{}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
