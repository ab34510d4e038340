package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"knite_oms/internal/engine"
	"knite_oms/internal/event"
	"knite_oms/internal/execution"
	"knite_oms/internal/infra"
)

func newTestServer(t *testing.T) (*Server, *engine.Manager) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := infra.DefaultConfig()
	mgr := engine.NewManager(cfg, execution.NewMockGateway(), nil, nil, infra.NewMetrics(reg))
	return NewServer(cfg.Admin.Listen, mgr, reg), mgr
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status code %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "open_orders") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPanicDeliversEvent(t *testing.T) {
	s, mgr := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/panic", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status code %d, want 202", w.Code)
	}

	// The manager is not running; the event must be sitting in its inbox.
	select {
	case ev := <-mgr.Inbox():
		ea, ok := ev.(event.ExitAll)
		if !ok || !ea.Panic {
			t.Fatalf("unexpected event %#v", ev)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestImportEndpoint(t *testing.T) {
	s, mgr := newTestServer(t)

	path := filepath.Join(t.TempDir(), "orders.jsonl")
	content := `{"symbol":"GOLDM24DECFUT","quantity":1,"price":"76500"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/import",
		strings.NewReader(`{"path":"`+path+`"}`))
	req.Header.Set("Content-Type", "application/json")
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status code %d, body %s", w.Code, w.Body.String())
	}

	select {
	case ev := <-mgr.Inbox():
		sb, ok := ev.(event.SubmitBatch)
		if !ok || len(sb.Intents) != 1 {
			t.Fatalf("unexpected event %#v", ev)
		}
	default:
		t.Fatal("no batch delivered")
	}

	// A bad path is the caller's problem, reported synchronously.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/orders/import",
		strings.NewReader(`{"path":"/nonexistent/orders.jsonl"}`))
	req.Header.Set("Content-Type", "application/json")
	s.http.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status code %d, want 422", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status code %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "oms_dispatch_queue_depth") {
		t.Fatal("engine metrics missing from exposition")
	}
}
