package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/isoauditor/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		MetricsNamespace:         "test_app",
		AuthMode:                 "header",
		AuthUserHeader:           "X-User-ID",
		StoreBackend:             "memory",
		SessionInactivityTimeout: time.Minute,
		MemoryWindowSize:         20,
		MemoryContextMessages:    10,
		MemoryContextMaxChars:    200,
		ProgressScanLimit:        100,
		SessionsScanLimit:        100,
		PerfWindowSize:           32,
		LLMProvider:              "mock",
		LLMTimeout:               5 * time.Second,
		LLMTemperature:           0.1,
		LLMMaxTokens:             256,
	}
}

func TestBuildServesQueries(t *testing.T) {
	res, err := Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()
	if res.Store.Backend() != "memory" {
		t.Fatalf("Backend() = %q, want memory", res.Store.Backend())
	}
	if res.Knowledge.ControlCount() != 93 {
		t.Fatalf("ControlCount() = %d, want 93", res.Knowledge.ControlCount())
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/query", strings.NewReader(`{"query":"What is Annex A?"}`))
	req.Header.Set("X-User-ID", "u-1")
	httpRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/v1/query error = %v", err)
	}
	defer httpRes.Body.Close()
	if httpRes.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", httpRes.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(httpRes.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body["response"].(string), "What is Annex A?") {
		t.Fatalf("response = %v, want mock echo", body["response"])
	}
	if res.Tracker.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", res.Tracker.ActiveCount())
	}
}

func TestBuildRejectsBadWiring(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "cassandra"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil for unknown backend")
	}

	cfg = testConfig()
	cfg.AuthMode = "jwt"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil for jwt without secret")
	}

	cfg = testConfig()
	cfg.LLMProvider = "openai"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil for openai without key")
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "warn", "json").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	NewLogger(&buf, "debug", "json").Debug("shown", "k", "v")
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("json output = %q", buf.String())
	}
	buf.Reset()
	NewLogger(&buf, "info", "text").Info("plain", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("text output = %q", buf.String())
	}
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func TestCloseAllJoinsFailures(t *testing.T) {
	errStore := errors.New("store unreachable")
	errCache := errors.New("cache busy")
	closed := 0
	err := closeAll(
		namedCloser{"store", closeFunc(func() error { closed++; return errStore })},
		namedCloser{"tracker", closeFunc(func() error { closed++; return nil })},
		namedCloser{"cache", closeFunc(func() error { closed++; return errCache })},
	)
	if closed != 3 {
		t.Fatalf("closed = %d, want 3", closed)
	}
	if !errors.Is(err, errStore) || !errors.Is(err, errCache) {
		t.Fatalf("closeAll() error = %v, want both causes", err)
	}
	if !strings.Contains(err.Error(), "close store: store unreachable") {
		t.Fatalf("closeAll() error = %q, want resource name", err.Error())
	}
	if err := closeAll(namedCloser{"store", closeFunc(func() error { return nil })}); err != nil {
		t.Fatalf("closeAll() error = %v, want nil", err)
	}
}
