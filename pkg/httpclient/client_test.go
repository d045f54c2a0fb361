package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.Timeout != cfg.Timeout {
		t.Errorf("expected timeout %v, got %v", cfg.Timeout, client.Timeout)
	}
	if _, ok := client.Transport.(*loggingTransport); !ok {
		t.Errorf("expected logging transport, got %T", client.Transport)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserAgent = ""

	client, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestNew_EndToEnd(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.CloseIdleConnections()

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("expected User-Agent %q, got %q", DefaultUserAgent, gotUA)
	}
}

func TestWrap(t *testing.T) {
	base := &http.Client{Timeout: 3 * time.Second}
	wrapped := Wrap(base, Config{})

	if wrapped == base {
		t.Fatal("Wrap must return a copy")
	}
	if wrapped.Timeout != base.Timeout {
		t.Errorf("timeout not preserved: %v", wrapped.Timeout)
	}
	lt, ok := wrapped.Transport.(*loggingTransport)
	if !ok {
		t.Fatalf("expected logging transport, got %T", wrapped.Transport)
	}
	if lt.userAgent != DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", lt.userAgent)
	}
	if base.Transport != nil {
		t.Error("base client must not be modified")
	}
}
