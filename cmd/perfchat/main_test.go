package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/cfdbot/internal/chat"
	"github.com/ent0n29/cfdbot/internal/completion"
	"github.com/ent0n29/cfdbot/internal/config"
	"github.com/ent0n29/cfdbot/internal/conversation"
	"github.com/ent0n29/cfdbot/internal/httpapi"
	"github.com/ent0n29/cfdbot/internal/observability"
	"github.com/ent0n29/cfdbot/internal/pressure"
)

func TestParseFlagsDefaultsAndTexts(t *testing.T) {
	cfg, err := parseFlags([]string{"-base-url", "http://localhost:9000/", "-texts", " a | |b "})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://localhost:9000" {
		t.Fatalf("baseURL = %q", cfg.baseURL)
	}
	if strings.Join(cfg.texts, ",") != "a,b" {
		t.Fatalf("texts = %q", cfg.texts)
	}
	if cfg.turnTimeout != 60*time.Second {
		t.Fatalf("turnTimeout = %s", cfg.turnTimeout)
	}

	if _, err := parseFlags([]string{"-turns", "0", "-image-runs", "0"}); err == nil {
		t.Fatalf("expected error when there is nothing to do")
	}
}

func TestWSURLFor(t *testing.T) {
	got, err := wsURLFor("https://cfd.example.com/api")
	if err != nil {
		t.Fatalf("wsURLFor() error = %v", err)
	}
	if got != "wss://cfd.example.com/api/v1/chat/ws" {
		t.Fatalf("wsURLFor() = %q", got)
	}
	if _, err := wsURLFor("ftp://cfd.example.com"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{5, 1, 4, 2, 3}
	if got := percentile(samples, 0.5); got != 3 {
		t.Fatalf("p50 = %d, want 3", got)
	}
	if got := percentile(samples, 1); got != 5 {
		t.Fatalf("max = %d, want 5", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty percentile = %d, want 0", got)
	}
}

func TestRunAgainstLocalServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWithRegistry("perfchat_test", reg, reg)
	relay := chat.NewRelay(conversation.NewTranscript("system"), completion.NewMockAdapter(), chat.Options{Metrics: metrics})
	analyzer, err := pressure.NewAnalyzer(pressure.DefaultConfig())
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	ts := httptest.NewServer(httpapi.New(config.Defaults(), relay, analyzer, metrics, nil).Router())
	defer ts.Close()

	var out bytes.Buffer
	cfg := options{
		baseURL:     ts.URL,
		turns:       3,
		imageRuns:   2,
		turnTimeout: 5 * time.Second,
		texts:       []string{"hello", "/help"},
	}
	if err := run(cfg, &out); err != nil {
		t.Fatalf("run() error = %v\n%s", err, out.String())
	}
	for _, want := range []string{"chat_first_delta", "n=3", "analyze_image", "n=2"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
	if got := len(relay.History()); got != 1+2*3 {
		t.Fatalf("history len = %d, want 7", got)
	}
}
