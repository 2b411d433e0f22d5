package obs

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"corrade/internal/config"
	"corrade/internal/pool"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "corrade.log")
	cfg.Logging.Format = "text"
	logger, closer, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", "k", "v")
	_ = closer.Close()

	b, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "msg=hello") || !strings.Contains(string(b), "service=corrade") {
		t.Fatalf("unexpected log output: %s", b)
	}
}

func TestMetricsCountAndServe(t *testing.T) {
	m := NewMetrics()
	m.Command("echo", "success")
	m.Command("echo", "success")
	m.PoolRejected(pool.Command)

	h := m.Instrument(m.Handler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `corrade_pool_rejected_total{pool="command"} 1`) {
		t.Fatal("pool rejection counter not exported")
	}
	if !strings.Contains(body, `corrade_commands_total{command="echo",outcome="success"} 2`) {
		t.Fatalf("command counter missing: %s", body)
	}
}
