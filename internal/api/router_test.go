package api_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"corrade/internal/api"
	"corrade/internal/config"
	"corrade/internal/service"
	"corrade/internal/session"
	"corrade/internal/wire"
)

func newRouter(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	groupID := uuid.New()
	cfg := config.Default()
	cfg.Groups = []config.Group{{
		Name:        "MyGroup",
		UUID:        groupID.String(),
		Password:    "secret",
		Workers:     2,
		Permissions: []string{"system"},
	}}
	if mutate != nil {
		mutate(&cfg)
	}
	mem := session.NewMemory(session.Self{FirstName: "Test", LastName: "Bot"})
	mem.AddGroup(groupID, "MyGroup", true)
	app, err := service.New(context.Background(), service.Options{
		Config:  cfg,
		Session: mem,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return api.NewRouter(app, nil)
}

func post(router http.Handler, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCommandEndpointRepliesWithWireBody(t *testing.T) {
	router := newRouter(t, nil)

	rr := post(router, strings.NewReader("group=MyGroup&password=secret&command=echo&message=hi+there"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", ct)
	}
	got := wire.Decode(rr.Body.String())
	if got["success"] != "True" || got["data"] != "hi+there" || got["command"] != "echo" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestDroppedAndIgnoredRequestsGetEmptyBody(t *testing.T) {
	router := newRouter(t, nil)

	rr := post(router, strings.NewReader("group=MyGroup&password=wrong&command=echo"), nil)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("bad password: expected empty 200, got %d %q", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("GET: expected empty 200, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestCompressionBothWays(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) { cfg.Server.Compression = "gzip" })

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("group=MyGroup&password=secret&command=version"))
	_ = zw.Close()

	rr := post(router, &buf, map[string]string{"Content-Encoding": "gzip"})
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip reply, headers %v", rr.Header())
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip reply: %v", err)
	}
	if got := wire.Decode(string(plain)); got["success"] != "True" || got["command"] != "version" {
		t.Fatalf("unexpected body %q", plain)
	}
}

func TestHealthMetricsAndRateLimit(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) {
		cfg.Server.RatePerMin = 1
		cfg.Server.RateBurst = 1
	})

	for _, path := range []string{"/healthz", "/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}

	msg := "group=MyGroup&password=secret&command=version"
	if rr := post(router, strings.NewReader(msg), nil); rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}
	if rr := post(router, strings.NewReader(msg), nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
}
