package delivery

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"corrade/internal/wire"
)

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
	drops   int
}

func (c *countingRecorder) Delivery(_, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[result]++
}

func (c *countingRecorder) QueueDropped(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixed(timeout, throttle time.Duration, contentType, compression string) Settings {
	return func() Options {
		return Options{Timeout: timeout, Throttle: throttle, ContentType: contentType, Compression: compression}
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	rec := &countingRecorder{}
	q := NewQueue(QueueCallback, 2, rec)
	if !q.TryEnqueue("http://a", "1") || !q.TryEnqueue("http://a", "2") {
		t.Fatal("enqueue under capacity failed")
	}
	if !q.Full() {
		t.Fatal("queue should report full")
	}
	if q.TryEnqueue("http://a", "3") {
		t.Fatal("enqueue over capacity should drop")
	}
	if rec.drops != 1 {
		t.Fatalf("expected one drop, got %d", rec.drops)
	}
	q.SetCapacity(3)
	if !q.TryEnqueue("http://a", "3") {
		t.Fatal("raised capacity should admit another element")
	}
}

func TestQueueIsFIFO(t *testing.T) {
	q := NewQueue(QueueNotification, 10, nil)
	for _, p := range []string{"a", "b", "c"} {
		q.TryEnqueue("http://x", p)
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		e, ok := q.Next(ctx)
		if !ok || e.Payload != want {
			t.Fatalf("got %q want %q", e.Payload, want)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, ok := q.Next(ctx); ok {
		t.Fatal("empty queue should block until ctx ends")
	}
}

func TestLoopPostsWithContentTypeAndCompression(t *testing.T) {
	type received struct {
		body, contentType string
	}
	got := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := wire.Decompress(r.Body, r.Header.Get("Content-Encoding"))
		if err != nil {
			t.Errorf("decompress: %v", err)
			return
		}
		b, _ := io.ReadAll(rc)
		got <- received{string(b), r.Header.Get("Content-Type")}
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	q := NewQueue(QueueNotification, 10, rec)
	l := &Loop{
		Queue:    q,
		Settings: fixed(time.Second, 0, "application/x-www-form-urlencoded", wire.CompressionGzip),
		Logger:   quietLogger(),
		Recorder: rec,
	}
	l.Start(context.Background())
	defer l.Stop(time.Second)

	q.TryEnqueue(srv.URL, "type=alert&message=hi")
	select {
	case r := <-got:
		if r.body != "type=alert&message=hi" {
			t.Fatalf("unexpected body %q", r.body)
		}
		if r.contentType != "application/x-www-form-urlencoded" {
			t.Fatalf("unexpected content type %q", r.contentType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("element not delivered")
	}
}

func TestLoopDoesNotRetryFailures(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	q := NewQueue(QueueCallback, 10, rec)
	l := &Loop{Queue: q, Settings: fixed(time.Second, 0, "text/plain", ""), Logger: quietLogger(), Recorder: rec}
	l.Start(context.Background())

	q.TryEnqueue(srv.URL, "x=1")
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		failures := rec.results["failure"]
		rec.mu.Unlock()
		if failures == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failure not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Stop(time.Second) {
		t.Fatal("loop did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected exactly one attempt, got %d", hits)
	}
}

func TestStopCancelsInflightPost(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	q := NewQueue(QueueCallback, 10, nil)
	l := &Loop{Queue: q, Settings: fixed(time.Minute, 0, "text/plain", ""), Logger: quietLogger()}
	l.Start(context.Background())
	q.TryEnqueue(srv.URL, "x=1")
	time.Sleep(50 * time.Millisecond)

	if !l.Stop(2 * time.Second) {
		t.Fatal("stop should cancel the in-flight POST")
	}
}
