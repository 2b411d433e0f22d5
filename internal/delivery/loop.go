package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"corrade/internal/wire"
)

// Options are the per-delivery knobs of a loop.
type Options struct {
	Timeout     time.Duration
	Throttle    time.Duration
	ContentType string
	Compression string
}

// Settings is read before every delivery so that values changed at
// runtime take effect on the next element.
type Settings func() Options

type Loop struct {
	Queue    *Queue
	Client   *http.Client
	Settings Settings
	Logger   *slog.Logger
	Recorder Recorder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs the drain loop until Stop is called or ctx ends.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	if l.Client == nil {
		l.Client = &http.Client{}
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Stop cancels the loop and waits up to grace for it to return. A POST in
// flight is cancelled through its context; if the loop still has not
// returned when grace expires Stop gives up and reports false.
func (l *Loop) Stop(grace time.Duration) bool {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if done == nil {
		return true
	}
	cancel()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		l.Logger.Warn("delivery loop did not stop within grace period", "queue", l.Queue.Name(), "grace", grace)
		return false
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if throttle := l.Settings().Throttle; throttle > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(throttle):
			}
		}
		e, ok := l.Queue.Next(ctx)
		if !ok {
			return
		}
		l.deliver(ctx, e)
	}
}

func (l *Loop) deliver(ctx context.Context, e Element) {
	defer func() {
		if r := recover(); r != nil {
			l.Logger.Error("delivery panicked", "queue", l.Queue.Name(), "id", e.ID.String(), "panic", fmt.Sprint(r))
		}
	}()
	if err := l.post(ctx, e, l.Settings()); err != nil {
		l.record("failure")
		l.Logger.Warn("delivery failed",
			"queue", l.Queue.Name(),
			"id", e.ID.String(),
			"url", e.URL,
			"error", err)
		return
	}
	l.record("success")
	l.Logger.Debug("delivered", "queue", l.Queue.Name(), "id", e.ID.String(), "url", e.URL, "waited", time.Since(e.Enqueued))
}

func (l *Loop) post(ctx context.Context, e Element, opts Options) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	body, encoding, err := wire.Compress([]byte(e.Payload), opts.Compression)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", opts.ContentType)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote returned %d", resp.StatusCode)
	}
	return nil
}

func (l *Loop) record(result string) {
	if l.Recorder != nil {
		l.Recorder.Delivery(l.Queue.Name(), result)
	}
}
