// Package bridge is a Session driver that talks to a grid gateway over a
// websocket. Requests are JSON frames {id, op, args}; the gateway answers
// with {id, result} or {id, error}, streams member batches as
// {stream, members} and pushes world events as {event, data}.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"corrade/internal/session"
)

type Options struct {
	URL          string
	Header       http.Header
	Timeout      time.Duration
	BackoffMax   time.Duration
	Logger       *slog.Logger
	WriteTimeout time.Duration
}

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type frame struct {
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Members []uuid.UUID     `json:"members,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Self    *session.Self   `json:"self,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    error
}

// Client is a Session backed by a gateway connection. It reconnects with
// exponential backoff until Close is called or the context passed to Dial
// ends.
type Client struct {
	opts   Options
	logger *slog.Logger
	dialer *gws.Dialer

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *gws.Conn
	self    session.Self
	pending map[string]chan reply
	streams map[string]session.MemberBatch

	handlersMu  sync.RWMutex
	handlers    map[int]func(session.Event)
	nextHandler int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the gateway and fetches the agent's own state.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:     opts,
		logger:   logger.With("component", "bridge"),
		dialer:   &gws.Dialer{HandshakeTimeout: opts.Timeout},
		pending:  map[string]chan reply{},
		streams:  map[string]session.MemberBatch{},
		handlers: map[int]func(session.Event){},
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.conn = conn
	go c.run(conn)

	var self session.Self
	if err := c.call(ctx, "self", nil, &self); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("fetch self: %w", err)
	}
	c.mu.Lock()
	c.self = self
	c.mu.Unlock()
	return c, nil
}

// Close stops the reconnect loop and fails every pending request.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-c.done
	return err
}

func (c *Client) dial(ctx context.Context) (*gws.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return conn, nil
}

func (c *Client) run(conn *gws.Conn) {
	defer close(c.done)
	backoff := 250 * time.Millisecond
	for {
		c.readLoop(conn)
		c.failPending(session.ErrClosed)
		if c.ctx.Err() != nil {
			return
		}
		for {
			c.logger.Warn("gateway connection lost, reconnecting", "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := c.dial(c.ctx)
			if err == nil {
				c.mu.Lock()
				c.conn = next
				c.mu.Unlock()
				conn = next
				backoff = 250 * time.Millisecond
				c.logger.Info("gateway reconnected")
				break
			}
			backoff *= 2
			if backoff > c.opts.BackoffMax {
				backoff = c.opts.BackoffMax
			}
		}
	}
}

func (c *Client) readLoop(conn *gws.Conn) {
	defer conn.Close()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug("gateway read failed", "error", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			c.logger.Warn("discarding malformed gateway frame", "error", err)
			continue
		}
		c.handle(f)
	}
}

func (c *Client) handle(f frame) {
	switch {
	case f.Self != nil:
		c.mu.Lock()
		c.self = *f.Self
		c.mu.Unlock()
	case f.Stream != "":
		c.mu.Lock()
		onBatch := c.streams[f.Stream]
		c.mu.Unlock()
		if onBatch != nil {
			onBatch(f.Members)
		}
	case f.Event != "":
		ev, ok := session.NewEvent(f.Event)
		if !ok {
			c.logger.Debug("unknown gateway event", "event", f.Event)
			return
		}
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, ev); err != nil {
				c.logger.Warn("malformed gateway event", "event", f.Event, "error", err)
				return
			}
		}
		c.dispatch(session.Deref(ev))
	case f.ID != "":
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		r := reply{result: f.Result}
		if f.Error != "" {
			r.err = gatewayError(f.Error)
		}
		ch <- r
	}
}

func (c *Client) dispatch(ev session.Event) {
	c.handlersMu.RLock()
	hs := make([]func(session.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.handlersMu.RUnlock()
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("event handler panicked", "event", ev.EventName(), "panic", fmt.Sprint(r))
				}
			}()
			h(ev)
		}()
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- reply{err: err}
		delete(c.pending, id)
	}
	for id := range c.streams {
		delete(c.streams, id)
	}
}

// call sends op and waits for its reply, bounded by ctx and the configured
// request timeout.
func (c *Client) call(ctx context.Context, op string, args any, out any) error {
	return c.callWithID(ctx, uuid.NewString(), op, args, out)
}

func (c *Client) callWithID(ctx context.Context, id, op string, args any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	ch := make(chan reply, 1)
	c.mu.Lock()
	conn := c.conn
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, request{ID: id, Op: op, Args: args}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", op, r.err)
		}
		if out != nil && len(r.result) > 0 {
			if err := json.Unmarshal(r.result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, session.ErrTimeout)
		}
		return ctx.Err()
	}
}

func (c *Client) write(conn *gws.Conn, v any) error {
	if conn == nil {
		return session.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteJSON(v)
}

func gatewayError(msg string) error {
	if msg == "not_found" {
		return session.ErrNotFound
	}
	return errors.New(msg)
}

var _ session.Session = (*Client)(nil)
