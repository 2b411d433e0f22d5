// Package sdk is a small client for the agent's HTTP command endpoint.
package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"corrade/internal/filter"
	"corrade/internal/wire"
)

// ErrDropped is returned when the agent answers with an empty body: the
// request was not authenticated, named an unknown group or hit the group's
// worker ceiling.
var ErrDropped = errors.New("request dropped by agent")

const maxReplyBytes = 4 << 20

type Config struct {
	// BaseURL is the command endpoint.
	// Empty → CORRADE_URL env var → http://localhost:8080/.
	BaseURL string
	Timeout time.Duration
	// Group and Password are added to every command that does not carry
	// its own.
	Group    string
	Password string
}

type Client struct {
	BaseURL  string
	Group    string
	Password string
	HTTP     *http.Client

	escape *filter.Pipeline
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// rfc1738 takes no parameters so construction cannot fail.
	escape, _ := filter.New(filter.Options{
		Input:  []string{filter.RFC1738},
		Output: []string{filter.RFC1738},
	})
	return &Client{
		BaseURL:  resolveURL(cfg.BaseURL),
		Group:    cfg.Group,
		Password: cfg.Password,
		HTTP:     &http.Client{Timeout: cfg.Timeout},
		escape:   escape,
	}
}

func resolveURL(override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CORRADE_URL")); v != "" {
		return v
	}
	return "http://localhost:8080/"
}

// Command sends one command and returns the decoded reply. Values are
// escaped with RFC1738 on the way out and unescaped on the way back, so
// fields holds plain text. A reply with success=False is returned together
// with an error carrying the agent's message.
func (c *Client) Command(ctx context.Context, fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	if _, ok := out["group"]; !ok && c.Group != "" {
		out["group"] = c.Group
	}
	if _, ok := out["password"]; !ok && c.Password != "" {
		out["password"] = c.Password
	}
	if out["command"] == "" {
		return nil, errors.New("command field is required")
	}

	body := wire.Encode(wire.Escape(out, c.escape))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrDropped
	}
	reply := wire.Unescape(wire.Decode(string(raw)), c.escape)
	if reply["success"] != "True" {
		return reply, fmt.Errorf("%s: %s", reply["command"], reply["error"])
	}
	return reply, nil
}

// ParseFields turns key=value arguments into a field map. Values may
// contain '='; only the first one separates the key.
func ParseFields(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", arg)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
