package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChatLog appends group chat lines to per-group files.
type ChatLog struct {
	mu  sync.Mutex
	now func() time.Time
}

func NewChatLog() *ChatLog {
	return &ChatLog{now: time.Now}
}

// Append writes one "[time] name : message" line to path.
func (c *ChatLog) Append(path, fromName, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir chat log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[%s] %s : %s\n", c.now().Format("2006-01-02 15:04:05"), fromName, message)
	return err
}
