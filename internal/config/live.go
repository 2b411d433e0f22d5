package config

import "sync"

// Live guards a Config that commands may change at runtime. One lock covers
// every field; reads copy a snapshot.
type Live struct {
	mu  sync.RWMutex
	cfg Config
}

func NewLive(cfg Config) *Live {
	return &Live{cfg: cfg}
}

func (l *Live) Get() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Update applies fn under the write lock. A non-nil error from fn leaves the
// configuration unchanged.
func (l *Live) Update(fn func(*Config) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.cfg
	if err := fn(&next); err != nil {
		return err
	}
	l.cfg = next
	return nil
}
