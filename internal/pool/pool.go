// Package pool is the load-shedding execution budget: named pools that run
// a task only while under their concurrency cap and drop it otherwise.
package pool

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type Kind string

const (
	Command        Kind = "command"
	Notification   Kind = "notification"
	InstantMessage Kind = "instant_message"
	RLV            Kind = "rlv"
)

// Kinds lists every pool in a stable order.
var Kinds = []Kind{Command, Notification, InstantMessage, RLV}

// Observer is told about tasks that were dropped or panicked.
type Observer interface {
	PoolRejected(kind Kind)
	PoolPanicked(kind Kind)
}

type Budget struct {
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	running map[Kind]int
	wg      sync.WaitGroup
}

func New(logger *slog.Logger, observer Observer) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	return &Budget{
		logger:   logger,
		observer: observer,
		running:  map[Kind]int{},
	}
}

// Spawn starts task in its own goroutine if fewer than max tasks of kind are
// running. Otherwise the task is dropped and Spawn returns false. Spawn never
// blocks.
func (b *Budget) Spawn(kind Kind, task func(), max int) bool {
	b.mu.Lock()
	if b.running[kind] >= max {
		b.mu.Unlock()
		if b.observer != nil {
			b.observer.PoolRejected(kind)
		}
		b.logger.Debug("pool budget exhausted, task dropped", "pool", kind, "max", max)
		return false
	}
	b.running[kind]++
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.release(kind)
		defer func() {
			if r := recover(); r != nil {
				if b.observer != nil {
					b.observer.PoolPanicked(kind)
				}
				b.logger.Error("pool task panicked",
					"pool", kind,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
			}
		}()
		task()
	}()
	return true
}

// Running reports the live task count for kind.
func (b *Budget) Running(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running[kind]
}

// Wait blocks until every spawned task has returned.
func (b *Budget) Wait() {
	b.wg.Wait()
}

func (b *Budget) release(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running[kind]--
}
