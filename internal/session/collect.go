package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"corrade/internal/alarm"
)

// batchGap is the least quiet time after a batch before the roster is
// considered complete.
const batchGap = 25 * time.Millisecond

// CollectGroupMembers requests the roster of group and gathers the
// streamed batches until they stop arriving. The gap that counts as
// "stopped" adapts to the observed spacing between batches; timeout bounds
// the whole collection.
func CollectGroupMembers(ctx context.Context, s Session, group uuid.UUID, timeout time.Duration) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		seen    = map[uuid.UUID]struct{}{}
		members []uuid.UUID
		got     bool
	)
	a := alarm.New(alarm.Weighted).WithFloor(batchGap)
	defer a.Stop()

	err := s.RequestGroupMembers(ctx, group, func(batch []uuid.UUID) {
		mu.Lock()
		got = true
		for _, id := range batch {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, id)
		}
		mu.Unlock()
		a.Alarm(timeout)
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-a.Done():
	case <-ctx.Done():
		mu.Lock()
		ok := got
		mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("group %s members: %w", group, ErrTimeout)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]uuid.UUID(nil), members...), nil
}
