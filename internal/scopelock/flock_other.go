//go:build !unix

package scopelock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Without flock, locks only serialize runs inside this process.
var (
	mu    sync.Mutex
	locks = map[string]*sync.RWMutex{}
)

func lockFile(ctx context.Context, path string, exclusive bool, poll time.Duration) (func() error, error) {
	mu.Lock()
	l, ok := locks[path]
	if !ok {
		l = &sync.RWMutex{}
		locks[path] = l
	}
	mu.Unlock()

	for {
		if exclusive && l.TryLock() {
			return func() error { l.Unlock(); return nil }, nil
		}
		if !exclusive && l.TryRLock() {
			return func() error { l.RUnlock(); return nil }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scopelock: waiting for %s: %w", path, ctx.Err())
		case <-time.After(poll):
		}
	}
}
