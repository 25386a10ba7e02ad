// Package scopelock serializes runs whose cleanups could touch the same
// destination rows.
//
// Locks are keyed on the document's root table, not the document: several
// document types share a root (OWTR) and warehouse aliases make warehouse
// keys unreliable. A dated run takes the root lock shared and the
// root+date lock exclusive; a wildcard run takes the root lock exclusive.
package scopelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"migrator/internal/scope"
)

// DefaultPoll is the retry interval while a lock is held elsewhere.
const DefaultPoll = 50 * time.Millisecond

// Locker hands out scope locks backed by files in Dir.
type Locker struct {
	Dir  string
	Poll time.Duration
}

// New returns a Locker rooted at dir, creating it if needed.
func New(dir string) (*Locker, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "migrator-locks")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scopelock: %w", err)
	}
	return &Locker{Dir: dir, Poll: DefaultPoll}, nil
}

// Lock blocks until the scope of root is free or ctx is done. The returned
// function releases the lock.
func (l *Locker) Lock(ctx context.Context, root string, sc scope.Scope) (func() error, error) {
	poll := l.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	rootPath := filepath.Join(l.Dir, sanitize(root)+".lock")
	if !sc.HasDate() {
		return lockFile(ctx, rootPath, true, poll)
	}

	unlockRoot, err := lockFile(ctx, rootPath, false, poll)
	if err != nil {
		return nil, err
	}
	datePath := filepath.Join(l.Dir, sanitize(root)+"-"+sc.DateString()+".lock")
	unlockDate, err := lockFile(ctx, datePath, true, poll)
	if err != nil {
		_ = unlockRoot()
		return nil, err
	}
	return func() error {
		return errors.Join(unlockDate(), unlockRoot())
	}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
