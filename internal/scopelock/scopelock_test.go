package scopelock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/scope"
)

func newLocker(t *testing.T) *Locker {
	t.Helper()
	l, err := New(t.TempDir())
	require.NoError(t, err)
	l.Poll = 5 * time.Millisecond
	return l
}

func sc(t *testing.T, date, whs string) scope.Scope {
	t.Helper()
	s, err := scope.Parse(date, whs)
	require.NoError(t, err)
	return s
}

func tryLock(t *testing.T, l *Locker, root string, s scope.Scope) (func() error, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	return l.Lock(ctx, root, s)
}

func TestLock_SameDateBlocksAcrossWarehouses(t *testing.T) {
	l := newLocker(t)
	unlock, err := tryLock(t, l, "OWTR", sc(t, "2025-06-01", "15"))
	require.NoError(t, err)

	_, err = tryLock(t, l, "OWTR", sc(t, "2025-06-01", "16"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, unlock())
	unlock, err = tryLock(t, l, "OWTR", sc(t, "2025-06-01", "16"))
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestLock_DisjointDatesRunTogether(t *testing.T) {
	l := newLocker(t)
	u1, err := tryLock(t, l, "OWTR", sc(t, "2025-06-01", "15"))
	require.NoError(t, err)
	u2, err := tryLock(t, l, "OWTR", sc(t, "2025-06-02", "15"))
	require.NoError(t, err)
	u3, err := tryLock(t, l, "ODLN", sc(t, "*", "*"))
	require.NoError(t, err, "other roots are independent")
	require.NoError(t, u1())
	require.NoError(t, u2())
	require.NoError(t, u3())
}

func TestLock_WildcardExcludesDatedRuns(t *testing.T) {
	l := newLocker(t)
	unlock, err := tryLock(t, l, "OINV", sc(t, "2025-06-01", ""))
	require.NoError(t, err)

	_, err = tryLock(t, l, "OINV", sc(t, "*", "*"))
	require.Error(t, err)

	require.NoError(t, unlock())
	unlock, err = tryLock(t, l, "OINV", sc(t, "", ""))
	require.NoError(t, err)

	_, err = tryLock(t, l, "OINV", sc(t, "2025-06-03", "01"))
	require.Error(t, err)
	require.NoError(t, unlock())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b-c_1", sanitize("a/b-c.1"))
}
