package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldEmit_RepeatedKeyEmitsOnce(t *testing.T) {
	t.Parallel()
	tr := New()
	emitted := 0
	for i := 0; i < 5; i++ {
		if tr.ShouldEmit("OWTR", []string{"'10'"}) {
			emitted++
		}
	}
	assert.Equal(t, 1, emitted)
	assert.Equal(t, 4, tr.Suppressed("OWTR"))
	assert.Equal(t, 1, tr.Distinct("OWTR"))
}

func TestShouldEmit_FanOutAlwaysEmits(t *testing.T) {
	t.Parallel()
	tr := New()
	for i := 0; i < 3; i++ {
		assert.True(t, tr.ShouldEmit("IBT1", nil))
	}
	assert.Equal(t, 0, tr.Suppressed("IBT1"))
}

func TestShouldEmit_KeysAreScopedPerEntity(t *testing.T) {
	t.Parallel()
	tr := New()
	assert.True(t, tr.ShouldEmit("OITL", []string{"'7'"}))
	assert.True(t, tr.ShouldEmit("OWTR", []string{"'7'"}))
	assert.False(t, tr.ShouldEmit("OITL", []string{"'7'"}))
}

func TestShouldEmit_CompositeKeyPartsDoNotCollide(t *testing.T) {
	t.Parallel()
	tr := New()
	assert.True(t, tr.ShouldEmit("WTR1", []string{"'1'", "'23'"}))
	assert.True(t, tr.ShouldEmit("WTR1", []string{"'12'", "'3'"}))
	assert.False(t, tr.ShouldEmit("WTR1", []string{"'1'", "'23'"}))
}

func TestShouldEmit_SeparatorInsideText(t *testing.T) {
	t.Parallel()
	tr := New()
	assert.True(t, tr.ShouldEmit("OBTN", []string{"'A\x1f'", "'B'"}))
	assert.True(t, tr.ShouldEmit("OBTN", []string{"'A'", "'\x1fB'"}))
	assert.Equal(t, 2, tr.Distinct("OBTN"))
}

func TestNew_RunsDoNotShareState(t *testing.T) {
	t.Parallel()
	a, b := New(), New()
	assert.True(t, a.ShouldEmit("OITM", []string{"'A1'"}))
	assert.True(t, b.ShouldEmit("OITM", []string{"'A1'"}))
}
