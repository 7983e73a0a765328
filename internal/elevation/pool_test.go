package elevation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/elevation-api/internal/domain"
)

func newTestPool(replayed *int) *Pool {
	return NewPool(
		func() *Handler { return NewHandler(nil, nil, nil, nil) },
		func(*Handler) { *replayed++ },
	)
}

func TestPool_ReusesReleasedSlot(t *testing.T) {
	var replayed int
	p := newTestPool(&replayed)

	a, err := p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, a.Handler().ID(), b.Handler().ID())
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 2, p.Attached())
	assert.Equal(t, 2, replayed)

	first := a.Handler()
	a.Release()
	a.Release()
	assert.Equal(t, 1, p.Attached())

	c, err := p.Acquire()
	require.NoError(t, err)
	assert.Same(t, first, c.Handler())
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 2, replayed, "a reused handler is not replayed")
}

func TestPool_BroadcastReachesEverySlot(t *testing.T) {
	var replayed int
	p := newTestPool(&replayed)

	leased, err := p.Acquire()
	require.NoError(t, err)
	free, err := p.Acquire()
	require.NoError(t, err)
	free.Release()

	seen := map[string]bool{}
	var committed, commitOK bool
	ok := p.Broadcast(func(h *Handler) bool {
		seen[h.ID()] = true
		return h.ID() == leased.Handler().ID()
	}, func(anyOK bool) {
		committed, commitOK = true, anyOK
	})

	assert.True(t, ok)
	assert.True(t, committed)
	assert.True(t, commitOK)
	assert.Len(t, seen, 2)
}

func TestPool_BroadcastOnEmptyPool(t *testing.T) {
	var replayed int
	p := newTestPool(&replayed)

	calls := 0
	ok := p.Broadcast(func(*Handler) bool { calls++; return false }, nil)

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 0, p.Attached())
}

func TestPool_Close(t *testing.T) {
	var replayed int
	p := newTestPool(&replayed)
	_, err := p.Acquire()
	require.NoError(t, err)

	p.Close()
	p.Close()

	_, err = p.Acquire()
	assert.ErrorIs(t, err, domain.ErrServiceClosed)
	assert.False(t, p.Broadcast(func(*Handler) bool { return true }, nil))
}
