package beebotte

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/testlib"
)

func TestTrackerSweep(t *testing.T) {
	tr := newTracker(zap.NewNop())
	hs := []*testlib.Handle{testlib.NewHandle(1), testlib.NewHandle(2), testlib.NewHandle(3)}
	for _, h := range hs {
		tr.add(h)
	}
	assert.Equal(t, 0, tr.sweep())
	assert.Equal(t, 3, tr.len())

	hs[0].Complete()
	hs[2].Complete()
	assert.Equal(t, 2, tr.sweep())
	assert.Equal(t, 1, tr.len())
	assert.True(t, tr.has(2))
	assert.False(t, tr.has(1))
	assert.False(t, tr.has(3))
}

func TestTrackerDrain(t *testing.T) {
	tr := newTracker(zap.NewNop())
	h1 := testlib.NewHandle(1)
	h2 := testlib.NewHandle(2)
	tr.add(h1)
	tr.add(h2)
	h1.Complete()

	drained := make(chan struct{})
	go func() {
		tr.drain()
		close(drained)
	}()
	select {
	case <-drained:
		t.Fatal("drain returned before every publish completed")
	case <-time.After(20 * time.Millisecond):
	}

	h2.Complete()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain did not return")
	}
	assert.Equal(t, 0, tr.len())
}

func TestTrackerPop(t *testing.T) {
	tr := newTracker(zap.NewNop())
	_, ok := tr.pop()
	assert.False(t, ok)

	tr.add(testlib.NewHandle(7))
	h, ok := tr.pop()
	require.True(t, ok)
	assert.Equal(t, uint64(7), h.ID())
	assert.Equal(t, 0, tr.len())
}
