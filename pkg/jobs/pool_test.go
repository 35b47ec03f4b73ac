package jobs_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substratehq/corpus/pkg/jobs"
)

func TestPoolRunsTasks(t *testing.T) {
	p := jobs.NewPool(2, 8)

	var done int32
	for i := 0; i < 8; i++ {
		err := p.Submit(func() {
			atomic.AddInt32(&done, 1)
		})
		require.NoError(t, err)
	}

	p.Close()
	assert.Equal(t, int32(8), atomic.LoadInt32(&done))
}

func TestPoolBackPressure(t *testing.T) {
	p := jobs.NewPool(1, 1)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the queue.
	require.NoError(t, p.Submit(func() { <-block }))

	// The worker may not have picked up the first task yet; keep feeding
	// until the queue itself is full.
	var err error
	for i := 0; i < 3; i++ {
		err = p.Submit(func() { <-block })
		if err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.ErrorIs(t, err, jobs.ErrQueueFull)
}
