package workers

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsRun(t *testing.T) {
	wp := NewWorkerPool(4, 16)

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		require.True(t, wp.AddJob(func() { ran.Add(1) }))
	}
	wp.Wait()

	assert.Equal(t, int64(10), ran.Load())
	assert.Equal(t, int64(0), wp.Dropped())
}

func TestFullQueueShedsJobs(t *testing.T) {
	wp := NewWorkerPool(1, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, wp.AddJob(func() {
		close(started)
		<-block
	}))
	<-started

	// One slot in the queue, then shedding starts
	require.True(t, wp.AddJob(func() {}))
	assert.False(t, wp.AddJob(func() {}))
	assert.Equal(t, int64(1), wp.Dropped())

	close(block)
	wp.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	wp := NewWorkerPool(2, 4)

	var ran atomic.Int64
	wp.AddJob(func() { ran.Add(1) })

	wp.Stop()
	wp.Stop()

	assert.Equal(t, int64(1), ran.Load())
}
