package workers

import (
	"sync"
	"sync/atomic"
)

// WorkerPool runs queued jobs on a fixed set of goroutines. The publish
// pipeline uses it so broker round trips never run on connection read
// loops; enqueueing is non-blocking and a full queue sheds the job.
type WorkerPool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	dropped atomic.Int64
	stop    sync.Once
}

// NewWorkerPool starts workerCount workers draining a queue of
// jobBufferSize pending jobs.
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	wp := &WorkerPool{
		jobs: make(chan func(), jobBufferSize),
	}
	for i := 0; i < workerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobs {
		job()
	}
}

// AddJob enqueues a job without blocking. Returns false when the queue
// is full; the job is dropped, not queued.
func (wp *WorkerPool) AddJob(job func()) bool {
	wp.wg.Add(1)
	select {
	case wp.jobs <- func() {
		defer wp.wg.Done()
		job()
	}:
		return true
	default:
		wp.wg.Done()
		wp.dropped.Add(1)
		return false
	}
}

// Wait blocks until every accepted job has finished.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop closes the queue and waits for in-flight jobs. Safe to call
// more than once; AddJob must not be called after Stop.
func (wp *WorkerPool) Stop() {
	wp.stop.Do(func() {
		close(wp.jobs)
		wp.wg.Wait()
	})
}

// Dropped reports how many jobs were shed because the queue was full.
func (wp *WorkerPool) Dropped() int64 {
	return wp.dropped.Load()
}
