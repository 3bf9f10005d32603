package stream

import (
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work run by the pool.
type Job func() error

// WorkerPool runs persistence jobs for the consumer on a fixed set of
// goroutines.
type WorkerPool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts size workers. A size below 1 sizes the pool from the
// CPU count, leaving a quarter of the cores to the API.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		totalCPU := runtime.NumCPU()
		systemReserve := max(1, totalCPU/4)
		size = max(1, totalCPU-systemReserve)
	}
	log.Debug().Int("workers", size).Msg("Paste worker pool initialized")

	p := &WorkerPool{
		workers:  size,
		jobQueue: make(chan Job, size*2),
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobQueue {
		if err := job(); err != nil {
			log.Error().Err(err).Msg("Paste worker job failed")
		}
	}
}

// Submit queues job, blocking while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.jobQueue <- job
	return nil
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *WorkerPool) Size() int {
	return p.workers
}
