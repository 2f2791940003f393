// Package pool runs jobs on a fixed number of goroutines.
package pool

import "sync"

type Pool struct {
	workers int
	jobCh   chan func()
	wg      sync.WaitGroup
	once    sync.Once
}

func New(workerCount int, jobChanSize int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	return &Pool{
		workers: workerCount,
		jobCh:   make(chan func(), jobChanSize),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobCh {
				job()
			}
		}()
	}
}

// TryAdd queues f and reports false, without blocking, when the queue is
// full.
func (p *Pool) TryAdd(f func()) bool {
	select {
	case p.jobCh <- f:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued jobs to finish. TryAdd must
// not be called after Stop.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.jobCh) })
	p.wg.Wait()
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.jobCh)
}
