// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks, like decoding image files, on a bounded number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of tasks running in parallel.
type Pool struct {
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
	wg         sync.WaitGroup
}

// New returns a new Pool with the given parallelism. If maxParallelism <= 0, runtime.NumCPU() is used.
func New(maxParallelism int) *Pool {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// MaxParallelism is the maximum number of tasks running at the same time.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// WaitToStart blocks until a worker is available, and then runs task in a separate goroutine.
// Use Wait to wait for all started tasks to finish.
func (p *Pool) WaitToStart(task func()) {
	p.mu.Lock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// Wait until all started tasks are finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Map applies fn to every item in parallel, using the pool, and returns the results in the same order
// as the items.
//
// If any call fails, the error of the lowest index item is returned. Items not yet started when an error
// is observed are skipped.
func Map[T, R any](p *Pool, items []T, fn func(item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	var (
		failedMu sync.Mutex
		failed   bool
	)
	for ii, item := range items {
		failedMu.Lock()
		stop := failed
		failedMu.Unlock()
		if stop {
			break
		}
		p.WaitToStart(func() {
			result, err := fn(item)
			if err != nil {
				errs[ii] = err
				failedMu.Lock()
				failed = true
				failedMu.Unlock()
				return
			}
			results[ii] = result
		})
	}
	p.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
