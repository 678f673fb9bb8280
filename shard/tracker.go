package shard

import (
	"sync"
)

// Tracker runs tasks on their own goroutines and lets you wait for all of them, once closed no new tasks start
type Tracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	running int
}

// Go runs fn on a new goroutine, returns false without running it if the tracker is closed
func (t *Tracker) Go(fn func()) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}

	t.running++
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.running--
			t.mu.Unlock()
			t.wg.Done()
		}()

		fn()
	}()

	return true
}

func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Tracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Wait blocks until all tasks are done, call Close first or new tasks may keep it waiting
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Len returns the number of running tasks
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
