package jobs

import "sync"

// Spawner schedules job units. Go must return without waiting for fn.
type Spawner interface {
	Go(fn func())
	// Wait blocks until every scheduled unit has returned.
	Wait()
}

// NewSpawner returns a Pool bounded to maxConcurrent, or an Unbounded spawner
// when maxConcurrent is zero or negative.
func NewSpawner(maxConcurrent int) Spawner {
	if maxConcurrent > 0 {
		return NewPool(maxConcurrent)
	}
	return &Unbounded{}
}

// Unbounded starts one goroutine per unit.
type Unbounded struct {
	wg sync.WaitGroup
}

// Go starts fn on its own goroutine.
func (u *Unbounded) Go(fn func()) {
	u.wg.Go(fn)
}

// Wait blocks until all started units return.
func (u *Unbounded) Wait() {
	u.wg.Wait()
}

// Pool runs at most size units at once. Units beyond the limit wait for a
// free slot; their jobs stay PENDING meanwhile.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool with size slots.
func NewPool(size int) *Pool {
	return &Pool{slots: make(chan struct{}, max(size, 1))}
}

// Go queues fn for execution.
func (p *Pool) Go(fn func()) {
	p.wg.Go(func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		fn()
	})
}

// Wait blocks until every queued unit has run.
func (p *Pool) Wait() {
	p.wg.Wait()
}
