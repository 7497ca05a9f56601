package jobs

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var running, peak atomic.Int32
	release := make(chan struct{})

	for range 6 {
		pool.Go(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	pool.Wait()

	if got := peak.Load(); got != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", got)
	}
}

func TestNewSpawnerSelectsImplementation(t *testing.T) {
	if _, ok := NewSpawner(0).(*Unbounded); !ok {
		t.Fatal("zero limit should be unbounded")
	}
	if _, ok := NewSpawner(3).(*Pool); !ok {
		t.Fatal("positive limit should use a pool")
	}
}

func TestUnboundedGoReturnsImmediately(t *testing.T) {
	var s Unbounded
	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Go(func() { <-block })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go blocked on the unit")
	}
	close(block)
	s.Wait()
}
