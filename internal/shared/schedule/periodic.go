package schedule

import (
	"sync"
	"time"
)

// Periodic calls fn every interval on its own goroutine until stopped.
// Start and Stop are idempotent and safe for concurrent use. A stopped
// Periodic can be started again.
type Periodic struct {
	interval time.Duration
	fn       func()

	mu   sync.Mutex
	stop chan struct{}
}

func NewPeriodic(interval time.Duration, fn func()) *Periodic {
	return &Periodic{interval: interval, fn: fn}
}

func (p *Periodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	go p.loop(p.stop)
}

// Stop cancels future calls. It does not wait for an in-flight call, so fn
// may take locks that the caller of Stop holds.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Periodic) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			p.fn()
		}
	}
}
