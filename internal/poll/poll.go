// Package poll runs a fetch function on a fixed period until cancelled.
// A Poller owns at most one live task: starting a new one stops the old one
// first and waits for it to exit.
package poll

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the refresh period used when none is given.
const DefaultInterval = 5 * time.Second

// Func is one poll iteration. It should honour ctx cancellation.
type Func func(ctx context.Context)

// Handle controls one running polling task.
type Handle struct {
	key      string
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Key returns the label the task was started with (e.g. "stats:greeter").
func (h *Handle) Key() string {
	return h.key
}

// Done is closed once the task's goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop cancels the task and waits for it to exit. Safe to call repeatedly
// and from multiple goroutines.
func (h *Handle) Stop() {
	h.stopOnce.Do(h.cancel)
	<-h.done
}

// Poller starts polling tasks and guarantees that no two of them are live
// at the same time.
type Poller struct {
	mu      sync.Mutex
	current *Handle

	// OnStart and OnStop, if set, are called as tasks begin and end.
	OnStart func(key string)
	OnStop  func(key string)
}

// Start stops any live task, then runs fn immediately and every interval
// (DefaultInterval if non-positive) until the returned handle is stopped or
// parent is cancelled.
func (p *Poller) Start(parent context.Context, key string, interval time.Duration, fn Func) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handle{key: key, cancel: cancel, done: make(chan struct{})}
	p.current = h

	if p.OnStart != nil {
		p.OnStart(key)
	}
	go p.run(ctx, h, interval, fn)
	return h
}

// Stop stops the live task, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}
}

// Current returns the key of the live task and whether one is running.
func (p *Poller) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return "", false
	}
	select {
	case <-p.current.done:
		return "", false
	default:
		return p.current.key, true
	}
}

func (p *Poller) run(ctx context.Context, h *Handle, interval time.Duration, fn Func) {
	defer close(h.done)
	defer h.cancel()
	if p.OnStop != nil {
		defer p.OnStop(h.key)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}
