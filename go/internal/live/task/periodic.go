// Package task runs the small fixed-interval loops a live session needs:
// lock heartbeats, playback polling and follower resyncs.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Periodic calls a function on every tick until stopped.
type Periodic struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	fn       func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs fn immediately and then every interval until ctx is done or Stop
// is called. Ticks never overlap: a slow fn delays the next one.
func Start(ctx context.Context, clock clockwork.Clock, interval time.Duration, name string, fn func(ctx context.Context)) *Periodic {
	ctx, cancel := context.WithCancel(ctx)
	p := &Periodic{
		name:     name,
		interval: interval,
		clock:    clock,
		fn:       fn,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.run(ctx)
	log.Debug().Str("task", name).Dur("interval", interval).Msg("periodic task started")
	return p
}

func (p *Periodic) run(ctx context.Context) {
	defer close(p.done)
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			p.fn(ctx)
		}
	}
}

// Stop cancels the loop and waits for the running tick to return.
// It is safe to call more than once.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		<-p.done
		return
	}
	cancel()
	<-p.done
	log.Debug().Str("task", p.name).Msg("periodic task stopped")
}

// Done is closed once the loop has exited.
func (p *Periodic) Done() <-chan struct{} { return p.done }
