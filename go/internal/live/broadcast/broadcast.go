// Package broadcast carries encoded channel messages between the runtime
// instances of one session. Delivery is best-effort and unordered.
package broadcast

import (
	"context"
	"sync"
)

// Handler receives one raw message.
type Handler func(payload []byte)

// Channel is a publish/subscribe transport with one channel per session.
type Channel interface {
	Publish(ctx context.Context, sessionID string, payload []byte) error
	// Subscribe registers handler until cancel is called or ctx is done.
	Subscribe(ctx context.Context, sessionID string, handler Handler) (cancel func(), err error)
}

// releaseOnDone returns a cancel func that runs release once, either when it
// is called or when ctx ends, whichever comes first. Nothing waits on ctx
// after an explicit cancel.
func releaseOnDone(ctx context.Context, release func()) func() {
	var once sync.Once
	run := func() { once.Do(release) }
	stop := context.AfterFunc(ctx, run)
	return func() {
		stop()
		run()
	}
}
