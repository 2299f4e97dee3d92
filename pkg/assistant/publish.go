package assistant

import "sync"

// errorBuffer is the per-subscriber error channel capacity. Errors beyond it
// are dropped for that subscriber.
const errorBuffer = 8

// broadcaster fans snapshots and failures out to subscribers. Snapshot
// subscribers always hold the latest value; failures are fire-and-forget.
type broadcaster struct {
	mu     sync.Mutex
	snaps  map[chan Snapshot]struct{}
	errs   map[chan Failure]struct{}
	last   Snapshot
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		snaps: make(map[chan Snapshot]struct{}),
		errs:  make(map[chan Failure]struct{}),
	}
}

func (b *broadcaster) subscribeSnapshots() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- b.last
	b.snaps[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.snaps[ch]; ok {
			delete(b.snaps, ch)
			close(ch)
		}
	}
}

func (b *broadcaster) subscribeErrors() (<-chan Failure, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Failure, errorBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.errs[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.errs[ch]; ok {
			delete(b.errs, ch)
			close(ch)
		}
	}
}

// publish replaces whatever a slow subscriber has not read yet.
func (b *broadcaster) publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = s
	for ch := range b.snaps {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (b *broadcaster) emit(f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.errs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.snaps {
		close(ch)
	}
	for ch := range b.errs {
		close(ch)
	}
	b.snaps = nil
	b.errs = nil
}
