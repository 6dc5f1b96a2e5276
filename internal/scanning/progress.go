package scanning

import "sync"

const progressOutBuffer = 64

// ProgressReporter streams one scan's events to a consumer without ever
// blocking the scan loop. Producers append to an unbounded in-memory queue;
// a pump goroutine feeds the consumer channel. A slow consumer therefore
// accumulates a backlog rather than stalling probes - that trade-off is
// deliberate. Events are delivered in publish order.
//
// The pump starts on the first Events call. A scan nobody subscribes to
// (scheduler submissions, API scans with no stream attached) therefore
// costs its queue and nothing else: no goroutine, no blocked send.
type ProgressReporter struct {
	mu      sync.Mutex
	queue   []ProgressEvent
	closed  bool
	started bool

	wake chan struct{}
	out  chan ProgressEvent
}

// NewProgressReporter creates a reporter. Delivery is deferred until a
// consumer attaches.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		wake: make(chan struct{}, 1),
		out:  make(chan ProgressEvent, progressOutBuffer),
	}
}

// Publish enqueues an event. It never blocks. Events published after Close
// are dropped.
func (r *ProgressReporter) Publish(event ProgressEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, event)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Events returns the consumer channel, starting the delivery pump on the
// first call. The channel is closed after the reporter is closed and every
// queued event has been delivered; attaching after Close still yields the
// full backlog.
func (r *ProgressReporter) Events() <-chan ProgressEvent {
	r.mu.Lock()
	if !r.started {
		r.started = true
		go r.pump()
	}
	r.mu.Unlock()
	return r.out
}

// Close stops the reporter. Already-queued events are still delivered.
func (r *ProgressReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into the consumer channel.
func (r *ProgressReporter) pump() {
	for {
		r.mu.Lock()
		for len(r.queue) == 0 {
			closed := r.closed
			r.mu.Unlock()
			if closed {
				close(r.out)
				return
			}
			<-r.wake
			r.mu.Lock()
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, event := range batch {
			r.out <- event
		}
	}
}
