package display

import "sync"

// pending is one encoded frame awaiting flush, with its descriptors.
type pending struct {
	frame []byte
	fds   []int
}

// outbox queues encoded frames so events posted from any goroutine reach
// the wire whole and in post order.
type outbox struct {
	mu    sync.Mutex
	queue []pending
}

func (o *outbox) push(frame []byte, fds []int) {
	o.mu.Lock()
	o.queue = append(o.queue, pending{frame: frame, fds: fds})
	o.mu.Unlock()
}

func (o *outbox) drain() []pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}
