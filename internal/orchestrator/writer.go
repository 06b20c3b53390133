package orchestrator

import (
	"sync"

	"github.com/attrforge/swarm/internal/ipc"
)

// writerQueue is one worker's outbound command queue. Start and Stop are
// FIFO and never coalesce; UpdateBloom and UpdateConfig each hold a
// single "latest wins" slot, so a burst of updates collapses to at most
// one send of each kind (spec.md §5, P5).
type writerQueue struct {
	conn *ipc.Conn

	mu            sync.Mutex
	fifo          []fifoItem
	pendingBloom  *ipc.UpdateBloom
	pendingConfig *ipc.UpdateConfig

	signal chan struct{}
	done   chan struct{}
}

type fifoItem struct {
	t       ipc.Type
	payload interface{}
}

func newWriterQueue(conn *ipc.Conn) *writerQueue {
	return &writerQueue{
		conn:   conn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (w *writerQueue) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// EnqueueStart appends Start to the FIFO.
func (w *writerQueue) EnqueueStart(s ipc.Start) {
	w.mu.Lock()
	w.fifo = append(w.fifo, fifoItem{t: ipc.TypeStart, payload: s})
	w.mu.Unlock()
	w.wake()
}

// EnqueueStop appends Stop to the FIFO.
func (w *writerQueue) EnqueueStop() {
	w.mu.Lock()
	w.fifo = append(w.fifo, fifoItem{t: ipc.TypeStop, payload: ipc.Stop{}})
	w.mu.Unlock()
	w.wake()
}

// EnqueuePing appends a liveness probe to the FIFO (rare enough not to
// need its own coalescing slot).
func (w *writerQueue) EnqueuePing(p ipc.Ping) {
	w.mu.Lock()
	w.fifo = append(w.fifo, fifoItem{t: ipc.TypePing, payload: p})
	w.mu.Unlock()
	w.wake()
}

// EnqueueBloom replaces any pending UpdateBloom with this newer one.
func (w *writerQueue) EnqueueBloom(b ipc.UpdateBloom) {
	w.mu.Lock()
	w.pendingBloom = &b
	w.mu.Unlock()
	w.wake()
}

// EnqueueConfig replaces any pending UpdateConfig with this newer one.
func (w *writerQueue) EnqueueConfig(c ipc.UpdateConfig) {
	w.mu.Lock()
	w.pendingConfig = &c
	w.mu.Unlock()
	w.wake()
}

// next pops the next item to send: FIFO first (preserving Start/Stop
// order), then the coalesced bloom/config slots.
func (w *writerQueue) next() (ipc.Type, interface{}, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.fifo) > 0 {
		item := w.fifo[0]
		w.fifo = w.fifo[1:]
		return item.t, item.payload, true
	}
	if w.pendingBloom != nil {
		b := *w.pendingBloom
		w.pendingBloom = nil
		return ipc.TypeUpdateBloom, b, true
	}
	if w.pendingConfig != nil {
		c := *w.pendingConfig
		w.pendingConfig = nil
		return ipc.TypeUpdateConfig, c, true
	}
	return "", nil, false
}

// Run drains the queue until Close is called, sending each item over
// conn in order. A send error stops the writer; the supervisor's crash
// callback handles reconnection.
func (w *writerQueue) Run() {
	for {
		for {
			t, payload, ok := w.next()
			if !ok {
				break
			}
			if err := w.conn.Send(t, payload); err != nil {
				return
			}
		}

		select {
		case <-w.signal:
		case <-w.done:
			return
		}
	}
}

// Close stops the writer goroutine.
func (w *writerQueue) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
