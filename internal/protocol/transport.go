package protocol

import "sync"

// Transport moves complete MIDI messages. Read returns one message per call
// and false when nothing is pending; it must not block.
type Transport interface {
	Read() ([]byte, bool)
	Write(msg []byte) error
}

// QueueTransport is an in-process Transport. Push may be called from any
// goroutine; Read and Write belong to the loop goroutine.
type QueueTransport struct {
	mu  sync.Mutex
	in  [][]byte
	out func(msg []byte)
}

// NewQueueTransport returns a transport whose writes are handed to out.
// out receives a copy and may retain it.
func NewQueueTransport(out func(msg []byte)) *QueueTransport {
	return &QueueTransport{out: out}
}

// Push queues an inbound message.
func (q *QueueTransport) Push(msg []byte) {
	if len(msg) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.in = append(q.in, append([]byte(nil), msg...))
}

func (q *QueueTransport) Read() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.in) == 0 {
		return nil, false
	}

	msg := q.in[0]
	q.in[0] = nil
	q.in = q.in[1:]
	return msg, true
}

func (q *QueueTransport) Write(msg []byte) error {
	if q.out != nil {
		q.out(append([]byte(nil), msg...))
	}
	return nil
}

// Pending returns the number of queued inbound messages.
func (q *QueueTransport) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.in)
}
