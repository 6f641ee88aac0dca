package flut

import (
	"sync"

	"github.com/gorilla/websocket"
)

// outboundQueueDepth bounds how many frames a slow subscriber can have
// buffered before new frames are dropped instead of queued.
const outboundQueueDepth = 1

// Subscriber is one WebSocket sink joined to a SubscriberSet: either a
// spectator watching a canvas's image stream, or a client watching the
// stats stream. It owns a small outbound queue and a writer goroutine so
// that a slow reader on the far end never blocks the broadcaster or
// aggregator tick that is trying to fan a frame out to everyone.
type Subscriber struct {
	conn        *websocket.Conn
	messageType int
	outbound    chan []byte
	done        chan struct{}
	closeOnce   sync.Once

	// MaxW and MaxH are the spectator's requested image-stream bounds;
	// zero means the canvas's native resolution.
	MaxW, MaxH int
}

// NewSubscriber wraps a WebSocket connection as a Subscriber that will
// write frames of the given message type (websocket.BinaryMessage or
// websocket.TextMessage).
func NewSubscriber(conn *websocket.Conn, messageType int) *Subscriber {
	s := &Subscriber{
		conn:        conn,
		messageType: messageType,
		outbound:    make(chan []byte, outboundQueueDepth),
		done:        make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Push enqueues a frame for delivery, dropping it if the subscriber's
// queue is already full. Exported so a broadcaster can address one
// subscriber directly with a per-subscriber encoded frame (e.g. a
// downscaled image), bypassing SubscriberSet.Broadcast's single shared
// payload.
func (s *Subscriber) Push(msg []byte) {
	s.push(msg)
}

func (s *Subscriber) writeLoop() {
	for {
		select {
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(s.messageType, msg); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// push enqueues a frame for delivery, dropping it if the subscriber's
// queue is already full rather than blocking the caller.
func (s *Subscriber) push(msg []byte) {
	select {
	case s.outbound <- msg:
	default:
	}
}

// Close tears down the subscriber's write loop and underlying
// connection. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// SubscriberSet is a set of Subscribers with brief mutual exclusion on
// insert/remove/iterate; iteration snapshots the member list so sends
// never happen while the lock is held.
type SubscriberSet struct {
	mu      sync.Mutex
	members map[*Subscriber]struct{}
}

// NewSubscriberSet returns an empty SubscriberSet.
func NewSubscriberSet() *SubscriberSet {
	return &SubscriberSet{members: make(map[*Subscriber]struct{})}
}

// Add joins a subscriber to the set.
func (s *SubscriberSet) Add(sub *Subscriber) {
	s.mu.Lock()
	s.members[sub] = struct{}{}
	s.mu.Unlock()
}

// Remove drops a subscriber from the set and closes it.
func (s *SubscriberSet) Remove(sub *Subscriber) {
	s.mu.Lock()
	_, ok := s.members[sub]
	delete(s.members, sub)
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// Broadcast pushes msg to every current member's outbound queue,
// dropping it for any member whose queue is already full. The member
// list is snapshotted before sending so the lock is not held during the
// (potentially many) channel sends.
func (s *SubscriberSet) Broadcast(msg []byte) {
	s.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(s.members))
	for sub := range s.members {
		snapshot = append(snapshot, sub)
	}
	s.mu.Unlock()

	for _, sub := range snapshot {
		sub.push(msg)
	}
}

// Snapshot returns the current member list without holding the lock
// during iteration, for callers (like the image broadcaster) that need
// to inspect per-subscriber fields such as MaxW/MaxH before sending.
func (s *SubscriberSet) Snapshot() []*Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscriber, 0, len(s.members))
	for sub := range s.members {
		out = append(out, sub)
	}
	return out
}

// Len reports the current number of members.
func (s *SubscriberSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}
