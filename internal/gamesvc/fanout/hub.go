// Package fanout delivers room events to every subscriber of a room topic in emission order.
package fanout

import (
	"sync"
	"sync/atomic"
)

// Event is one room message. Payload is marshalled as-is by the transport. An event with
// To set is addressed to a single client and only reaches relay subscriptions.
type Event struct {
	Seq     uint64 `json:"seq"`
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	To      string `json:"to,omitempty"`
	Payload any    `json:"payload"`
}

// Hub is an in-process, per-topic publish/subscribe registry.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic
	nextID atomic.Uint64
}

type topic struct {
	mu     sync.Mutex
	name   string
	seq    uint64
	closed bool
	subs   map[uint64]*Subscription
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

func (h *Hub) topic(name string, create bool) *topic {
	h.mu.RLock()
	t, ok := h.topics[name]
	h.mu.RUnlock()
	if ok || !create {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[name]; ok {
		return t
	}
	t = &topic{name: name, subs: make(map[uint64]*Subscription)}
	h.topics[name] = t
	return t
}

// Publish stamps the event with the topic sequence and queues it for every current subscriber.
// It never blocks on a subscriber. Publishing to a topic with no subscribers only advances the sequence.
func (h *Hub) Publish(name string, typ string, payload any) Event {
	return h.PublishTo(name, "", typ, payload)
}

// PublishTo queues an event addressed to one client, in sequence with the topic's broadcasts.
// An empty to is a broadcast.
func (h *Hub) PublishTo(name, to, typ string, payload any) Event {
	t := h.topic(name, true)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	ev := Event{Seq: t.seq, Topic: name, Type: typ, To: to, Payload: payload}
	if t.closed {
		return ev
	}
	for _, s := range t.subs {
		if ev.To != "" && !s.relay {
			continue
		}
		s.push(ev)
	}
	return ev
}

// Subscribe registers a new subscriber. Events published before the call are not replayed.
func (h *Hub) Subscribe(name string) *Subscription {
	return h.subscribe(name, false)
}

// SubscribeRelay registers a subscriber that also receives addressed events. Transports
// that forward them to their recipients use it.
func (h *Hub) SubscribeRelay(name string) *Subscription {
	return h.subscribe(name, true)
}

// SubscribeWith registers a subscriber whose queue starts with the given events, ahead of
// anything published after registration.
func (h *Hub) SubscribeWith(name string, first ...Event) *Subscription {
	return h.subscribe(name, false, first...)
}

func (h *Hub) subscribe(name string, relay bool, first ...Event) *Subscription {
	t := h.topic(name, true)
	s := newSubscription(h.nextID.Add(1), t, relay)

	t.mu.Lock()
	for _, ev := range first {
		s.push(ev)
	}
	if t.closed {
		s.finish()
	} else {
		t.subs[s.id] = s
	}
	t.mu.Unlock()

	go s.pump()
	return s
}

// CloseTopic ends every subscription of the topic once its queued events are delivered.
func (h *Hub) CloseTopic(name string) {
	h.mu.Lock()
	t, ok := h.topics[name]
	delete(h.topics, name)
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, s := range t.subs {
		s.finish()
		delete(t.subs, id)
	}
}

// Subscription is one subscriber's ordered, unbounded event queue.
type Subscription struct {
	id     uint64
	topic  *topic
	relay  bool
	out    chan Event
	notify chan struct{}
	done   chan struct{}
	stop   sync.Once

	mu      sync.Mutex
	pending []Event
	closed  bool
}

func newSubscription(id uint64, t *topic, relay bool) *Subscription {
	return &Subscription{
		id:     id,
		topic:  t,
		relay:  relay,
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Events yields the subscriber's events in publish order. It is closed after Close or CloseTopic.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

func (s *Subscription) Topic() string {
	return s.topic.name
}

// Close unregisters the subscriber and discards anything not yet delivered.
func (s *Subscription) Close() {
	s.topic.mu.Lock()
	delete(s.topic.subs, s.id)
	s.topic.mu.Unlock()

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	s.finish()
	s.stop.Do(func() { close(s.done) })
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	s.wake()
}

// finish marks the queue finished; the pump drains what is pending and closes out.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}
