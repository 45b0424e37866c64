package app

import (
	"sync"

	"go.uber.org/zap"

	"quizhost/internal/domain"
)

// sendBuffer is how many events may queue per connection before it is
// considered broken and detached.
const sendBuffer = 32

// Sink is one outbound connection as the dispatcher sees it. Send is only
// ever called from a single goroutine per sink, so implementations need no
// write serialization against the dispatcher itself.
type Sink interface {
	Send(domain.Event) error
	Close() error
}

// Dispatcher fans state-machine events out to every attached connection in
// emission order. Each connection gets its own buffered queue drained by a
// dedicated goroutine, so a slow or broken client stalls only itself. The
// admin connection receives every broadcast plus admin-only diagnostics.
type Dispatcher struct {
	log *zap.Logger

	mu    sync.Mutex
	seq   uint64
	subs  map[string]*subscriber
	admin *subscriber
}

type subscriber struct {
	id   string
	ch   chan domain.Event
	done chan struct{}
	sink Sink
	once sync.Once
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:  log,
		subs: make(map[string]*subscriber),
	}
}

// Attach wires a player connection into the fan-out. An existing
// subscriber with the same id (a stale connection after reconnect) is
// replaced and closed.
func (d *Dispatcher) Attach(playerID string, sink Sink) {
	sub := newSubscriber(playerID, sink)

	d.mu.Lock()
	old := d.subs[playerID]
	d.subs[playerID] = sub
	d.mu.Unlock()

	if old != nil {
		go old.stop()
	}
	go sub.pump(d.log)
}

// AttachAdmin wires the admin connection.
func (d *Dispatcher) AttachAdmin(sink Sink) {
	sub := newSubscriber("admin", sink)

	d.mu.Lock()
	old := d.admin
	d.admin = sub
	d.mu.Unlock()

	if old != nil {
		go old.stop()
	}
	go sub.pump(d.log)
}

// Detach removes a player connection. The connection is usually already
// dead here, so teardown happens off the caller's path.
func (d *Dispatcher) Detach(playerID string) {
	d.mu.Lock()
	sub := d.subs[playerID]
	delete(d.subs, playerID)
	d.mu.Unlock()

	if sub != nil {
		go sub.stop()
	}
}

// IsCurrent reports whether sink is the connection attached for the
// player right now. A handler for a replaced connection uses this to tell
// its own teardown apart from the reconnected player's live connection.
func (d *Dispatcher) IsCurrent(playerID string, sink Sink) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subs[playerID]
	return ok && sub.sink == sink
}

// Broadcast queues an event for the admin and every attached player, in
// the order Broadcast was called. The sequence number is assigned here,
// under the dispatcher lock, so all recipients observe the same ordering.
func (d *Dispatcher) Broadcast(t domain.EventType, payload any) domain.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := d.nextLocked(t, payload)
	if d.admin != nil && !d.admin.offer(ev) {
		d.dropAdminLocked()
	}
	for id, sub := range d.subs {
		if !sub.offer(ev) {
			d.log.Warn("detaching slow player connection", zap.String("player_id", id))
			delete(d.subs, id)
			go sub.stop()
		}
	}
	return ev
}

// ToAdmin queues an event for the admin connection only.
func (d *Dispatcher) ToAdmin(t domain.EventType, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.admin == nil {
		return
	}
	if !d.admin.offer(d.nextLocked(t, payload)) {
		d.dropAdminLocked()
	}
}

// ToPlayer queues an event for a single player connection, used for
// reconnect snapshots.
func (d *Dispatcher) ToPlayer(playerID string, t domain.EventType, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.subs[playerID]
	if !ok {
		return
	}
	if !sub.offer(d.nextLocked(t, payload)) {
		delete(d.subs, playerID)
		go sub.stop()
	}
}

// CloseAll tears down every connection, admin included.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	subs := make([]*subscriber, 0, len(d.subs)+1)
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = make(map[string]*subscriber)
	if d.admin != nil {
		subs = append(subs, d.admin)
		d.admin = nil
	}
	d.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (d *Dispatcher) nextLocked(t domain.EventType, payload any) domain.Event {
	d.seq++
	return domain.Event{Seq: d.seq, Type: t, Payload: payload}
}

func (d *Dispatcher) dropAdminLocked() {
	if d.admin == nil {
		return
	}
	d.log.Warn("detaching slow admin connection")
	go d.admin.stop()
	d.admin = nil
}

func newSubscriber(id string, sink Sink) *subscriber {
	return &subscriber{
		id:   id,
		ch:   make(chan domain.Event, sendBuffer),
		done: make(chan struct{}),
		sink: sink,
	}
}

// offer enqueues without blocking; false means the queue is full.
func (s *subscriber) offer(ev domain.Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// stop closes the queue, waits for the pump to drain what was already
// queued (so a final notice still reaches a healthy connection), then
// closes the sink.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
		_ = s.sink.Close()
	})
}

// pump drains the queue into the sink until the queue closes or a write
// fails. Events queued after a failure are discarded; a reconnecting
// client resynchronizes from a snapshot instead of replayed history.
func (s *subscriber) pump(log *zap.Logger) {
	defer close(s.done)
	for ev := range s.ch {
		if err := s.sink.Send(ev); err != nil {
			log.Debug("event delivery failed",
				zap.String("subscriber", s.id),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err),
			)
			return
		}
	}
}
