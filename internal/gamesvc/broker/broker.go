package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/gamesvc/service"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// QueueGroup is the NATS queue group answering actions for rooms no instance hosts.
const QueueGroup = "gamesvc"

// Bus is the part of NATS the broker uses.
type Bus interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, handler func(data []byte)) (Unsubscriber, error)
	QueueSubscribe(subj, queue string, handler func(data []byte)) (Unsubscriber, error)
}

type Unsubscriber interface {
	Unsubscribe() error
}

// NatsBus adapts a NATS connection. Subscriptions are flushed, so the server routes to
// them as soon as they return.
func NatsBus(nc *nats.Conn) Bus {
	return natsBus{nc: nc}
}

type natsBus struct {
	nc *nats.Conn
}

func (n natsBus) Publish(subj string, data []byte) error {
	return n.nc.Publish(subj, data)
}

func (n natsBus) Subscribe(subj string, handler func([]byte)) (Unsubscriber, error) {
	return n.flushed(n.nc.Subscribe(subj, func(m *nats.Msg) { handler(m.Data) }))
}

func (n natsBus) QueueSubscribe(subj, queue string, handler func([]byte)) (Unsubscriber, error) {
	return n.flushed(n.nc.QueueSubscribe(subj, queue, func(m *nats.Msg) { handler(m.Data) }))
}

func (n natsBus) flushed(sub *nats.Subscription, err error) (Unsubscriber, error) {
	if err != nil {
		return nil, err
	}
	if err := n.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}

type Broker struct {
	bus      Bus
	sessions *service.SessionService
	timeout  time.Duration

	mu     sync.Mutex
	rooms  map[string]Unsubscriber
	shared []Unsubscriber
}

func NewBroker(bus Bus, sessions *service.SessionService) *Broker {
	return &Broker{
		bus:      bus,
		sessions: sessions,
		timeout:  10 * time.Second,
		rooms:    make(map[string]Unsubscriber),
	}
}

// Listen subscribes to room-less actions, which every instance sees, and joins the queue
// group that answers actions for rooms nobody hosts.
func (b *Broker) Listen() error {
	all, err := b.bus.Subscribe(comm.SocketServiceTopic, b.Handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", comm.SocketServiceTopic, err)
	}
	unhosted, err := b.bus.QueueSubscribe(comm.RoomActionWildcard, QueueGroup, b.handleUnhosted)
	if err != nil {
		all.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", comm.RoomActionWildcard, err)
	}

	b.mu.Lock()
	b.shared = append(b.shared, all, unhosted)
	b.mu.Unlock()
	return nil
}

// Open routes the actions of a new room to this instance and starts relaying its events.
func (b *Broker) Open(code string) error {
	sub, err := b.bus.Subscribe(comm.RoomActionSubject(code), b.Handle)
	if err != nil {
		return fmt.Errorf("subscribe room %s: %w", code, err)
	}

	b.mu.Lock()
	b.rooms[code] = sub
	b.mu.Unlock()

	b.relay(code)
	return nil
}

// Stop drops every subscription of the broker.
func (b *Broker) Stop() {
	b.mu.Lock()
	subs := b.shared
	b.shared = nil
	for code, sub := range b.rooms {
		subs = append(subs, sub)
		delete(b.rooms, code)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("unsubscribe: %s", err)
		}
	}
}

// relay forwards every event of a room topic to the socket service, addressed events as
// private messages, until the topic closes. The room subject is dropped after that.
func (b *Broker) relay(code string) {
	sub := b.sessions.Hub().SubscribeRelay(code)
	go func() {
		for ev := range sub.Events() {
			payload, err := comm.Encode(ev.Type, ev.Topic, ev.To, ev.Payload)
			if err != nil {
				log.Errorf("Error [relay] room %s event %s: %s", code, ev.Type, err)
				continue
			}
			b.Publish(comm.GameServiceTopic, payload)
		}
		b.release(code)
		log.WithField("room", code).Debug("room relay stopped")
	}()
}

func (b *Broker) release(code string) {
	b.mu.Lock()
	sub, ok := b.rooms[code]
	delete(b.rooms, code)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		log.WithField("room", code).Warnf("unsubscribe room actions: %s", err)
	}
}

// handleUnhosted receives room actions through the queue group. A room hosted here or
// claimed by another instance is served on its own subject, so only unknown rooms are
// answered.
func (b *Broker) handleUnhosted(data []byte) {
	msg, err := comm.Decode(data)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}
	if b.sessions.Hosts(msg.RoomCode) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	claimed, err := b.sessions.Claimed(ctx, msg.RoomCode)
	cancel()
	if err != nil {
		log.WithField("room", msg.RoomCode).Errorf("check room claim: %s", err)
		b.replyError(msg, "unavailable", "game service unavailable")
		return
	}
	if claimed {
		return
	}
	b.Handle(data)
}

// Handle decodes one inbound message and dispatches the action it carries. Failures are
// answered with a private error message to the sending socket.
func (b *Broker) Handle(data []byte) {
	msg, err := comm.Decode(data)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	action, err := comm.ParseAction(msg)
	if err != nil {
		log.WithFields(log.Fields{"type": msg.Type, "socket": msg.SocketId}).Warnf("rejected action: %s", err)
		b.replyError(msg, "invalid_action", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	switch a := action.(type) {
	case comm.JoinAction:
		if _, err := b.sessions.JoinRoomFor(ctx, msg.SocketId, a.RoomCode, a.Username, a.Avatar); err != nil {
			b.fail(msg, err)
		}

	case comm.StartAction:
		if _, err := b.sessions.StartGame(ctx, a.RoomCode); err != nil {
			b.fail(msg, err)
		}

	case comm.AdvanceAction:
		_, err := b.sessions.AdvanceQuestion(ctx, a.RoomCode)
		if service.KindOf(err) == service.InvalidState {
			log.WithField("room", a.RoomCode).Debugf("advance ignored: %s", err)
			return
		}
		if err != nil {
			b.fail(msg, err)
		}

	case comm.SubmitAnswerAction:
		receipt, err := b.sessions.SubmitAnswer(ctx, service.SubmitAnswerInput{
			RoomCode:     a.RoomCode,
			PlayerID:     a.PlayerID,
			PlayerSecret: a.PlayerSecret,
			QuestionID:   a.QuestionID,
			Value:        a.Answer,
			Elapsed:      a.TimeTaken,
		})
		if err != nil {
			b.fail(msg, err)
			return
		}
		b.reply(msg.SocketId, a.RoomCode, comm.EventAnswerReceived, receipt)

	case comm.PlayerReadyAction:
		if err := b.sessions.PlayerReady(ctx, a.PlayerID); err != nil {
			b.fail(msg, err)
		}

	case comm.SubscribeAction:
		if _, err := b.sessions.Connect(a.RoomCode, msg.SocketId); err != nil {
			b.fail(msg, err)
		}
	}
}

func (b *Broker) fail(msg comm.WSMessage, err error) {
	if service.KindOf(err) == service.KindInternal {
		log.WithFields(log.Fields{"type": msg.Type, "room": msg.RoomCode}).Errorf("action failed: %s", err)
		b.replyError(msg, "internal", "internal error")
		return
	}
	var e *service.Error
	if errors.As(err, &e) {
		log.WithFields(log.Fields{"type": msg.Type, "room": msg.RoomCode, "code": e.Code}).Info("action refused")
	}
	b.replyError(msg, service.CodeOf(err), err.Error())
}

func (b *Broker) replyError(msg comm.WSMessage, code, text string) {
	b.reply(msg.SocketId, msg.RoomCode, comm.EventError, comm.ErrorMessage{Code: code, Error: text})
}

// reply sends a message to a single socket.
func (b *Broker) reply(socketId, roomCode, typ string, payload any) {
	if socketId == "" {
		log.Warnf("dropping %s reply without socket id", typ)
		return
	}
	data, err := comm.Encode(typ, roomCode, socketId, payload)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.Publish(comm.GameServiceTopic, data)
}

func (b *Broker) Publish(topic string, payload []byte) {
	if err := b.bus.Publish(topic, payload); err != nil {
		log.Errorf("Error publishing to %s: %s", topic, err)
	}
}
