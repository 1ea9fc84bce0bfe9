package broker

import (
	"encoding/json"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is the part of *nats.Conn used to reach the game service.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Conn is a client socket the broker can write to.
type Conn interface {
	WriteJSON(v any) error
}

type Broker struct {
	pub            Publisher
	GetConnection  func(string) (Conn, bool)
	GetRoomSockets func(string) ([]string, bool)
	AssignRoom     func(socketId, roomCode string)
	Identify       func(socketId, playerID, secret string)
}

func NewBroker(pub Publisher, fncGetConnection func(string) (Conn, bool), fncGetRoomSockets func(string) ([]string, bool)) *Broker {
	return &Broker{
		pub:            pub,
		GetConnection:  fncGetConnection,
		GetRoomSockets: fncGetRoomSockets,
		AssignRoom:     func(string, string) {},
		Identify:       func(string, string, string) {},
	}
}

// Subscribe consumes messages from the game service.
func (b *Broker) Subscribe(nc *nats.Conn, topic string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// Publish sends a message to the game service.
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.pub.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.Dispatch(msgNats.Data)
}

// Dispatch routes a game service message: private messages go to one socket, the rest to
// every socket of the room.
func (b *Broker) Dispatch(data []byte) {
	message, err := comm.Decode(data)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	if message.IsPrivate() {
		b.track(&message)
		b.sendMessage(&message)
		return
	}

	if message.RoomCode == "" {
		log.Errorf("broadcast %s without room code", message.Type)
		return
	}
	sockets, ok := b.GetRoomSockets(message.RoomCode)
	if !ok {
		return
	}
	for _, socketId := range sockets {
		b.send(socketId, &message)
	}
}

// track updates socket state from confirmations: a connected snapshot or join response
// puts the socket in the room, and a join response also remembers the player.
func (b *Broker) track(m *comm.WSMessage) {
	switch m.Type {
	case comm.EventConnected:
		if m.RoomCode != "" {
			b.AssignRoom(m.SocketId, m.RoomCode)
		}
	case comm.EventJoinResponse:
		var resp comm.JoinResponse
		if err := json.Unmarshal(m.Data, &resp); err != nil {
			log.Errorf("Error malformed join response for socket %s: %s", m.SocketId, err)
			return
		}
		if m.RoomCode != "" {
			b.AssignRoom(m.SocketId, m.RoomCode)
		}
		b.Identify(m.SocketId, resp.Player.ID, resp.Player.Secret)
	}
}

// send socket message to the web client, without the routing socket id
func (b *Broker) sendMessage(m *comm.WSMessage) {
	socketId := m.SocketId
	out := *m
	out.SocketId = ""
	b.send(socketId, &out)
}

func (b *Broker) send(socketId string, m *comm.WSMessage) {
	if conn, ok := b.GetConnection(socketId); ok {
		if err := conn.WriteJSON(m); err != nil {
			log.Errorf("Error writing %s to socket %s: %s", m.Type, socketId, err)
		}
	}
}
