package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/socketsvc/broker"
	log "github.com/sirupsen/logrus"
)

type Ws struct {
	connMap sync.Map // socketId -> *Client
	roomMap sync.Map // socketId -> room code
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// SocketMessage forwards a client action to the game service. Actions are validated here
// so malformed ones never cross the bus.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	if c, ok := s.client(socketId); ok {
		fillIdentity(c, message)
	}

	if _, err := comm.ParseAction(*message); err != nil {
		log.Warnf("socket %s sent invalid action: %s", socketId, err)
		s.sendError(socketId, "invalid_action", err.Error())
		return
	}

	message.SocketId = socketId
	if message.RoomCode == "" {
		// player_ready may omit the room; the socket's room routes it to the owner
		if room, ok := s.GetRoom(socketId); ok {
			message.RoomCode = room
		}
	}

	bytes, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := comm.RoomActionSubject(message.RoomCode)
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		s.sendError(socketId, "unavailable", "game service unavailable")
		return
	}

	log.Debugf("Published %s from socket %s to topic %s", message.Type, socketId, topic)
}

// fillIdentity adds the socket's player credentials to actions that need them when the
// client left them out.
func fillIdentity(c *Client, m *comm.WSMessage) {
	id, secret := c.Player()
	if id == "" {
		return
	}
	switch m.Type {
	case comm.ActionSubmitAnswer, comm.ActionPlayerReady:
	default:
		return
	}

	data := map[string]any{}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return
		}
	}
	if v, _ := data["player_id"].(string); v == "" {
		data["player_id"] = id
	}
	if m.Type == comm.ActionSubmitAnswer {
		if v, _ := data["player_secret"].(string); v == "" {
			data["player_secret"] = secret
		}
	}
	if raw, err := json.Marshal(data); err == nil {
		m.Data = raw
	}
}

func (s *Ws) sendError(socketId, code, text string) {
	c, ok := s.client(socketId)
	if !ok {
		return
	}
	msg, err := comm.NewMessage(comm.EventError, "", "", comm.ErrorMessage{Code: code, Error: text})
	if err != nil {
		return
	}
	if err := c.WriteJSON(msg); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}

func (s *Ws) StoreConnection(socketId string, c *Client) {
	s.connMap.Store(socketId, c)
}

func (s *Ws) client(socketId string) (*Client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}

// GetConnection is handed to the broker for writing to a socket.
func (s *Ws) GetConnection(socketId string) (broker.Conn, bool) {
	c, ok := s.client(socketId)
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *Ws) StoreRoom(socketId string, roomId string) {
	if _, ok := s.connMap.Load(socketId); !ok {
		return
	}
	s.roomMap.Store(socketId, roomId)
}

func (s *Ws) GetRoom(socketId string) (string, bool) {
	room, ok := s.roomMap.Load(socketId)
	if !ok {
		return "", false
	}
	return room.(string), true
}

func (s *Ws) GetRoomSockets(roomId string) ([]string, bool) {
	var sockets []string
	found := false

	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(string) == roomId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true
	})

	return sockets, found
}

// Identify remembers which player a socket speaks for.
func (s *Ws) Identify(socketId, playerID, secret string) {
	if c, ok := s.client(socketId); ok {
		c.SetPlayer(playerID, secret)
	}
}

// HandleDisconnect forgets a closed socket.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
	s.roomMap.Delete(socketId)
}
