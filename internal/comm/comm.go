// Package comm is the wire format shared by the game and socket services.
package comm

import (
	"encoding/json"
	"fmt"
)

const (
	// SocketServiceTopic carries client actions without a room from socketsvc to every
	// gamesvc instance. Room actions go to RoomActionSubject.
	SocketServiceTopic = "socket.service"
	// RoomActionWildcard matches every room action subject.
	RoomActionWildcard = SocketServiceTopic + ".*"
	// GameServiceTopic carries room broadcasts and private replies from gamesvc to socketsvc.
	GameServiceTopic = "game.service"
)

// RoomActionSubject is the subject for actions on one room. Only the instance hosting the
// room subscribes to it.
func RoomActionSubject(code string) string {
	if code == "" {
		return SocketServiceTopic
	}
	return SocketServiceTopic + "." + code
}

// WSMessage is the envelope used on the websocket and on NATS. A message with a SocketId
// is private to that socket; a message with only a RoomCode goes to every socket of the room.
type WSMessage struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"room_code,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	SocketId string          `json:"socketid,omitempty"`
}

// IsPrivate reports whether the message is addressed to a single socket.
func (m WSMessage) IsPrivate() bool { return m.SocketId != "" }

// NewMessage marshals payload into the envelope's data field.
func NewMessage(typ, roomCode, socketId string, payload any) (WSMessage, error) {
	msg := WSMessage{Type: typ, RoomCode: roomCode, SocketId: socketId}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return WSMessage{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	msg.Data = data
	return msg, nil
}

// Encode is NewMessage followed by marshalling the envelope itself.
func Encode(typ, roomCode, socketId string, payload any) ([]byte, error) {
	msg, err := NewMessage(typ, roomCode, socketId, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(b []byte) (WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return WSMessage{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
