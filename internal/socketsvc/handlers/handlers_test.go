package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/socketsvc/broker"
	"github.com/avvvet/quiz-services/internal/socketsvc/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bus struct {
	mu   sync.Mutex
	sent []comm.WSMessage
}

func (b *bus) Publish(_ string, data []byte) error {
	m, err := comm.Decode(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sent = append(b.sent, m)
	b.mu.Unlock()
	return nil
}

func (b *bus) messages() []comm.WSMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]comm.WSMessage(nil), b.sent...)
}

func TestWebSocketRoundTrip(t *testing.T) {
	s := ws.NewWs()
	out := &bus{}
	brk := broker.NewBroker(out, s.GetConnection, s.GetRoomSockets)
	brk.AssignRoom = s.StoreRoom
	brk.Identify = s.Identify
	s.Broker = brk

	h := NewHandler(s, "0")
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?player_id=p1&player_secret=s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: comm.ActionSubscribe, RoomCode: "123456"}))
	require.Eventually(t, func() bool { return len(out.messages()) == 1 }, time.Second, 5*time.Millisecond)
	forwarded := out.messages()[0]
	require.NotEmpty(t, forwarded.SocketId)

	// the game service confirms the subscription, then broadcasts to the room
	reply, err := comm.Encode(comm.EventConnected, "123456", forwarded.SocketId, comm.Connected{})
	require.NoError(t, err)
	brk.Dispatch(reply)

	broadcast, err := comm.Encode(comm.EventGameStarted, "123456", "", comm.GameStarted{StartedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	brk.Dispatch(broadcast)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var first, second comm.WSMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, comm.EventConnected, first.Type)
	assert.Empty(t, first.SocketId)
	assert.Equal(t, comm.EventGameStarted, second.Type)

	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: comm.ActionPlayerReady}))
	require.Eventually(t, func() bool { return len(out.messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, string(out.messages()[1].Data), `"p1"`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errMsg comm.WSMessage
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, comm.EventError, errMsg.Type)
}
