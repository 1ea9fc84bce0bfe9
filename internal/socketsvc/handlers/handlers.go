package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/socketsvc/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Handler struct {
	upgrader websocket.Upgrader
	ws       *ws.Ws
	port     string
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(s *ws.Ws, port string) *Handler {
	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ws:   s,
		port: port,
	}
	return h
}

// HandleWebSocket upgrades the request and starts reading client actions. A client may
// identify as a player with player_id and player_secret query parameters; without them
// the socket is a spectator.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	client := ws.NewClient(socketId, conn)
	if id := r.URL.Query().Get("player_id"); id != "" {
		client.SetPlayer(id, r.URL.Query().Get("player_secret"))
	}
	h.ws.StoreConnection(socketId, client)

	log.Infof("New WebSocket connection established: %s", socketId)

	done := make(chan struct{})
	go h.keepAlive(client, done)
	go h.handleConnection(conn, client, done)
}

func (h *Handler) handleConnection(conn *websocket.Conn, client *ws.Client, done chan struct{}) {
	socketId := client.ID
	defer func() {
		close(done)
		log.Infof("Closing WebSocket connection: %s", socketId)
		conn.Close()
		h.ws.HandleDisconnect(socketId)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			} else {
				log.Infof("WebSocket connection closed for socket: %s", socketId)
			}
			break
		}

		message := &comm.WSMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			log.Errorf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.sendErrorToClient(client, "Invalid message format")
			continue
		}

		log.Debugf("Received message from socket %s: type=%s", socketId, message.Type)

		h.ws.SocketMessage(socketId, message)
	}
}

// keepAlive pings the client until the read loop ends or a ping fails.
func (h *Handler) keepAlive(client *ws.Client, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				log.Warnf("ping failed for socket %s: %v", client.ID, err)
				client.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) sendErrorToClient(client *ws.Client, errorMsg string) {
	msg, err := comm.NewMessage(comm.EventError, "", "", comm.ErrorMessage{Code: "invalid_message", Error: errorMsg})
	if err != nil {
		return
	}
	if err := client.WriteJSON(msg); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "socket service is running at port " + h.port,
		Code:    http.StatusOK,
	})
}
