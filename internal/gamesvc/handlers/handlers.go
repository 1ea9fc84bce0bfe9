package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/avvvet/quiz-services/internal/gamesvc/service"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	sessions  *service.SessionService
	port      string
}

func NewHandler(sessions *service.SessionService, port string) *Handler {
	return &Handler{sessions: sessions, port: port}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
	ErrCode string      `json:"error_code,omitempty"`
}

type StatusResponse struct {
	RoomCode             string `json:"room_code"`
	Status               string `json:"status"`
	PlayerCount          int    `json:"player_count"`
	MaxPlayers           int    `json:"max_players"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	CanStart             bool   `json:"can_start"`
	Full                 bool   `json:"full"`
}

type joinRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) CreateErrorResponse(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %s", err)
		h.CreateResponse(w, Response{Message: "internal error", Code: status, Error: "internal error", ErrCode: "internal"})
		return
	}
	h.CreateResponse(w, Response{Message: "request refused", Code: status, Error: err.Error(), ErrCode: service.CodeOf(err)})
}

// StatusFor maps domain errors to HTTP status codes. Ended and full rooms keep their
// historical 410 and 403.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomEnded):
		return http.StatusGone
	case errors.Is(err, service.ErrRoomFull):
		return http.StatusForbidden
	}
	switch service.KindOf(err) {
	case service.NotFound:
		return http.StatusNotFound
	case service.Unauthorized:
		return http.StatusUnauthorized
	case service.InvalidState:
		return http.StatusUnprocessableEntity
	case service.Conflict:
		return http.StatusConflict
	case service.ValidationFailed:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "game service is running at port " + h.port,
		Code:    http.StatusOK,
		Data:    map[string]int{"active_rooms": len(h.sessions.Rooms())},
	})
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRoomInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: http.StatusBadRequest, Error: err.Error(), ErrCode: "invalid_input"})
		return
	}

	room, err := h.sessions.CreateRoom(r.Context(), in)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "room created", Code: http.StatusCreated, Data: room})
}

func (h *Handler) ShowRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.sessions.Room(chi.URLParam(r, "code"))
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: room})
}

func (h *Handler) RoomStatus(w http.ResponseWriter, r *http.Request) {
	room, err := h.sessions.Room(chi.URLParam(r, "code"))
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: StatusResponse{
		RoomCode:             room.RoomCode,
		Status:               string(room.Status),
		PlayerCount:          room.PlayerCount,
		MaxPlayers:           room.MaxPlayers,
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		CanStart:             room.CanStart,
		Full:                 room.Full,
	}})
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var in joinRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: http.StatusBadRequest, Error: err.Error(), ErrCode: "invalid_input"})
		return
	}

	res, err := h.sessions.JoinRoom(r.Context(), chi.URLParam(r, "code"), in.Username, in.Avatar)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "joined", Code: http.StatusCreated, Data: res.Response()})
}

func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	room, err := h.sessions.StartGame(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "game started", Code: http.StatusOK, Data: room})
}

func (h *Handler) AdvanceQuestion(w http.ResponseWriter, r *http.Request) {
	room, err := h.sessions.AdvanceQuestion(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "question advanced", Code: http.StatusOK, Data: room})
}

func (h *Handler) ShowPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessions.Player(chi.URLParam(r, "id"))
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: p})
}

// RoomEvents streams a room's events as server-sent events, starting with a connected
// snapshot of the room.
func (h *Handler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.CreateResponse(w, Response{Message: "streaming unsupported", Code: http.StatusInternalServerError, ErrCode: "internal"})
		return
	}

	code := chi.URLParam(r, "code")
	sub, err := h.sessions.Subscribe(code)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	defer sub.Close()

	// Set http headers required for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.WithField("room", code).Debug("event stream opened")
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				log.Errorf("Error marshal %s event for room %s: %s", ev.Type, code, err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
			flusher.Flush()
		}
	}
}

// InvalidateQuiz drops cached catalog data of a quiz after it was edited.
func (h *Handler) InvalidateQuiz(w http.ResponseWriter, r *http.Request) {
	cached := h.sessions.InvalidateQuiz(chi.URLParam(r, "id"))
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: map[string]bool{"invalidated": cached}})
}
