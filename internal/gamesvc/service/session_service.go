// Package service implements the room protocol: creating rooms, joining, starting,
// advancing questions and scoring answers.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/gamesvc/catalog"
	"github.com/avvvet/quiz-services/internal/gamesvc/fanout"
	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/avvvet/quiz-services/internal/gamesvc/scoring"
	"github.com/avvvet/quiz-services/internal/gamesvc/session"
	"github.com/avvvet/quiz-services/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

type RoomView = comm.RoomState

type CreateRoomInput struct {
	QuizID     string `json:"quiz_id"`
	MaxPlayers int    `json:"max_players"`
	HostUserID *int64 `json:"host_user_id"`
}

type JoinResult struct {
	Player models.Player
	Room   RoomView
}

// Response is the private join_response payload.
func (j JoinResult) Response() comm.JoinResponse {
	return comm.JoinResponse{
		Player: comm.JoinedPlayer{
			PublicPlayer: j.Player.Public(),
			RoomCode:     j.Player.RoomCode,
			Secret:       j.Player.Secret,
		},
		Room: j.Room,
	}
}

type SubmitAnswerInput struct {
	RoomCode     string
	PlayerID     string
	PlayerSecret string
	QuestionID   string
	Value        string
	Elapsed      *float64
}

type AnswerReceipt = comm.AnswerReceived

type PlayerView struct {
	models.PublicPlayer
	RoomCode string `json:"room_code"`
}

type Option func(*SessionService)

func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithDefaultMaxPlayers sets the capacity used when a room is created with max players 0.
func WithDefaultMaxPlayers(n int) Option {
	return func(s *SessionService) {
		if n > 0 && n <= models.MaxRoomCapacity {
			s.defaultMaxPlayers = n
		}
	}
}

// WithRoomOpened registers a callback run for every new room before CreateRoom returns.
// An error from the callback discards the room and fails CreateRoom.
func WithRoomOpened(fn func(code string) error) Option {
	return func(s *SessionService) { s.onOpen = append(s.onOpen, fn) }
}

type SessionService struct {
	rooms   *session.Registry
	hub     *fanout.Hub
	catalog catalog.Catalog
	audit   store.AuditLog

	now               func() time.Time
	defaultMaxPlayers int
	onOpen            []func(code string) error
}

func NewSessionService(rooms *session.Registry, hub *fanout.Hub, cat catalog.Catalog, audit store.AuditLog, opts ...Option) *SessionService {
	if audit == nil {
		audit = store.NopAudit{}
	}
	s := &SessionService{
		rooms:             rooms,
		hub:               hub,
		catalog:           cat,
		audit:             audit,
		now:               time.Now,
		defaultMaxPlayers: models.DefaultMaxPlayers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub exposes the fan-out the service publishes room events to.
func (s *SessionService) Hub() *fanout.Hub { return s.hub }

// CreateRoom loads and validates the quiz before the room exists, so play never touches
// the catalog.
func (s *SessionService) CreateRoom(ctx context.Context, in CreateRoomInput) (RoomView, error) {
	maxPlayers := in.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.defaultMaxPlayers
	}
	if maxPlayers < 0 || maxPlayers > models.MaxRoomCapacity {
		return RoomView{}, withDetail(ErrInvalidCapacity, "got %d", in.MaxPlayers)
	}
	if in.QuizID == "" {
		return RoomView{}, withDetail(ErrInvalidInput, "quiz_id is required")
	}

	quiz, err := s.catalog.GetQuiz(ctx, in.QuizID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return RoomView{}, withDetail(ErrQuizNotFound, "%s", in.QuizID)
		}
		return RoomView{}, fmt.Errorf("load quiz %s: %w", in.QuizID, err)
	}
	if err := quiz.Validate(); err != nil {
		return RoomView{}, withDetail(ErrInvalidInput, "%s", err)
	}

	questions, err := catalog.LoadQuestions(ctx, s.catalog, quiz)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return RoomView{}, withDetail(ErrQuestionNotFound, "quiz %s is missing questions", quiz.ID)
		case errors.Is(err, catalog.ErrInvalidQuestion):
			return RoomView{}, withDetail(ErrInvalidInput, "%s", err)
		}
		return RoomView{}, fmt.Errorf("load questions of quiz %s: %w", quiz.ID, err)
	}

	code, err := s.rooms.ReserveCode(ctx)
	if err != nil {
		return RoomView{}, fmt.Errorf("reserve room code: %w", err)
	}

	rec, err := models.NewRoom(code, quiz.ID, maxPlayers, in.HostUserID, s.now())
	if err != nil {
		s.releaseCode(code)
		return RoomView{}, withDetail(ErrInvalidInput, "%s", err)
	}

	room := session.NewRoom(rec, quiz, questions)
	s.rooms.Add(room)
	for _, fn := range s.onOpen {
		if err := fn(code); err != nil {
			s.discard(room)
			return RoomView{}, fmt.Errorf("open room %s: %w", code, err)
		}
	}
	s.audit.RoomCreated(*rec)

	log.WithFields(log.Fields{"room": code, "quiz": quiz.ID, "questions": len(questions)}).Info("room created")
	return viewOf(room.Snapshot()), nil
}

func (s *SessionService) JoinRoom(ctx context.Context, code, username, avatar string) (JoinResult, error) {
	return s.join(code, username, avatar, "")
}

// JoinRoomFor joins on behalf of a websocket client. The join_response is queued on the
// room topic addressed to socketID, ahead of every room event that follows the join.
func (s *SessionService) JoinRoomFor(ctx context.Context, socketID, code, username, avatar string) (JoinResult, error) {
	return s.join(code, username, avatar, socketID)
}

func (s *SessionService) join(code, username, avatar, socketID string) (JoinResult, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return JoinResult{}, err
	}

	switch {
	case room.Status() == models.RoomEnded:
		room.Unlock()
		return JoinResult{}, ErrRoomEnded
	case room.Full():
		room.Unlock()
		return JoinResult{}, ErrRoomFull
	}

	p, err := models.NewPlayer(code, username, avatar, s.now())
	if err != nil {
		room.Unlock()
		return JoinResult{}, withDetail(ErrInvalidInput, "%s", err)
	}
	if err := room.AddPlayer(p); err != nil {
		room.Unlock()
		return JoinResult{}, fmt.Errorf("add player to room %s: %w", code, err)
	}
	s.rooms.BindPlayer(p.ID, code)

	res := JoinResult{Player: *p, Room: viewOf(room.SnapshotLocked())}
	if socketID != "" {
		s.hub.PublishTo(code, socketID, comm.EventJoinResponse, res.Response())
	}
	s.hub.Publish(code, comm.EventPlayerJoined, comm.PlayerJoined{
		Player:      p.Public(),
		PlayerCount: room.PlayerCount(),
	})
	room.Unlock()

	s.audit.PlayerJoined(res.Player)
	log.WithFields(log.Fields{"room": code, "player": p.ID}).Info("player joined")
	return res, nil
}

func (s *SessionService) StartGame(ctx context.Context, code string) (RoomView, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return RoomView{}, err
	}

	if !room.CanStart() {
		status, players := room.Status(), room.PlayerCount()
		room.Unlock()
		return RoomView{}, withDetail(ErrCannotStart, "status %s with %d players", status, players)
	}
	if err := room.SetStatus(models.RoomPlaying, s.now()); err != nil {
		room.Unlock()
		return RoomView{}, withDetail(ErrCannotStart, "%s", err)
	}

	rec := room.Record()
	s.hub.Publish(code, comm.EventGameStarted, comm.GameStarted{
		StartedAt: rec.StartedAt.UTC().Format(time.RFC3339),
	})
	view := viewOf(room.SnapshotLocked())
	room.Unlock()

	s.audit.RoomChanged(rec)
	log.WithFields(log.Fields{"room": code, "players": view.PlayerCount}).Info("game started")
	return view, nil
}

// AdvanceQuestion moves to the next question, or ends the game after the last one.
func (s *SessionService) AdvanceQuestion(ctx context.Context, code string) (RoomView, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return RoomView{}, err
	}

	if room.Status() != models.RoomPlaying {
		status := room.Status()
		room.Unlock()
		return RoomView{}, withDetail(ErrNotPlaying, "status %s", status)
	}

	now := s.now()
	idx := room.Advance(now)

	var final []models.PublicPlayer
	if q, ok := room.Question(idx); ok {
		s.hub.Publish(code, comm.EventNextQuestion, comm.NextQuestion{
			Question:       q.Public(),
			QuestionIndex:  idx,
			TotalQuestions: room.TotalQuestions(),
		})
	} else {
		if err := room.SetStatus(models.RoomEnded, now); err != nil {
			room.Unlock()
			return RoomView{}, fmt.Errorf("end room %s: %w", code, err)
		}
		final = room.RankPlayers()
		s.hub.Publish(code, comm.EventGameEnded, comm.GameEnded{FinalStandings: final})
	}

	rec := room.Record()
	view := viewOf(room.SnapshotLocked())
	var players []models.Player
	for _, pp := range final {
		if p, ok := room.Player(pp.ID); ok {
			players = append(players, *p)
		}
	}
	room.Unlock()

	s.audit.RoomChanged(rec)
	for _, p := range players {
		s.audit.PlayerScored(p)
	}

	fields := log.Fields{"room": code, "question_index": idx}
	if final != nil {
		log.WithFields(fields).Info("game ended")
	} else {
		log.WithFields(fields).Info("question advanced")
	}
	return view, nil
}

// SubmitAnswer validates and scores one answer. The receipt goes back to the caller only;
// the room gets the updated standings.
func (s *SessionService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (AnswerReceipt, error) {
	room, err := s.lockOpen(in.RoomCode)
	if err != nil {
		return AnswerReceipt{}, err
	}

	receipt, answer, player, err := s.submitLocked(room, in)
	room.Unlock()
	if err != nil {
		return AnswerReceipt{}, err
	}

	s.audit.AnswerRecorded(answer)
	s.audit.PlayerScored(player)

	log.WithFields(log.Fields{
		"room":    in.RoomCode,
		"player":  player.ID,
		"index":   answer.QuestionIndex,
		"correct": answer.Correct,
		"points":  answer.Points,
	}).Debug("answer recorded")

	return receipt, nil
}

// submitLocked runs every check before touching state. The room lock must be held.
func (s *SessionService) submitLocked(room *session.Room, in SubmitAnswerInput) (AnswerReceipt, models.Answer, models.Player, error) {
	var (
		none   AnswerReceipt
		noAns  models.Answer
		noUser models.Player
	)

	if room.Status() != models.RoomPlaying {
		return none, noAns, noUser, withDetail(ErrNotPlaying, "status %s", room.Status())
	}
	live := room.CurrentQuestionIndex()
	if _, ok := room.Question(live); !ok {
		return none, noAns, noUser, ErrNoLiveQuestion
	}

	player, ok := room.Player(in.PlayerID)
	if !ok {
		return none, noAns, noUser, ErrPlayerNotFound
	}
	if subtle.ConstantTimeCompare([]byte(player.Secret), []byte(in.PlayerSecret)) != 1 {
		return none, noAns, noUser, ErrUnauthorized
	}

	q, idx, ok := room.QuestionByID(in.QuestionID)
	if !ok {
		return none, noAns, noUser, withDetail(ErrQuestionNotFound, "%s", in.QuestionID)
	}
	if idx != live {
		return none, noAns, noUser, withDetail(ErrStaleQuestion, "question %d, live %d", idx, live)
	}

	if in.Value == "" {
		return none, noAns, noUser, withDetail(ErrInvalidInput, "answer is required")
	}
	if in.Elapsed != nil && *in.Elapsed < 0 {
		return none, noAns, noUser, withDetail(ErrInvalidInput, "time taken must not be negative")
	}
	if room.HasAnswered(player.ID, idx) {
		return none, noAns, noUser, ErrDuplicateAnswer
	}

	now := s.now()
	correct := IsCorrect(q, in.Value)
	points := 0
	if correct {
		points = scoring.Score(q, in.Elapsed)
	}

	answer := models.Answer{
		RoomCode:      in.RoomCode,
		PlayerID:      player.ID,
		QuestionID:    q.ID,
		QuestionIndex: idx,
		Value:         in.Value,
		Elapsed:       in.Elapsed,
		Correct:       correct,
		Points:        points,
		CreatedAt:     now,
	}
	if err := room.RecordAnswer(answer); err != nil {
		return none, noAns, noUser, ErrDuplicateAnswer
	}

	total := player.Score
	if points > 0 {
		var err error
		if total, err = room.AddScore(player.ID, points, now); err != nil {
			return none, noAns, noUser, fmt.Errorf("score answer: %w", err)
		}
	}

	s.hub.Publish(in.RoomCode, comm.EventPositionsUpdated, comm.PositionsUpdated{
		Players: room.RankPlayers(),
	})

	return AnswerReceipt{Correct: correct, EarnedScore: points, TotalScore: total}, answer, *player, nil
}

// PlayerReady tells the player's room the player is ready. Unknown players are ignored.
func (s *SessionService) PlayerReady(ctx context.Context, playerID string) error {
	room, err := s.rooms.RoomOf(playerID)
	if err != nil {
		return nil
	}

	room.Lock()
	defer room.Unlock()
	if room.Closed() {
		return nil
	}
	if _, ok := room.Player(playerID); !ok {
		return nil
	}
	s.hub.Publish(room.Code(), comm.EventPlayerReady, comm.PlayerReady{PlayerID: playerID})
	return nil
}

func (s *SessionService) Room(code string) (RoomView, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return RoomView{}, err
	}
	defer room.Unlock()
	return viewOf(room.SnapshotLocked()), nil
}

// Hosts reports whether this instance holds the room.
func (s *SessionService) Hosts(code string) bool {
	_, err := s.rooms.Get(code)
	return err == nil
}

// Claimed reports whether any instance holds the room code.
func (s *SessionService) Claimed(ctx context.Context, code string) (bool, error) {
	return s.rooms.CodeClaimed(ctx, code)
}

func (s *SessionService) Player(playerID string) (PlayerView, error) {
	room, err := s.rooms.RoomOf(playerID)
	if err != nil {
		return PlayerView{}, ErrPlayerNotFound
	}

	room.Lock()
	defer room.Unlock()
	p, ok := room.Player(playerID)
	if !ok || room.Closed() {
		return PlayerView{}, ErrPlayerNotFound
	}
	return PlayerView{PublicPlayer: p.Public(), RoomCode: room.Code()}, nil
}

// Subscribe attaches a new subscriber to the room topic. Its first event is a connected
// snapshot of the room, delivered to it alone.
func (s *SessionService) Subscribe(code string) (*fanout.Subscription, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return nil, err
	}
	defer room.Unlock()

	first := fanout.Event{
		Topic:   code,
		Type:    comm.EventConnected,
		Payload: comm.Connected{Room: viewOf(room.SnapshotLocked())},
	}
	return s.hub.SubscribeWith(code, first), nil
}

// Connect queues a connected snapshot addressed to socketID on the room topic. Relays
// deliver it before any event emitted after the snapshot.
func (s *SessionService) Connect(code, socketID string) (RoomView, error) {
	room, err := s.lockOpen(code)
	if err != nil {
		return RoomView{}, err
	}
	defer room.Unlock()

	view := viewOf(room.SnapshotLocked())
	if socketID != "" {
		s.hub.PublishTo(code, socketID, comm.EventConnected, comm.Connected{Room: view})
	}
	return view, nil
}

// Rooms returns snapshots of every active room.
func (s *SessionService) Rooms() []session.Snapshot {
	rooms := s.rooms.Rooms()
	out := make([]session.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	return out
}

// CloseRoom removes a room, ends its topic after pending events drain and frees its code.
func (s *SessionService) CloseRoom(ctx context.Context, code string) error {
	room, err := s.lockOpen(code)
	if err != nil {
		return err
	}
	room.Close()
	s.rooms.Remove(code)
	s.hub.CloseTopic(code)
	room.Unlock()

	if err := s.rooms.ReleaseCode(ctx, code); err != nil {
		return fmt.Errorf("release code %s: %w", code, err)
	}
	log.WithField("room", code).Info("room closed")
	return nil
}

// RefreshRoom extends the claim on a live room's code.
func (s *SessionService) RefreshRoom(ctx context.Context, code string) error {
	if !s.Hosts(code) {
		return withDetail(ErrRoomNotFound, "%s", code)
	}
	return s.rooms.RefreshCode(ctx, code)
}

// InvalidateQuiz drops cached catalog entries of a quiz so the next room sees edits.
// Rooms already created keep their questions.
func (s *SessionService) InvalidateQuiz(quizID string) bool {
	c, ok := s.catalog.(interface{ Invalidate(string) })
	if ok {
		c.Invalidate(quizID)
	}
	return ok
}

// lockOpen returns the room locked. A room closed while the caller waited is reported
// as not found.
func (s *SessionService) lockOpen(code string) (*session.Room, error) {
	room, err := s.rooms.Get(code)
	if err != nil {
		return nil, withDetail(ErrRoomNotFound, "%s", code)
	}
	room.Lock()
	if room.Closed() {
		room.Unlock()
		return nil, withDetail(ErrRoomNotFound, "%s", code)
	}
	return room, nil
}

// discard undoes a room that failed to open.
func (s *SessionService) discard(room *session.Room) {
	room.Lock()
	room.Close()
	s.rooms.Remove(room.Code())
	s.hub.CloseTopic(room.Code())
	room.Unlock()
	s.releaseCode(room.Code())
}

func (s *SessionService) releaseCode(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rooms.ReleaseCode(ctx, code); err != nil {
		log.Errorf("release room code %s: %s", code, err)
	}
}

func viewOf(snap session.Snapshot) RoomView {
	return RoomView{
		RoomCode:             snap.Room.Code,
		Status:               snap.Room.Status,
		PlayerCount:          snap.PlayerCount,
		MaxPlayers:           snap.Room.MaxPlayers,
		CurrentQuestionIndex: snap.Room.CurrentQuestionIndex,
		TotalQuestions:       snap.TotalQuestions,
		Quiz:                 snap.Quiz,
		StartedAt:            snap.Room.StartedAt,
		EndedAt:              snap.Room.EndedAt,
		CanStart:             snap.CanStart,
		Full:                 snap.Full,
	}
}
