package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/quiz-services/internal/comm"
	"github.com/avvvet/quiz-services/internal/gamesvc/catalog"
	"github.com/avvvet/quiz-services/internal/gamesvc/fanout"
	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/avvvet/quiz-services/internal/gamesvc/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func f64(v float64) *float64 { return &v }

func testCatalog() *catalog.MemoryCatalog {
	c := catalog.NewMemoryCatalog()
	c.Put(models.Quiz{ID: "capitals", Name: "Capitals"},
		models.Question{
			ID: "q1", Number: 1, Sentence: "Is Rome the capital of Italy?", Type: models.TrueFalse,
			TimeLimit: 10, Points: 100, PossibleAnswers: []string{"true", "false"}, CorrectAnswer: "true",
		},
		models.Question{
			ID: "q2", Number: 2, Sentence: "Capital of France?", Type: models.MultipleChoice,
			TimeLimit: 20, Points: 200, PossibleAnswers: []string{"Paris", "Rome"}, CorrectAnswer: "Paris",
		},
	)
	c.Put(models.Quiz{ID: "single", Name: "Single"},
		models.Question{
			ID: "s1", Number: 1, Sentence: "Water is wet?", Type: models.TrueFalse,
			PossibleAnswers: []string{"true", "false"}, CorrectAnswer: "true",
		},
	)
	c.Put(models.Quiz{ID: "tiny", Name: "Qz"},
		models.Question{
			ID: "t1", Number: 1, Sentence: "Sky is blue?", Type: models.TrueFalse,
			PossibleAnswers: []string{"true", "false"}, CorrectAnswer: "true",
		},
	)
	c.Put(models.Quiz{ID: "broken", Name: "Broken"},
		models.Question{ID: "b1", Number: 1, Sentence: "ok?", Type: models.TrueFalse, TimeLimit: 90, PossibleAnswers: []string{"true"}},
	)
	return c
}

func newTestService(t *testing.T, opts ...Option) *SessionService {
	t.Helper()
	clock := &tickClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewSessionService(session.NewRegistry(nil), fanout.NewHub(), testCatalog(), nil, opts...)
}

func nextEvent(t *testing.T, sub *fanout.Subscription) fanout.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return fanout.Event{}
}

func assertNoEvent(t *testing.T, sub *fanout.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTwoPlayerGame(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	assert.Equal(t, models.RoomLobby, view.Status)
	assert.Equal(t, models.DefaultMaxPlayers, view.MaxPlayers)
	assert.Equal(t, -1, view.CurrentQuestionIndex)
	assert.Equal(t, 2, view.TotalQuestions)
	assert.False(t, view.CanStart)
	code := view.RoomCode

	sub, err := s.Subscribe(code)
	require.NoError(t, err)
	defer sub.Close()
	ev := nextEvent(t, sub)
	assert.Equal(t, comm.EventConnected, ev.Type)

	a, err := s.JoinRoom(ctx, code, "ana", "")
	require.NoError(t, err)
	assert.Len(t, a.Player.Secret, 32)
	assert.Equal(t, models.DefaultAvatar, a.Player.Avatar)
	b, err := s.JoinRoom(ctx, code, "bo", "🐢")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Room.PlayerCount)

	for i, id := range []string{a.Player.ID, b.Player.ID} {
		ev := nextEvent(t, sub)
		require.Equal(t, comm.EventPlayerJoined, ev.Type)
		joined := ev.Payload.(comm.PlayerJoined)
		assert.Equal(t, id, joined.Player.ID)
		assert.Equal(t, i+1, joined.PlayerCount)
	}

	view, err = s.StartGame(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomPlaying, view.Status)
	ev = nextEvent(t, sub)
	require.Equal(t, comm.EventGameStarted, ev.Type)
	_, err = time.Parse(time.RFC3339, ev.Payload.(comm.GameStarted).StartedAt)
	assert.NoError(t, err)

	_, err = s.AdvanceQuestion(ctx, code)
	require.NoError(t, err)
	ev = nextEvent(t, sub)
	require.Equal(t, comm.EventNextQuestion, ev.Type)
	nq := ev.Payload.(comm.NextQuestion)
	assert.Equal(t, 0, nq.QuestionIndex)
	assert.Equal(t, 2, nq.TotalQuestions)
	assert.Equal(t, "q1", nq.Question.ID)

	receipt, err := s.SubmitAnswer(ctx, SubmitAnswerInput{
		RoomCode: code, PlayerID: a.Player.ID, PlayerSecret: a.Player.Secret,
		QuestionID: "q1", Value: "TRUE", Elapsed: f64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, AnswerReceipt{Correct: true, EarnedScore: 118, TotalScore: 118}, receipt)

	ev = nextEvent(t, sub)
	require.Equal(t, comm.EventPositionsUpdated, ev.Type)
	standings := ev.Payload.(comm.PositionsUpdated).Players
	require.Len(t, standings, 2)
	assert.Equal(t, a.Player.ID, standings[0].ID)
	assert.Equal(t, 1, standings[0].Position)
	assert.Equal(t, 2, standings[1].Position)

	receipt, err = s.SubmitAnswer(ctx, SubmitAnswerInput{
		RoomCode: code, PlayerID: b.Player.ID, PlayerSecret: b.Player.Secret,
		QuestionID: "q1", Value: "false", Elapsed: f64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, AnswerReceipt{Correct: false, EarnedScore: 0, TotalScore: 0}, receipt)
	assert.Equal(t, comm.EventPositionsUpdated, nextEvent(t, sub).Type)

	_, err = s.AdvanceQuestion(ctx, code)
	require.NoError(t, err)
	ev = nextEvent(t, sub)
	require.Equal(t, comm.EventNextQuestion, ev.Type)
	assert.Equal(t, 1, ev.Payload.(comm.NextQuestion).QuestionIndex)

	_, err = s.SubmitAnswer(ctx, SubmitAnswerInput{
		RoomCode: code, PlayerID: a.Player.ID, PlayerSecret: a.Player.Secret,
		QuestionID: "q2", Value: "Rome", Elapsed: f64(3),
	})
	require.NoError(t, err)
	nextEvent(t, sub)

	receipt, err = s.SubmitAnswer(ctx, SubmitAnswerInput{
		RoomCode: code, PlayerID: b.Player.ID, PlayerSecret: b.Player.Secret,
		QuestionID: "q2", Value: "Paris",
	})
	require.NoError(t, err)
	assert.Equal(t, 260, receipt.EarnedScore)
	nextEvent(t, sub)

	view, err = s.AdvanceQuestion(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomEnded, view.Status)
	assert.NotNil(t, view.EndedAt)

	ev = nextEvent(t, sub)
	require.Equal(t, comm.EventGameEnded, ev.Type)
	final := ev.Payload.(comm.GameEnded).FinalStandings
	require.Len(t, final, 2)
	assert.Equal(t, b.Player.ID, final[0].ID)
	assert.Equal(t, 260, final[0].Score)
	assert.Equal(t, 1, final[0].Position)
	assert.Equal(t, a.Player.ID, final[1].ID)
	assert.Equal(t, 118, final[1].Score)
	assert.Equal(t, 2, final[1].Position)

	_, err = s.AdvanceQuestion(ctx, code)
	assert.ErrorIs(t, err, ErrNotPlaying)
	assert.Equal(t, InvalidState, KindOf(err))
	assertNoEvent(t, sub)
}

func TestAdvanceEmitsEachQuestionThenEnds(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	code := view.RoomCode
	_, err = s.JoinRoom(ctx, code, "ana", "")
	require.NoError(t, err)
	_, err = s.StartGame(ctx, code)
	require.NoError(t, err)

	sub := s.Hub().Subscribe(code)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		_, _ = s.AdvanceQuestion(ctx, code)
	}

	var types []string
	var indexes []int
	for i := 0; i < 3; i++ {
		ev := nextEvent(t, sub)
		types = append(types, ev.Type)
		if nq, ok := ev.Payload.(comm.NextQuestion); ok {
			indexes = append(indexes, nq.QuestionIndex)
		}
	}
	assert.Equal(t, []string{comm.EventNextQuestion, comm.EventNextQuestion, comm.EventGameEnded}, types)
	assert.Equal(t, []int{0, 1}, indexes)
	assertNoEvent(t, sub)
}

func TestCreateRoomErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateRoomInput
		want error
		kind Kind
	}{
		{"unknown quiz", CreateRoomInput{QuizID: "nope"}, ErrQuizNotFound, NotFound},
		{"missing quiz id", CreateRoomInput{}, ErrInvalidInput, ValidationFailed},
		{"capacity too large", CreateRoomInput{QuizID: "capitals", MaxPlayers: 1001}, ErrInvalidCapacity, ValidationFailed},
		{"negative capacity", CreateRoomInput{QuizID: "capitals", MaxPlayers: -1}, ErrInvalidCapacity, ValidationFailed},
		{"invalid question", CreateRoomInput{QuizID: "broken"}, ErrInvalidInput, ValidationFailed},
		{"quiz name too short", CreateRoomInput{QuizID: "tiny"}, ErrInvalidInput, ValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t)
			_, err := s.CreateRoom(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Empty(t, s.Rooms())
		})
	}
}

func TestCreateRoomDefaultsAndHook(t *testing.T) {
	ctx := context.Background()
	var opened []string
	s := newTestService(t,
		WithDefaultMaxPlayers(20),
		WithRoomOpened(func(code string) error {
			opened = append(opened, code)
			return nil
		}),
	)

	host := int64(42)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals", HostUserID: &host})
	require.NoError(t, err)
	assert.Equal(t, 20, view.MaxPlayers)
	assert.Equal(t, []string{view.RoomCode}, opened)
	assert.True(t, comm.ValidRoomCode(view.RoomCode))

	view, err = s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals", MaxPlayers: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1000, view.MaxPlayers)
	assert.Len(t, opened, 2)
	assert.NotEqual(t, opened[0], opened[1])
}

func TestCreateRoomHookFailureDiscardsRoom(t *testing.T) {
	ctx := context.Background()
	codes := session.NewMemoryCodes()
	var opened string
	s := NewSessionService(session.NewRegistry(codes), fanout.NewHub(), testCatalog(), nil,
		WithRoomOpened(func(code string) error {
			opened = code
			return fmt.Errorf("bus down")
		}))

	_, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Empty(t, s.Rooms())
	assert.False(t, s.Hosts(opened))

	claimed, err := codes.Claimed(ctx, opened)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestJoinConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	t.Run("full", func(t *testing.T) {
		view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals", MaxPlayers: 1})
		require.NoError(t, err)
		_, err = s.JoinRoom(ctx, view.RoomCode, "ana", "")
		require.NoError(t, err)

		_, err = s.JoinRoom(ctx, view.RoomCode, "bo", "")
		assert.ErrorIs(t, err, ErrRoomFull)
		assert.Equal(t, Conflict, KindOf(err))

		got, _ := s.Room(view.RoomCode)
		assert.True(t, got.Full)
		assert.Equal(t, 1, got.PlayerCount)
	})

	t.Run("ended", func(t *testing.T) {
		view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "single"})
		require.NoError(t, err)
		code := view.RoomCode
		_, err = s.JoinRoom(ctx, code, "ana", "")
		require.NoError(t, err)
		_, err = s.StartGame(ctx, code)
		require.NoError(t, err)
		_, err = s.AdvanceQuestion(ctx, code)
		require.NoError(t, err)
		_, err = s.AdvanceQuestion(ctx, code)
		require.NoError(t, err)

		_, err = s.JoinRoom(ctx, code, "late", "")
		assert.ErrorIs(t, err, ErrRoomEnded)
		assert.Equal(t, Conflict, KindOf(err))
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := s.JoinRoom(ctx, "999999", "ana", "")
		assert.ErrorIs(t, err, ErrRoomNotFound)
		assert.Equal(t, NotFound, KindOf(err))
	})

	t.Run("bad username", func(t *testing.T) {
		view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
		require.NoError(t, err)
		_, err = s.JoinRoom(ctx, view.RoomCode, "   ", "")
		assert.Equal(t, ValidationFailed, KindOf(err))
		_, err = s.JoinRoom(ctx, view.RoomCode, string(make([]rune, 51)), "")
		assert.Equal(t, ValidationFailed, KindOf(err))
	})

	t.Run("join while playing", func(t *testing.T) {
		view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
		require.NoError(t, err)
		_, err = s.JoinRoom(ctx, view.RoomCode, "ana", "")
		require.NoError(t, err)
		_, err = s.StartGame(ctx, view.RoomCode)
		require.NoError(t, err)
		_, err = s.JoinRoom(ctx, view.RoomCode, "bo", "")
		assert.NoError(t, err)
	})
}

func TestStartGameRequiresLobbyWithPlayers(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	code := view.RoomCode

	_, err = s.StartGame(ctx, code)
	assert.ErrorIs(t, err, ErrCannotStart)
	assert.Equal(t, InvalidState, KindOf(err))

	_, err = s.AdvanceQuestion(ctx, code)
	assert.ErrorIs(t, err, ErrNotPlaying)

	_, err = s.JoinRoom(ctx, code, "ana", "")
	require.NoError(t, err)
	view, err = s.Room(code)
	require.NoError(t, err)
	assert.True(t, view.CanStart)

	_, err = s.StartGame(ctx, code)
	require.NoError(t, err)
	_, err = s.StartGame(ctx, code)
	assert.ErrorIs(t, err, ErrCannotStart)
}

type playing struct {
	s      *SessionService
	code   string
	player models.Player
	other  models.Player
}

func startedRoom(t *testing.T) playing {
	t.Helper()
	ctx := context.Background()
	s := newTestService(t)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	a, err := s.JoinRoom(ctx, view.RoomCode, "ana", "")
	require.NoError(t, err)
	b, err := s.JoinRoom(ctx, view.RoomCode, "bo", "")
	require.NoError(t, err)
	_, err = s.StartGame(ctx, view.RoomCode)
	require.NoError(t, err)
	return playing{s: s, code: view.RoomCode, player: a.Player, other: b.Player}
}

func (p playing) submit(id, secret, question, value string, elapsed *float64) (AnswerReceipt, error) {
	return p.s.SubmitAnswer(context.Background(), SubmitAnswerInput{
		RoomCode: p.code, PlayerID: id, PlayerSecret: secret, QuestionID: question, Value: value, Elapsed: elapsed,
	})
}

func TestSubmitAnswerChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("no live question before first advance", func(t *testing.T) {
		g := startedRoom(t)
		_, err := g.submit(g.player.ID, g.player.Secret, "q1", "true", nil)
		assert.ErrorIs(t, err, ErrNoLiveQuestion)
		assert.Equal(t, InvalidState, KindOf(err))
	})

	t.Run("not playing", func(t *testing.T) {
		s := newTestService(t)
		view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
		require.NoError(t, err)
		a, err := s.JoinRoom(ctx, view.RoomCode, "ana", "")
		require.NoError(t, err)
		_, err = s.SubmitAnswer(ctx, SubmitAnswerInput{
			RoomCode: view.RoomCode, PlayerID: a.Player.ID, PlayerSecret: a.Player.Secret, QuestionID: "q1", Value: "true",
		})
		assert.ErrorIs(t, err, ErrNotPlaying)
	})

	t.Run("unknown room", func(t *testing.T) {
		g := startedRoom(t)
		_, err := g.s.SubmitAnswer(ctx, SubmitAnswerInput{RoomCode: "111111", PlayerID: g.player.ID})
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	g := startedRoom(t)
	_, err := g.s.AdvanceQuestion(ctx, g.code)
	require.NoError(t, err)

	tests := []struct {
		name     string
		id       string
		secret   string
		question string
		value    string
		elapsed  *float64
		want     error
		kind     Kind
	}{
		{"unknown player", "ghost", g.player.Secret, "q1", "true", nil, ErrPlayerNotFound, NotFound},
		{"wrong secret", g.player.ID, g.other.Secret, "q1", "true", nil, ErrUnauthorized, Unauthorized},
		{"empty secret", g.player.ID, "", "q1", "true", nil, ErrUnauthorized, Unauthorized},
		{"unknown question", g.player.ID, g.player.Secret, "zz", "true", nil, ErrQuestionNotFound, NotFound},
		{"future question", g.player.ID, g.player.Secret, "q2", "Paris", nil, ErrStaleQuestion, InvalidState},
		{"empty value", g.player.ID, g.player.Secret, "q1", "", nil, ErrInvalidInput, ValidationFailed},
		{"negative elapsed", g.player.ID, g.player.Secret, "q1", "true", f64(-1), ErrInvalidInput, ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.submit(tt.id, tt.secret, tt.question, tt.value, tt.elapsed)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	p, err := g.s.Player(g.player.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Score)

	// rejected attempts leave no answer behind
	receipt, err := g.submit(g.player.ID, g.player.Secret, "q1", "true", f64(5))
	require.NoError(t, err)
	assert.Equal(t, 100, receipt.EarnedScore)

	t.Run("stale after advance", func(t *testing.T) {
		_, err := g.s.AdvanceQuestion(ctx, g.code)
		require.NoError(t, err)
		_, err = g.submit(g.other.ID, g.other.Secret, "q1", "true", nil)
		assert.ErrorIs(t, err, ErrStaleQuestion)
	})
}

func TestDuplicateAnswerKeepsScore(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)
	_, err := g.s.AdvanceQuestion(ctx, g.code)
	require.NoError(t, err)

	first, err := g.submit(g.player.ID, g.player.Secret, "q1", "true", nil)
	require.NoError(t, err)
	assert.Equal(t, 130, first.TotalScore)

	_, err = g.submit(g.player.ID, g.player.Secret, "q1", "true", f64(0))
	assert.ErrorIs(t, err, ErrDuplicateAnswer)
	assert.Equal(t, Conflict, KindOf(err))

	p, err := g.s.Player(g.player.ID)
	require.NoError(t, err)
	assert.Equal(t, 130, p.Score)
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)
	_, err := g.s.AdvanceQuestion(ctx, g.code)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.submit(g.player.ID, g.player.Secret, "q1", "true", f64(5)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	p, _ := g.s.Player(g.player.ID)
	assert.Equal(t, 100, p.Score)
}

func TestConcurrentPlayersAllScored(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	code := view.RoomCode

	const n = 40
	players := make([]models.Player, n)
	for i := range players {
		res, err := s.JoinRoom(ctx, code, fmt.Sprintf("player-%d", i), "")
		require.NoError(t, err)
		players[i] = res.Player
	}
	_, err = s.StartGame(ctx, code)
	require.NoError(t, err)
	_, err = s.AdvanceQuestion(ctx, code)
	require.NoError(t, err)

	sub := s.Hub().Subscribe(code)
	defer sub.Close()

	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(i int, p models.Player) {
			defer wg.Done()
			value := "true"
			if i%2 == 1 {
				value = "false"
			}
			_, err := s.SubmitAnswer(ctx, SubmitAnswerInput{
				RoomCode: code, PlayerID: p.ID, PlayerSecret: p.Secret, QuestionID: "q1", Value: value, Elapsed: f64(float64(i % 10)),
			})
			assert.NoError(t, err)
		}(i, p)
	}
	wg.Wait()

	var last comm.PositionsUpdated
	for i := 0; i < n; i++ {
		ev := nextEvent(t, sub)
		require.Equal(t, comm.EventPositionsUpdated, ev.Type)
		last = ev.Payload.(comm.PositionsUpdated)
	}
	assertNoEvent(t, sub)

	require.Len(t, last.Players, n)
	for i, p := range last.Players {
		assert.Equal(t, i+1, p.Position)
		if i > 0 {
			assert.GreaterOrEqual(t, last.Players[i-1].Score, p.Score)
		}
	}
}

func TestPlayerReady(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)
	sub := g.s.Hub().Subscribe(g.code)
	defer sub.Close()

	require.NoError(t, g.s.PlayerReady(ctx, g.player.ID))
	ev := nextEvent(t, sub)
	assert.Equal(t, comm.EventPlayerReady, ev.Type)
	assert.Equal(t, comm.PlayerReady{PlayerID: g.player.ID}, ev.Payload)

	assert.NoError(t, g.s.PlayerReady(ctx, "ghost"))
	assertNoEvent(t, sub)
}

func TestPlayerLookup(t *testing.T) {
	g := startedRoom(t)

	p, err := g.s.Player(g.player.ID)
	require.NoError(t, err)
	assert.Equal(t, g.code, p.RoomCode)
	assert.Equal(t, "ana", p.Username)

	_, err = g.s.Player("ghost")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestSubscribeStartsWithSnapshot(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)
	_, err := g.s.AdvanceQuestion(ctx, g.code)
	require.NoError(t, err)

	early := g.s.Hub().Subscribe(g.code)
	defer early.Close()

	late, err := g.s.Subscribe(g.code)
	require.NoError(t, err)
	defer late.Close()

	ev := nextEvent(t, late)
	require.Equal(t, comm.EventConnected, ev.Type)
	snap := ev.Payload.(comm.Connected).Room
	assert.Equal(t, models.RoomPlaying, snap.Status)
	assert.Equal(t, 0, snap.CurrentQuestionIndex)
	assert.Equal(t, 2, snap.PlayerCount)

	assertNoEvent(t, early)

	_, err = g.s.Subscribe("000000")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCloseRoom(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)
	sub := g.s.Hub().Subscribe(g.code)

	require.NoError(t, g.s.CloseRoom(ctx, g.code))

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	_, err := g.s.Room(g.code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.s.Player(g.player.ID)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.ErrorIs(t, g.s.CloseRoom(ctx, g.code), ErrRoomNotFound)
}

func TestAddressedRepliesKeepRoomOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)
	code := view.RoomCode

	relay := s.Hub().SubscribeRelay(code)
	defer relay.Close()
	plain := s.Hub().Subscribe(code)
	defer plain.Close()

	res, err := s.JoinRoomFor(ctx, "sock-1", code, "ana", "")
	require.NoError(t, err)
	snap, err := s.Connect(code, "sock-2")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PlayerCount)
	_, err = s.StartGame(ctx, code)
	require.NoError(t, err)

	want := []struct{ typ, to string }{
		{comm.EventJoinResponse, "sock-1"},
		{comm.EventPlayerJoined, ""},
		{comm.EventConnected, "sock-2"},
		{comm.EventGameStarted, ""},
	}
	for i, w := range want {
		ev := nextEvent(t, relay)
		assert.Equal(t, w.typ, ev.Type)
		assert.Equal(t, w.to, ev.To)
		if i == 0 {
			assert.Equal(t, res.Player.Secret, ev.Payload.(comm.JoinResponse).Player.Secret)
		}
	}
	assertNoEvent(t, relay)

	assert.Equal(t, comm.EventPlayerJoined, nextEvent(t, plain).Type)
	assert.Equal(t, comm.EventGameStarted, nextEvent(t, plain).Type)
	assertNoEvent(t, plain)
}

func TestClosedRoomRejectsWaitingCallers(t *testing.T) {
	ctx := context.Background()
	g := startedRoom(t)

	room, err := g.s.rooms.Get(g.code)
	require.NoError(t, err)
	room.Lock()
	room.Close()
	room.Unlock()

	_, err = g.s.JoinRoom(ctx, g.code, "cy", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.s.AdvanceQuestion(ctx, g.code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.submit(g.player.ID, g.player.Secret, "q1", "true", nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.s.Connect(g.code, "sock-1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.s.Room(g.code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.s.Player(g.player.ID)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.ErrorIs(t, g.s.CloseRoom(ctx, g.code), ErrRoomNotFound)
}

func TestJoinBlockedBehindCloseFails(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)

	room, err := s.rooms.Get(view.RoomCode)
	require.NoError(t, err)
	room.Lock()

	done := make(chan error, 1)
	go func() {
		_, err := s.JoinRoom(ctx, view.RoomCode, "ana", "")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	room.Close()
	s.rooms.Remove(view.RoomCode)
	s.hub.CloseTopic(view.RoomCode)
	room.Unlock()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRoomNotFound)
	case <-time.After(time.Second):
		t.Fatal("join did not return")
	}
	assert.Empty(t, s.Rooms())
}

func TestRefreshRoomAndCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	view, err := s.CreateRoom(ctx, CreateRoomInput{QuizID: "capitals"})
	require.NoError(t, err)

	require.NoError(t, s.RefreshRoom(ctx, view.RoomCode))
	claimed, err := s.Claimed(ctx, view.RoomCode)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.ErrorIs(t, s.RefreshRoom(ctx, "999999"), ErrRoomNotFound)

	assert.False(t, s.InvalidateQuiz("capitals"))
	cached := NewSessionService(session.NewRegistry(nil), fanout.NewHub(), catalog.NewCached(testCatalog()), nil)
	assert.True(t, cached.InvalidateQuiz("capitals"))
}
