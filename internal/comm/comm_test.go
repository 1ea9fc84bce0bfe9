package comm

import (
	"encoding/json"
	"testing"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(typ, room, data string) WSMessage {
	m := WSMessage{Type: typ, RoomCode: room}
	if data != "" {
		m.Data = json.RawMessage(data)
	}
	return m
}

func TestParseAction(t *testing.T) {
	elapsed := 2.5

	tests := []struct {
		name string
		in   WSMessage
		want Action
	}{
		{"join", msg("join", "123456", `{"username":"ana","avatar":"x"}`), JoinAction{RoomCode: "123456", Username: "ana", Avatar: "x"}},
		{"start", msg("start", "123456", ""), StartAction{RoomCode: "123456"}},
		{"advance", msg("advance_question", "123456", ""), AdvanceAction{RoomCode: "123456"}},
		{"next question alias", msg("next_question", "123456", ""), AdvanceAction{RoomCode: "123456"}},
		{"submit", msg("submit_answer", "123456", `{"player_id":"p","player_secret":"s","question_id":"q","answer":"true","time_taken":2.5}`),
			SubmitAnswerAction{RoomCode: "123456", PlayerID: "p", PlayerSecret: "s", QuestionID: "q", Answer: "true", TimeTaken: &elapsed}},
		{"submit without time", msg("submit_answer", "123456", `{"player_id":"p","player_secret":"s","question_id":"q","answer":"a"}`),
			SubmitAnswerAction{RoomCode: "123456", PlayerID: "p", PlayerSecret: "s", QuestionID: "q", Answer: "a"}},
		{"ready", msg("player_ready", "", `{"player_id":"p"}`), PlayerReadyAction{PlayerID: "p"}},
		{"subscribe", msg("subscribe", "654321", ""), SubscribeAction{RoomCode: "654321"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionRejects(t *testing.T) {
	tests := []struct {
		name string
		in   WSMessage
	}{
		{"bad room code", msg("start", "12345", "")},
		{"leading zero code", msg("start", "012345", "")},
		{"letters in code", msg("subscribe", "12a456", "")},
		{"join without data", msg("join", "123456", "")},
		{"join blank username", msg("join", "123456", `{"username":"  "}`)},
		{"malformed data", msg("submit_answer", "123456", `{"player_id":`)},
		{"submit missing secret", msg("submit_answer", "123456", `{"player_id":"p","question_id":"q","answer":"a"}`)},
		{"submit empty answer", msg("submit_answer", "123456", `{"player_id":"p","player_secret":"s","question_id":"q","answer":""}`)},
		{"submit negative time", msg("submit_answer", "123456", `{"player_id":"p","player_secret":"s","question_id":"q","answer":"a","time_taken":-1}`)},
		{"ready without player", msg("player_ready", "", `{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAction(tt.in)
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}

	_, err := ParseAction(msg("dance", "123456", ""))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEncodeKeepsSecretOnlyInJoinResponse(t *testing.T) {
	p := &models.Player{ID: "p1", Username: "ana", Secret: "deadbeef"}

	b, err := Encode(EventPlayerJoined, "123456", "", PlayerJoined{Player: p.Public(), PlayerCount: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "deadbeef")

	b, err = Encode(EventJoinResponse, "123456", "sock-1", JoinResponse{
		Player: JoinedPlayer{PublicPlayer: p.Public(), RoomCode: "123456", Secret: p.Secret},
	})
	require.NoError(t, err)

	m, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, m.IsPrivate())
	assert.Equal(t, EventJoinResponse, m.Type)

	var resp JoinResponse
	require.NoError(t, json.Unmarshal(m.Data, &resp))
	assert.Equal(t, "deadbeef", resp.Player.Secret)
	assert.Equal(t, "ana", resp.Player.Username)
}

func TestRoomActionSubject(t *testing.T) {
	assert.Equal(t, "socket.service.123456", RoomActionSubject("123456"))
	assert.Equal(t, SocketServiceTopic, RoomActionSubject(""))
}
