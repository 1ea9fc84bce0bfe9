package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/avvvet/quiz-services/internal/gamesvc/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	snaps     []session.Snapshot
	closed    []string
	refreshed []string
	fail      map[string]bool
}

func (f *fakeRooms) Rooms() []session.Snapshot { return f.snaps }

func (f *fakeRooms) CloseRoom(_ context.Context, code string) error {
	if f.fail[code] {
		return errors.New("busy")
	}
	f.closed = append(f.closed, code)
	return nil
}

func (f *fakeRooms) RefreshRoom(_ context.Context, code string) error {
	f.refreshed = append(f.refreshed, code)
	if f.fail[code] {
		return errors.New("claim lost")
	}
	return nil
}

func snap(code string, status models.RoomStatus, endedAgo, idleFor time.Duration, now time.Time) session.Snapshot {
	s := session.Snapshot{
		Room:         models.Room{Code: code, Status: status},
		LastActivity: now.Add(-idleFor),
	}
	if status == models.RoomEnded {
		ended := now.Add(-endedAgo)
		s.Room.EndedAt = &ended
	}
	return s
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rooms := &fakeRooms{
		snaps: []session.Snapshot{
			snap("111111", models.RoomEnded, 11*time.Minute, 11*time.Minute, now),
			snap("222222", models.RoomEnded, 2*time.Minute, 2*time.Minute, now),
			snap("333333", models.RoomLobby, 0, 3*time.Hour, now),
			snap("444444", models.RoomPlaying, 0, 5*time.Minute, now),
			snap("555555", models.RoomLobby, 0, 4*time.Hour, now),
		},
		fail: map[string]bool{"555555": true},
	}

	r := New(rooms, 10*time.Minute, 2*time.Hour)
	r.now = func() time.Time { return now }

	assert.Equal(t, 2, r.Sweep(context.Background()))
	assert.Equal(t, []string{"111111", "333333"}, rooms.closed)
	assert.Equal(t, []string{"222222", "444444"}, rooms.refreshed)
}

func TestZeroTTLDisablesRule(t *testing.T) {
	now := time.Now()
	r := New(&fakeRooms{}, 0, 0)
	assert.False(t, r.Expired(snap("111111", models.RoomEnded, time.Hour, time.Hour, now), now))
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := New(&fakeRooms{}, time.Minute, time.Minute)
	assert.Error(t, r.Start("every now and then"))

	require.NoError(t, r.Start("@every 1h"))
	r.Stop()
}
