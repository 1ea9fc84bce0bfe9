// Package reaper removes finished and abandoned rooms on a cron schedule.
package reaper

import (
	"context"
	"time"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/avvvet/quiz-services/internal/gamesvc/session"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Rooms is the part of the session service the reaper works on.
type Rooms interface {
	Rooms() []session.Snapshot
	CloseRoom(ctx context.Context, code string) error
	RefreshRoom(ctx context.Context, code string) error
}

type Reaper struct {
	rooms    Rooms
	endedTTL time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

func New(rooms Rooms, endedTTL, idleTTL time.Duration) *Reaper {
	return &Reaper{
		rooms:    rooms,
		endedTTL: endedTTL,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Expired reports whether a room should be removed: ended longer than endedTTL ago, or
// without any activity for idleTTL. A zero TTL disables that rule.
func (r *Reaper) Expired(snap session.Snapshot, now time.Time) bool {
	if r.endedTTL > 0 && snap.Room.Status == models.RoomEnded && snap.Room.EndedAt != nil &&
		now.Sub(*snap.Room.EndedAt) >= r.endedTTL {
		return true
	}
	return r.idleTTL > 0 && now.Sub(snap.LastActivity) >= r.idleTTL
}

// Sweep closes every expired room and returns how many were removed. Rooms that stay
// get their code claim refreshed, so a claim never runs out under a live room.
func (r *Reaper) Sweep(ctx context.Context) int {
	now := r.now()
	removed := 0
	for _, snap := range r.rooms.Rooms() {
		if !r.Expired(snap, now) {
			if err := r.rooms.RefreshRoom(ctx, snap.Room.Code); err != nil {
				log.WithField("room", snap.Room.Code).Errorf("refresh room code: %s", err)
			}
			continue
		}
		if err := r.rooms.CloseRoom(ctx, snap.Room.Code); err != nil {
			log.WithField("room", snap.Room.Code).Errorf("reap room: %s", err)
			continue
		}
		removed++
	}
	return removed
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (r *Reaper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n := r.Sweep(ctx); n > 0 {
			log.Infof("reaped %d rooms", n)
		}
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
