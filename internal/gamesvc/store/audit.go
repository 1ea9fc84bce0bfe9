package store

import (
	"context"
	"sync"
	"time"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// AuditWriter persists the session audit trail.
type AuditWriter interface {
	InsertRoom(ctx context.Context, r models.Room) error
	UpdateRoom(ctx context.Context, r models.Room) error
	InsertPlayer(ctx context.Context, p models.Player) error
	UpdatePlayerScore(ctx context.Context, p models.Player) error
	InsertAnswer(ctx context.Context, a models.Answer) error
}

// PgAudit is the Postgres AuditWriter.
type PgAudit struct {
	*RoomStore
	*PlayerStore
	*AnswerStore
}

func NewPgAudit(db *pgxpool.Pool) *PgAudit {
	return &PgAudit{
		RoomStore:   NewRoomStore(db),
		PlayerStore: NewPlayerStore(db),
		AnswerStore: NewAnswerStore(db),
	}
}

// AuditLog receives session changes. Calls must not block the caller.
type AuditLog interface {
	RoomCreated(r models.Room)
	RoomChanged(r models.Room)
	PlayerJoined(p models.Player)
	PlayerScored(p models.Player)
	AnswerRecorded(a models.Answer)
}

type NopAudit struct{}

func (NopAudit) RoomCreated(models.Room)      {}
func (NopAudit) RoomChanged(models.Room)      {}
func (NopAudit) PlayerJoined(models.Player)   {}
func (NopAudit) PlayerScored(models.Player)   {}
func (NopAudit) AnswerRecorded(models.Answer) {}

type auditJob struct {
	name string
	key  string
	run  func(ctx context.Context, w AuditWriter) error
}

// Recorder is an AuditLog that hands writes to a single worker goroutine in arrival
// order. When the buffer is full the write is dropped and logged.
type Recorder struct {
	w       AuditWriter
	jobs    chan auditJob
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(w AuditWriter, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		w:       w,
		jobs:    make(chan auditJob, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := job.run(ctx, r.w); err != nil {
			log.WithFields(log.Fields{"op": job.name, "key": job.key}).Errorf("audit write failed: %s", err)
		}
		cancel()
	}
}

func (r *Recorder) enqueue(job auditJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job:
	default:
		log.WithFields(log.Fields{"op": job.name, "key": job.key}).Warn("audit buffer full, write dropped")
	}
}

// Close stops accepting writes and waits until the queued ones are flushed.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) RoomCreated(room models.Room) {
	r.enqueue(auditJob{name: "insert_room", key: room.Code, run: func(ctx context.Context, w AuditWriter) error {
		return w.InsertRoom(ctx, room)
	}})
}

func (r *Recorder) RoomChanged(room models.Room) {
	r.enqueue(auditJob{name: "update_room", key: room.Code, run: func(ctx context.Context, w AuditWriter) error {
		return w.UpdateRoom(ctx, room)
	}})
}

func (r *Recorder) PlayerJoined(p models.Player) {
	r.enqueue(auditJob{name: "insert_player", key: p.ID, run: func(ctx context.Context, w AuditWriter) error {
		return w.InsertPlayer(ctx, p)
	}})
}

func (r *Recorder) PlayerScored(p models.Player) {
	r.enqueue(auditJob{name: "update_player", key: p.ID, run: func(ctx context.Context, w AuditWriter) error {
		return w.UpdatePlayerScore(ctx, p)
	}})
}

func (r *Recorder) AnswerRecorded(a models.Answer) {
	r.enqueue(auditJob{name: "insert_answer", key: a.PlayerID, run: func(ctx context.Context, w AuditWriter) error {
		return w.InsertAnswer(ctx, a)
	}})
}
