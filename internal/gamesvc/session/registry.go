package session

import (
	"context"
	"errors"
	"sync"
)

var ErrRoomNotFound = errors.New("room not found")

// Registry indexes active rooms by code. Its lock only guards the map; room state is
// guarded by each room's own lock, so rooms never contend with each other.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	players map[string]string
	codes   CodeRegistry
}

func NewRegistry(codes CodeRegistry) *Registry {
	if codes == nil {
		codes = NewMemoryCodes()
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		players: make(map[string]string),
		codes:   codes,
	}
}

// ReserveCode claims a fresh room code. Collisions re-roll without a fixed bound.
func (g *Registry) ReserveCode(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := RandomCode()
		if err != nil {
			return "", err
		}
		ok, err := g.codes.Claim(ctx, code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
}

func (g *Registry) ReleaseCode(ctx context.Context, code string) error {
	return g.codes.Release(ctx, code)
}

// RefreshCode extends this instance's claim on code.
func (g *Registry) RefreshCode(ctx context.Context, code string) error {
	return g.codes.Refresh(ctx, code)
}

// CodeClaimed reports whether any instance holds code.
func (g *Registry) CodeClaimed(ctx context.Context, code string) (bool, error) {
	return g.codes.Claimed(ctx, code)
}

func (g *Registry) Add(r *Room) {
	g.mu.Lock()
	g.rooms[r.Code()] = r
	g.mu.Unlock()
}

func (g *Registry) Get(code string) (*Room, error) {
	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Remove drops the room and every player index entry pointing at it.
func (g *Registry) Remove(code string) {
	g.mu.Lock()
	delete(g.rooms, code)
	for id, c := range g.players {
		if c == code {
			delete(g.players, id)
		}
	}
	g.mu.Unlock()
}

// BindPlayer records which room a player belongs to.
func (g *Registry) BindPlayer(playerID, code string) {
	g.mu.Lock()
	g.players[playerID] = code
	g.mu.Unlock()
}

// RoomOf returns the room a player joined.
func (g *Registry) RoomOf(playerID string) (*Room, error) {
	g.mu.RLock()
	code, ok := g.players[playerID]
	r := g.rooms[code]
	g.mu.RUnlock()
	if !ok || r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Rooms returns the currently registered rooms in no particular order.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}
