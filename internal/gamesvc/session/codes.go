package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeMin   = 100000
	codeRange = 900000
)

// ErrCodeLost is returned when a refreshed claim is held by another instance.
var ErrCodeLost = errors.New("room code claimed by another instance")

// CodeRegistry tracks which room codes are in use.
type CodeRegistry interface {
	// Claim reserves code and reports false if it is already taken.
	Claim(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
	// Refresh keeps a claim alive for as long as the room is.
	Refresh(ctx context.Context, code string) error
	Claimed(ctx context.Context, code string) (bool, error)
}

// RandomCode returns a 6-digit code in [100000, 999999].
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	return fmt.Sprintf("%06d", codeMin+n.Int64()), nil
}

type MemoryCodes struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

func NewMemoryCodes() *MemoryCodes {
	return &MemoryCodes{codes: make(map[string]struct{})}
}

func (m *MemoryCodes) Claim(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code]; ok {
		return false, nil
	}
	m.codes[code] = struct{}{}
	return true, nil
}

func (m *MemoryCodes) Release(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.codes, code)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCodes) Refresh(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code] = struct{}{}
	return nil
}

func (m *MemoryCodes) Claimed(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.codes[code]
	return ok, nil
}

// RedisCodes shares code ownership between game service instances. Each claim is a
// SETNX with a TTL so codes of crashed instances eventually free up.
type RedisCodes struct {
	client   *redis.Client
	owner    string
	ttl      time.Duration
	keyspace string
}

func NewRedisCodes(client *redis.Client, owner string, ttl time.Duration) *RedisCodes {
	return &RedisCodes{
		client:   client,
		owner:    owner,
		ttl:      ttl,
		keyspace: "room_code",
	}
}

func (c *RedisCodes) key(code string) string {
	return fmt.Sprintf("%s:%s", c.keyspace, code)
}

func (c *RedisCodes) Claim(ctx context.Context, code string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(code), c.owner, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim room code %s: %w", code, err)
	}
	return ok, nil
}

func (c *RedisCodes) Release(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, c.key(code)).Err(); err != nil {
		return fmt.Errorf("release room code %s: %w", code, err)
	}
	return nil
}

// Refresh resets the TTL of a claim this instance holds. An expired claim is taken back
// when nobody else grabbed the code in the meantime.
func (c *RedisCodes) Refresh(ctx context.Context, code string) error {
	owner, err := c.client.Get(ctx, c.key(code)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		ok, err := c.Claim(ctx, code)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refresh room code %s: %w", code, ErrCodeLost)
		}
		return nil
	case err != nil:
		return fmt.Errorf("refresh room code %s: %w", code, err)
	case owner != c.owner:
		return fmt.Errorf("refresh room code %s: %w", code, ErrCodeLost)
	}
	if err := c.client.Expire(ctx, c.key(code), c.ttl).Err(); err != nil {
		return fmt.Errorf("refresh room code %s: %w", code, err)
	}
	return nil
}

func (c *RedisCodes) Claimed(ctx context.Context, code string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(code)).Result()
	if err != nil {
		return false, fmt.Errorf("check room code %s: %w", code, err)
	}
	return n > 0, nil
}
