package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Cache is an in-process GameCache. Timers are kept as deadlines; the phase
// poller finds expired phases through the phase repository instead of
// keyspace events.
type Cache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
	passed map[string]map[string]bool
	timers map[string]time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		states: make(map[string]json.RawMessage),
		passed: make(map[string]map[string]bool),
		timers: make(map[string]time.Time),
	}
}

// SetGameState stores the serialized state of a game.
func (c *Cache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[gameID] = append(json.RawMessage(nil), state...)
	return nil
}

// GetGameState returns the stored state, or nil when none is cached.
func (c *Cache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[gameID]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), s...), nil
}

// MarkPassed records that a player is done with the current activity.
func (c *Cache) MarkPassed(_ context.Context, gameID, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.passed[gameID] == nil {
		c.passed[gameID] = make(map[string]bool)
	}
	c.passed[gameID][playerID] = true
	return nil
}

// PassedPlayers returns the players marked passed, sorted.
func (c *Cache) PassedPlayers(_ context.Context, gameID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id := range c.passed[gameID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetTimer records the deadline of the current activity.
func (c *Cache) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[gameID] = deadline
	return nil
}

// Deadline returns the recorded deadline of a game.
func (c *Cache) Deadline(gameID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.timers[gameID]
	return d, ok
}

// ClearTimer forgets the deadline of a game.
func (c *Cache) ClearTimer(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, gameID)
	return nil
}

// ClearPhaseData drops the passed set and the timer of a game.
func (c *Cache) ClearPhaseData(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.passed, gameID)
	delete(c.timers, gameID)
	return nil
}

// DeleteGameData drops everything cached for a game.
func (c *Cache) DeleteGameData(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, gameID)
	delete(c.passed, gameID)
	delete(c.timers, gameID)
	return nil
}
