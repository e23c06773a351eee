package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for live game data.
func stateKey(gameID string) string  { return "game:" + gameID + ":state" }
func passedKey(gameID string) string { return "game:" + gameID + ":passed" }
func timerKey(gameID string) string  { return "game:" + gameID + ":timer" }

// ParseTimerKey returns the game ID of a timer key.
func ParseTimerKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "game:") || !strings.HasSuffix(key, ":timer") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, "game:"), ":timer")
	if id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

// SetGameState stores the live game state JSON.
func (c *Client) SetGameState(ctx context.Context, gameID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(gameID), []byte(state), 0).Err()
}

// GetGameState retrieves the live game state JSON, or nil when none is cached.
func (c *Client) GetGameState(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return json.RawMessage(data), nil
}

// MarkPassed records that a player passed the current activity.
func (c *Client) MarkPassed(ctx context.Context, gameID, playerID string) error {
	return c.rdb.SAdd(ctx, passedKey(gameID), playerID).Err()
}

// PassedPlayers returns the players that passed the current activity, sorted.
func (c *Client) PassedPlayers(ctx context.Context, gameID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, passedKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("passed players: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// phaseGracePeriod is the extra time after the displayed deadline before
// the deadline fires, giving players a few seconds of leeway.
const phaseGracePeriod = 5 * time.Second

// SetTimer creates a timer key with a TTL. When the key expires, keyspace
// notifications trigger deadline handling.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + phaseGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a game.
func (c *Client) ClearTimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, timerKey(gameID)).Err()
}

// ClearPhaseData removes the passed set and timer when an activity ends.
func (c *Client) ClearPhaseData(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, passedKey(gameID), timerKey(gameID)).Err()
}

// DeleteGameData removes all live data for a game (on game end).
func (c *Client) DeleteGameData(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, stateKey(gameID), passedKey(gameID), timerKey(gameID)).Err()
}
