package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/repository"
	redisrepo "github.com/freeeve/mare-nostrum/internal/repository/redis"
)

// DeadlineHandler applies the default decisions of a game whose deadline
// passed.
type DeadlineHandler interface {
	HandleDeadline(ctx context.Context, gameID string) error
}

// TimerListener listens for Redis keyspace notifications on expired timer keys
// and hands the game to the deadline handler. A poller over the phase table
// runs alongside it and is the only source of deadlines without Redis.
type TimerListener struct {
	rdb       *redis.Client
	handler   DeadlineHandler
	phaseRepo repository.PhaseRepository
	interval  time.Duration
}

// NewTimerListener creates a TimerListener. rdb may be nil.
func NewTimerListener(rdb *redis.Client, handler DeadlineHandler, phaseRepo repository.PhaseRepository) *TimerListener {
	return &TimerListener{rdb: rdb, handler: handler, phaseRepo: phaseRepo, interval: 10 * time.Second}
}

// Start runs until ctx is done.
func (t *TimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollExpiredPhases(ctx)
}

func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, redisrepo.ExpiredChannelFor(t.rdb.Options().DB))
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *TimerListener) pollExpiredPhases(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Phase deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Phase deadline poller stopped")
			return
		case <-ticker.C:
			t.checkExpiredPhases(ctx)
		}
	}
}

// checkExpiredPhases handles every open phase past its deadline.
func (t *TimerListener) checkExpiredPhases(ctx context.Context) {
	phases, err := t.phaseRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired phases")
		return
	}
	if len(phases) > 0 {
		log.Info().Int("count", len(phases)).Msg("Poller found expired phases")
	}
	for _, p := range phases {
		log.Info().Str("gameId", p.GameID).Str("activity", p.Activity).Int("turn", p.Turn).
			Time("deadline", p.Deadline).Msg("Poller handling expired phase")
		if err := t.handler.HandleDeadline(ctx, p.GameID); err != nil {
			log.Error().Err(err).Str("gameId", p.GameID).Msg("Deadline handling failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only game timer keys are acted on.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	gameID, ok := redisrepo.ParseTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("gameId", gameID).Msg("Timer expired, applying default decisions")
	if err := t.handler.HandleDeadline(ctx, gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Deadline handling failed after timer expiry")
	}
}
