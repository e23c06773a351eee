package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

// ErrNotFinished is returned when copying a game that is still running.
var ErrNotFinished = errors.New("game is not finished")

// CopyGame copies a finished game with its seats, phase history and command
// log from src to dst, typically from a civsim sqlite file into the server's
// postgres database. Users are matched by provider identity. The new game's
// name gets prefix prepended. It returns the new game ID.
func CopyGame(ctx context.Context, src, dst *repository.Store, gameID, prefix string) (string, error) {
	game, err := src.Games.FindByID(ctx, gameID)
	if err != nil {
		return "", fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return "", fmt.Errorf("game %s not found", gameID)
	}
	if game.Status != model.StatusFinished {
		return "", fmt.Errorf("copy %s: %w", gameID, ErrNotFinished)
	}

	users := make(map[string]string)
	mapUser := func(id string) (string, error) {
		if id == "" {
			return "", nil
		}
		if mapped, ok := users[id]; ok {
			return mapped, nil
		}
		u, err := src.Users.FindByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("find user %s: %w", id, err)
		}
		if u == nil {
			return "", fmt.Errorf("user %s not found", id)
		}
		copied, err := dst.Users.Upsert(ctx, u.Provider, u.ProviderID, u.DisplayName, u.AvatarURL)
		if err != nil {
			return "", fmt.Errorf("upsert user %s: %w", u.DisplayName, err)
		}
		users[id] = copied.ID
		return copied.ID, nil
	}

	creator, err := mapUser(game.CreatorID)
	if err != nil {
		return "", err
	}
	created, err := dst.Games.Create(ctx, repository.NewGame{
		Name:         prefix + game.Name,
		CreatorID:    creator,
		MapID:        game.MapID,
		MaxPlayers:   game.MaxPlayers,
		MaxTurns:     game.MaxTurns,
		PhaseSeconds: game.PhaseSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}

	for _, seat := range game.Players {
		uid, err := mapUser(seat.UserID)
		if err != nil {
			return "", err
		}
		seat.GameID, seat.UserID = created.ID, uid
		if err := dst.Games.JoinGame(ctx, seat); err != nil {
			return "", fmt.Errorf("seat %s: %w", seat.PlayerID, err)
		}
	}
	if err := dst.Games.SetStarted(ctx, created.ID); err != nil {
		return "", err
	}

	phases, err := src.Phases.ListPhases(ctx, gameID)
	if err != nil {
		return "", fmt.Errorf("list phases: %w", err)
	}
	for _, p := range phases {
		np, err := dst.Phases.CreatePhase(ctx, created.ID, p.Turn, p.Activity, p.StateBefore, p.Deadline)
		if err != nil {
			return "", fmt.Errorf("create phase %d %s: %w", p.Turn, p.Activity, err)
		}
		cmds, err := src.Commands.CommandsByPhase(ctx, p.ID)
		if err != nil {
			return "", fmt.Errorf("commands of phase %s: %w", p.ID, err)
		}
		for _, c := range cmds {
			uid, err := mapUser(c.UserID)
			if err != nil {
				return "", err
			}
			c.ID, c.GameID, c.PhaseID, c.UserID = "", created.ID, np.ID, uid
			if err := dst.Commands.SaveCommand(ctx, &c); err != nil {
				return "", fmt.Errorf("save command: %w", err)
			}
		}
		if p.ResolvedAt != nil {
			if err := dst.Phases.ResolvePhase(ctx, np.ID, p.StateAfter); err != nil {
				return "", fmt.Errorf("resolve phase %d %s: %w", p.Turn, p.Activity, err)
			}
		}
	}

	if err := dst.Games.SetFinished(ctx, created.ID, game.Winner); err != nil {
		return "", err
	}
	return created.ID, nil
}
