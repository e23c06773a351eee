// Command import_games copies finished civsim games from a SQLite file into
// the Postgres database so they can be browsed through the API.
//
// Usage:
//
//	go run ./cmd/import_games/ --sqlite civsim.db --db postgres://...
package main

import (
	"context"
	"flag"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/logger"
	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/repository/postgres"
	"github.com/freeeve/mare-nostrum/internal/repository/sqlite"
	"github.com/freeeve/mare-nostrum/internal/sim"
)

func main() {
	sqlitePath := flag.String("sqlite", "civsim.db", "civsim SQLite database")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	prefix := flag.String("prefix", "civsim: ", "Game name prefix")
	flag.Parse()

	logger.Setup(logger.Options{Level: os.Getenv("LOG_LEVEL"), Out: os.Stderr, Color: true})

	if *dbURL == "" {
		log.Fatal().Msg("--db or DATABASE_URL is required")
	}

	src, err := sqlite.Open(*sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *sqlitePath).Msg("Failed to open sqlite")
	}
	defer src.Close()

	pg, err := postgres.Connect(*dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer pg.Close()

	ctx := context.Background()
	srcStore := src.Store()

	ids := flag.Args()
	if len(ids) == 0 {
		ids, err = finishedSimGames(ctx, srcStore)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list games")
		}
	}

	imported := importAll(ctx, srcStore, postgres.NewStore(pg), ids, *prefix)
	log.Info().Int("imported", imported).Int("requested", len(ids)).Msg("Done")
}

// importAll copies each game and returns how many made it. Failures are
// logged and skipped.
func importAll(ctx context.Context, src, dst *repository.Store, ids []string, prefix string) int {
	imported := 0
	for _, id := range ids {
		newID, err := sim.CopyGame(ctx, src, dst, id, prefix)
		if err != nil {
			log.Error().Err(err).Str("gameId", id).Msg("Import failed")
			continue
		}
		imported++
		log.Info().Str("gameId", id).Str("newId", newID).Msg("Imported game")
	}
	return imported
}

// finishedSimGames lists the finished games created by civsim. Every civsim
// game is created by its first scripted seat.
func finishedSimGames(ctx context.Context, store *repository.Store) ([]string, error) {
	creator, err := store.Users.FindByProviderID(ctx, "sim", "civsim-1")
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, nil
	}
	games, err := store.Games.ListByUser(ctx, creator.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.Before(games[j].CreatedAt) })

	var ids []string
	for _, g := range games {
		if g.Status == model.StatusFinished && g.CreatorID == creator.ID {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}
