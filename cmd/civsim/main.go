package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/cards"
	"github.com/freeeve/mare-nostrum/internal/config"
	"github.com/freeeve/mare-nostrum/internal/logger"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/repository/memory"
	"github.com/freeeve/mare-nostrum/internal/repository/sqlite"
	"github.com/freeeve/mare-nostrum/internal/sim"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

func main() {
	var (
		numGames     int
		workers      int
		players      int
		maxTurns     int
		seed         int64
		storage      string
		dbPath       string
		cardsPath    string
		calamityRate float64
		moveRate     float64
		verbose      bool
		jsonOut      bool
	)

	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.IntVar(&players, "players", 3, "Players per game")
	flag.IntVar(&maxTurns, "turns", 10, "Turns per game")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = random)")
	flag.StringVar(&storage, "storage", config.DriverSQLite, "Storage backend (sqlite or memory)")
	flag.StringVar(&dbPath, "db", "civsim.db", "SQLite database path")
	flag.StringVar(&cardsPath, "cards", "", "Card definitions YAML (default: embedded deck)")
	flag.Float64Var(&calamityRate, "calamities", 0.25, "Chance per player and turn of drawing a calamity")
	flag.Float64Var(&moveRate, "moves", 0.6, "Chance of marching out of each occupied area")
	flag.BoolVar(&verbose, "v", false, "Log engine events")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")

	flag.Parse()

	level := "info"
	if verbose {
		level = "debug"
	}
	logger.Setup(logger.Options{Level: level, Out: os.Stderr, Color: true})

	deck, err := cards.Load(cardsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cardsPath).Msg("Failed to load cards")
	}

	store, err := openStore(storage, dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("storage", storage).Msg("Storage setup failed")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	// Run games
	results := make([]*sim.ArenaResult, numGames)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(workers, 1))
	errCount := 0

	for i := 0; i < numGames; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			gameSeed := seed
			if seed != 0 {
				gameSeed = seed + int64(idx)
			}

			cfg := sim.ArenaConfig{
				GameName:     fmt.Sprintf("civsim-%d", idx+1),
				Players:      players,
				MaxTurns:     maxTurns,
				Seed:         gameSeed,
				CalamityRate: calamityRate,
				MoveRate:     moveRate,
			}

			result, err := sim.RunGame(ctx, cfg, store, deck)
			if err != nil {
				log.Error().Err(err).Int("game", idx+1).Msg("Game failed")
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			results[idx] = result
			mu.Unlock()

			log.Info().Int("game", idx+1).Str("winner", result.Winner).Str("reason", result.Reason).Int("phases", result.TotalPhases).Msg("Game completed")
		}(i)
	}

	wg.Wait()

	if jsonOut {
		printJSON(results, numGames, errCount)
	} else {
		printSummary(results, players, maxTurns, errCount)
	}
	if errCount > 0 {
		store.Close()
		os.Exit(1)
	}
}

// openStore returns the repositories for a simulation run. SQLite keeps the
// phase history and command log; live state stays in memory either way.
func openStore(driver, path string) (*repository.Store, error) {
	switch driver {
	case config.DriverMemory:
		return memory.New().Store(), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		store := db.Store()
		store.Cache = memory.NewCache()
		return store, nil
	default:
		return nil, fmt.Errorf("storage %q not supported by civsim", driver)
	}
}

func printSummary(results []*sim.ArenaResult, players, maxTurns, errCount int) {
	type stats struct {
		wins       int
		cities     int
		population int
		cards      int
		games      int
	}

	byPlayer := make(map[civ.PlayerID]*stats)
	var order []civ.PlayerID
	for i := range players {
		id := civ.PlayerID(fmt.Sprintf("p%d", i+1))
		byPlayer[id] = &stats{}
		order = append(order, id)
	}

	completed, commands, rejected, calamities := 0, 0, 0, 0
	reasons := make(map[string]int)
	for _, r := range results {
		if r == nil {
			continue
		}
		completed++
		commands += r.Commands
		rejected += r.Rejected
		calamities += r.Calamities
		reasons[r.Reason]++
		for _, st := range r.Standings {
			s := byPlayer[st.Player]
			if s == nil {
				continue
			}
			s.games++
			s.cities += st.Cities
			s.population += st.Population
			s.cards += st.CivCards
			if string(st.Player) == r.Winner {
				s.wins++
			}
		}
	}

	fmt.Printf("\nResults (%d games, %d players, %d turns):\n", completed, players, maxTurns)
	if errCount > 0 {
		fmt.Printf("  (%d games failed)\n", errCount)
	}
	for _, id := range order {
		s := byPlayer[id]
		avg := func(n int) float64 {
			if s.games == 0 {
				return 0
			}
			return float64(n) / float64(s.games)
		}
		fmt.Printf("  %-4s %3d wins  -- avg cities: %.1f  avg population: %.1f  avg cards: %.1f\n",
			id, s.wins, avg(s.cities), avg(s.population), avg(s.cards))
	}
	fmt.Printf("\n  commands: %d (%d rejected), calamities drawn: %d\n", commands, rejected, calamities)
	for reason, n := range reasons {
		fmt.Printf("  ended by %s: %d\n", reason, n)
	}
}

func printJSON(results []*sim.ArenaResult, total, errCount int) {
	out := struct {
		Total   int                `json:"total"`
		Errors  int                `json:"errors"`
		Results []*sim.ArenaResult `json:"results"`
	}{
		Total:   total,
		Errors:  errCount,
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
