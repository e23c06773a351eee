package civ

import (
	"errors"
	"testing"
)

// newTestGame creates a game on the sample board with no tokens placed.
func newTestGame(t *testing.T, players ...PlayerID) *GameState {
	t.Helper()
	setups := make([]PlayerSetup, len(players))
	for i, id := range players {
		setups[i] = PlayerSetup{ID: id, Name: string(id)}
	}
	gs, err := NewGame(SampleBoard(), setups)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return gs
}

// place puts n of player's stock tokens in area and fails if the stock is short.
func place(t *testing.T, gs *GameState, area AreaID, player PlayerID, n int) []TokenID {
	t.Helper()
	got := gs.PlaceFromStock(area, player, n)
	if len(got) != n {
		t.Fatalf("placed %d tokens of %s in %s, want %d", len(got), player, area, n)
	}
	return got
}

// buildCity stands a city of player in area without paying for it.
func buildCity(t *testing.T, gs *GameState, player PlayerID, area AreaID) CityID {
	t.Helper()
	id, err := gs.PlaceCity(player, area)
	if err != nil {
		t.Fatalf("PlaceCity(%s, %s): %v", player, area, err)
	}
	return id
}

// shrinkStock keeps only n tokens in player's stock. The others are taken
// out of the game entirely so the state stays consistent.
func shrinkStock(gs *GameState, player PlayerID, n int) {
	p := gs.Players[player]
	for _, tok := range p.Stock[n:] {
		delete(gs.Owners, tok)
	}
	p.Stock = p.Stock[:n]
}

// popOf builds a standalone Population with synthetic token IDs.
func popOf(counts map[PlayerID]int) Population {
	p := make(Population)
	next := TokenID(1)
	for _, id := range sortedKeys(counts) {
		for i := 0; i < counts[id]; i++ {
			p.add(id, next)
			next++
		}
	}
	return p
}

func sortedKeys(m map[PlayerID]int) []PlayerID {
	ids := make([]PlayerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortPlayerIDs(ids)
	return ids
}

// countsAfter returns each player's count once r is taken out of pop.
func countsAfter(pop Population, r Removal) map[PlayerID]int {
	out := make(map[PlayerID]int)
	for id, s := range pop {
		out[id] = s.Len() - len(r[id])
	}
	return out
}

func mustConsistent(t *testing.T, gs *GameState) {
	t.Helper()
	if err := gs.CheckConsistency(); err != nil {
		t.Fatalf("state inconsistent: %v", err)
	}
}

func isInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie) && errors.Is(err, ErrInvariant)
}

func isRejected(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// forceTo force-advances o until activity a is current.
func forceTo(t *testing.T, o *Orchestrator, a Activity) {
	t.Helper()
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; o.Activity() != a; i++ {
		if i > len(turnSequence) {
			t.Fatalf("never reached %s", a)
		}
		if err := o.ForceAdvance(); err != nil {
			t.Fatalf("ForceAdvance from %s: %v", o.Activity(), err)
		}
	}
	o.Events()
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
