package civ

import (
	"fmt"
	"sort"
)

// PlayerID identifies a player (a civilization) in a game.
type PlayerID string

// AreaID identifies a map area.
type AreaID string

// TokenID identifies a single population token. Tokens are allocated once when
// the game is created and never destroyed.
type TokenID int

// CityID identifies a city marker.
type CityID int

// AreaDef is the static description of a map area.
type AreaDef struct {
	ID            AreaID
	Name          string
	MaxPopulation int  // Population limit; always >= 1
	Volcano       bool // Area can erupt during a volcano/earthquake calamity
	FloodPlain    bool // Area is affected by floods
	CitySite      bool // A city can be built here with fewer tokens
	Neighbors     []AreaID
}

// Board holds the static area graph. A Board is never mutated after NewBoard
// returns, so it can be shared between games.
type Board struct {
	ID    string
	areas map[AreaID]*AreaDef
	ids   []AreaID
}

// NewBoard validates the area definitions and builds a Board.
// Adjacency must be symmetric and every area must have a positive capacity.
func NewBoard(id string, defs []AreaDef) (*Board, error) {
	b := &Board{
		ID:    id,
		areas: make(map[AreaID]*AreaDef, len(defs)),
		ids:   make([]AreaID, 0, len(defs)),
	}
	for i := range defs {
		d := defs[i]
		if d.ID == "" {
			return nil, fmt.Errorf("board %s: area %d has no id", id, i)
		}
		if _, dup := b.areas[d.ID]; dup {
			return nil, fmt.Errorf("board %s: duplicate area %s", id, d.ID)
		}
		if d.MaxPopulation < 1 {
			return nil, fmt.Errorf("board %s: area %s has population limit %d", id, d.ID, d.MaxPopulation)
		}
		d.Neighbors = append([]AreaID(nil), d.Neighbors...)
		sortAreaIDs(d.Neighbors)
		b.areas[d.ID] = &d
		b.ids = append(b.ids, d.ID)
	}
	sortAreaIDs(b.ids)

	for _, d := range b.areas {
		for _, n := range d.Neighbors {
			other, ok := b.areas[n]
			if !ok {
				return nil, fmt.Errorf("board %s: area %s borders unknown area %s", id, d.ID, n)
			}
			if n == d.ID {
				return nil, fmt.Errorf("board %s: area %s borders itself", id, d.ID)
			}
			if !containsArea(other.Neighbors, d.ID) {
				return nil, fmt.Errorf("board %s: adjacency %s -> %s has no reverse", id, d.ID, n)
			}
		}
	}
	return b, nil
}

// Area returns the definition of an area, or nil if the board has no such area.
func (b *Board) Area(id AreaID) *AreaDef {
	return b.areas[id]
}

// IDs returns every area ID in ascending order. The slice must not be modified.
func (b *Board) IDs() []AreaID {
	return b.ids
}

// Len returns the number of areas on the board.
func (b *Board) Len() int {
	return len(b.ids)
}

// Neighbors returns the areas bordering id in ascending order.
func (b *Board) Neighbors(id AreaID) []AreaID {
	d := b.areas[id]
	if d == nil {
		return nil
	}
	return d.Neighbors
}

// Adjacent reports whether tokens can move directly between a and c.
func (b *Board) Adjacent(a, c AreaID) bool {
	d := b.areas[a]
	return d != nil && containsArea(d.Neighbors, c)
}

func containsArea(ids []AreaID, id AreaID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func sortAreaIDs(ids []AreaID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortPlayerIDs(ids []PlayerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
