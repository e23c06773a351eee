package civ

import "fmt"

// AreaMark is the per-area gate state for the current activity.
type AreaMark uint8

const (
	AreaClear        AreaMark = iota
	AreaConflict              // Unresolved conflict between players
	AreaCityConflict          // Tokens of other players in a city area
	AreaSurplus               // Over its population limit after conflicts
)

func (m AreaMark) String() string {
	switch m {
	case AreaClear:
		return "clear"
	case AreaConflict:
		return "conflict"
	case AreaCityConflict:
		return "city_conflict"
	case AreaSurplus:
		return "surplus"
	default:
		return "unknown"
	}
}

// BuiltCity is a city marker standing in an area.
type BuiltCity struct {
	Owner PlayerID `json:"owner"`
	Token CityID   `json:"token"`
}

// AreaState is the mutable part of an area.
type AreaState struct {
	Population Population `json:"population"`
	City       *BuiltCity `json:"city,omitempty"`
	Mark       AreaMark   `json:"mark"`
}

// HeldCalamity is a calamity waiting to be resolved against a player.
type HeldCalamity struct {
	Player PlayerID     `json:"player"`
	Kind   CalamityKind `json:"kind"`
}

// GameState is a complete snapshot of a game.
type GameState struct {
	MapID       string                `json:"map_id"`
	Turn        int                   `json:"turn"`
	Activity    Activity              `json:"activity"`
	Started     bool                  `json:"started"`
	Players     map[PlayerID]*Player  `json:"players"`
	PlayerOrder []PlayerID            `json:"player_order"`
	CensusOrder []PlayerID            `json:"census_order,omitempty"`
	Areas       map[AreaID]*AreaState `json:"areas"`
	Owners      map[TokenID]PlayerID  `json:"owners"`
	CityOwners  map[CityID]PlayerID   `json:"city_owners"`
	Moved       TokenSet              `json:"moved"`
	Calamities  []HeldCalamity        `json:"pending_calamities,omitempty"`
}

// PlayerSetup describes a player joining a new game. Start, when set, receives
// the player's first token.
type PlayerSetup struct {
	ID    PlayerID
	Name  string
	Start AreaID
}

// NewGame creates the initial state: every token and city marker sits in its
// owner's stock, except one token per player placed in its start area.
func NewGame(b *Board, setups []PlayerSetup) (*GameState, error) {
	if len(setups) == 0 {
		return nil, fmt.Errorf("new game: no players")
	}
	gs := &GameState{
		MapID:      b.ID,
		Turn:       1,
		Activity:   PopulationExpansion,
		Players:    make(map[PlayerID]*Player, len(setups)),
		Areas:      make(map[AreaID]*AreaState, b.Len()),
		Owners:     make(map[TokenID]PlayerID, len(setups)*DefaultTokenStock),
		CityOwners: make(map[CityID]PlayerID, len(setups)*DefaultCityStock),
		Moved:      make(TokenSet),
	}
	for _, id := range b.IDs() {
		gs.Areas[id] = &AreaState{Population: make(Population)}
	}

	nextToken, nextCity := TokenID(1), CityID(1)
	for _, s := range setups {
		if s.ID == "" {
			return nil, fmt.Errorf("new game: player without id")
		}
		if _, dup := gs.Players[s.ID]; dup {
			return nil, fmt.Errorf("new game: duplicate player %s", s.ID)
		}
		if s.Start != "" && b.Area(s.Start) == nil {
			return nil, fmt.Errorf("new game: player %s starts in unknown area %s", s.ID, s.Start)
		}
		p := &Player{
			ID:     s.ID,
			Name:   s.Name,
			Areas:  make(map[AreaID]TokenSet),
			Cities: make(map[AreaID]CityID),
		}
		for i := 0; i < DefaultTokenStock; i++ {
			p.Stock = append(p.Stock, nextToken)
			gs.Owners[nextToken] = s.ID
			nextToken++
		}
		for i := 0; i < DefaultCityStock; i++ {
			p.CityStock = append(p.CityStock, nextCity)
			gs.CityOwners[nextCity] = s.ID
			nextCity++
		}
		gs.Players[s.ID] = p
		gs.PlayerOrder = append(gs.PlayerOrder, s.ID)
		if s.Start != "" {
			gs.PlaceFromStock(s.Start, s.ID, 1)
		}
	}
	gs.CensusOrder = append([]PlayerID(nil), gs.PlayerOrder...)
	return gs, nil
}

// Player returns the player record, or nil.
func (gs *GameState) Player(id PlayerID) *Player {
	return gs.Players[id]
}

// Area returns the mutable state of an area, or nil.
func (gs *GameState) Area(id AreaID) *AreaState {
	return gs.Areas[id]
}

// PopulationOf returns the number of tokens player has on the board.
func (gs *GameState) PopulationOf(player PlayerID) int {
	p := gs.Players[player]
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.Areas {
		n += len(s)
	}
	return n
}

// CityCount returns the number of cities player has on the board.
func (gs *GameState) CityCount(player PlayerID) int {
	p := gs.Players[player]
	if p == nil {
		return 0
	}
	return len(p.Cities)
}

// AreaTokens returns player's tokens in area in ascending order.
func (gs *GameState) AreaTokens(area AreaID, player PlayerID) []TokenID {
	st := gs.Areas[area]
	if st == nil {
		return nil
	}
	return st.Population.Tokens(player)
}

// IsAlive reports whether player still has tokens or cities on the board.
func (gs *GameState) IsAlive(player PlayerID) bool {
	return gs.PopulationOf(player) > 0 || gs.CityCount(player) > 0
}

// AlivePlayers returns the players with presence on the board in player order.
func (gs *GameState) AlivePlayers() []PlayerID {
	var out []PlayerID
	for _, id := range gs.PlayerOrder {
		if gs.IsAlive(id) {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy of the state.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		MapID:       gs.MapID,
		Turn:        gs.Turn,
		Activity:    gs.Activity,
		Started:     gs.Started,
		Players:     make(map[PlayerID]*Player, len(gs.Players)),
		PlayerOrder: append([]PlayerID(nil), gs.PlayerOrder...),
		CensusOrder: append([]PlayerID(nil), gs.CensusOrder...),
		Areas:       make(map[AreaID]*AreaState, len(gs.Areas)),
		Owners:      make(map[TokenID]PlayerID, len(gs.Owners)),
		CityOwners:  make(map[CityID]PlayerID, len(gs.CityOwners)),
		Moved:       gs.Moved.Clone(),
		Calamities:  append([]HeldCalamity(nil), gs.Calamities...),
	}
	for id, p := range gs.Players {
		c.Players[id] = p.clone()
	}
	for id, st := range gs.Areas {
		cs := &AreaState{Population: st.Population.Clone(), Mark: st.Mark}
		if st.City != nil {
			city := *st.City
			cs.City = &city
		}
		c.Areas[id] = cs
	}
	for t, p := range gs.Owners {
		c.Owners[t] = p
	}
	for t, p := range gs.CityOwners {
		c.CityOwners[t] = p
	}
	return c
}

// CheckConsistency verifies that every index agrees with the board:
// each token is in exactly one place, Population and PlayerAreas match, and
// cities appear both on the board and in their owner's PlayerCities.
func (gs *GameState) CheckConsistency() error {
	seen := make(map[TokenID]string, len(gs.Owners))
	mark := func(t TokenID, where string) error {
		if prev, dup := seen[t]; dup {
			return invariantf("CheckConsistency", "token %d in %s and %s", t, prev, where)
		}
		seen[t] = where
		return nil
	}

	for areaID, st := range gs.Areas {
		for pid, set := range st.Population {
			p := gs.Players[pid]
			if p == nil {
				return invariantf("CheckConsistency", "area %s holds tokens of unknown player %s", areaID, pid)
			}
			idx := p.Areas[areaID]
			if idx.Len() != set.Len() {
				return invariantf("CheckConsistency", "player %s area %s: index has %d tokens, area has %d",
					pid, areaID, idx.Len(), set.Len())
			}
			for t := range set {
				if !idx.Has(t) {
					return invariantf("CheckConsistency", "token %d in %s missing from %s's index", t, areaID, pid)
				}
				if gs.Owners[t] != pid {
					return invariantf("CheckConsistency", "token %d in %s owned by %s, filed under %s", t, areaID, gs.Owners[t], pid)
				}
				if err := mark(t, "area "+string(areaID)); err != nil {
					return err
				}
			}
		}
		if st.City != nil {
			owner := gs.Players[st.City.Owner]
			if owner == nil || owner.Cities[areaID] != st.City.Token {
				return invariantf("CheckConsistency", "city in %s not indexed by owner %s", areaID, st.City.Owner)
			}
		}
	}

	for pid, p := range gs.Players {
		for areaID, set := range p.Areas {
			st := gs.Areas[areaID]
			if st == nil || st.Population.Count(pid) != set.Len() {
				return invariantf("CheckConsistency", "player %s indexes %d tokens in %s", pid, set.Len(), areaID)
			}
		}
		for areaID, city := range p.Cities {
			st := gs.Areas[areaID]
			if st == nil || st.City == nil || st.City.Token != city || st.City.Owner != pid {
				return invariantf("CheckConsistency", "player %s indexes city %d in %s", pid, city, areaID)
			}
		}
		for _, t := range p.Stock {
			if gs.Owners[t] != pid {
				return invariantf("CheckConsistency", "token %d in %s's stock owned by %s", t, pid, gs.Owners[t])
			}
			if err := mark(t, "stock of "+string(pid)); err != nil {
				return err
			}
		}
	}

	if len(seen) != len(gs.Owners) {
		return invariantf("CheckConsistency", "%d tokens accounted for, %d allocated", len(seen), len(gs.Owners))
	}
	return nil
}
