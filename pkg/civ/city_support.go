package civ

// TokensPerCity is the population each city needs on the board to be
// supported.
const TokensPerCity = 2

// Shortfall records how far a player is from supporting its cities.
type Shortfall struct {
	SurplusCities int `json:"surplus_cities"`
	NeededTokens  int `json:"needed_tokens"`
}

// EvaluateCitySupport compares the population player needs for its cities
// with the population it has. It returns nil when the cities are supported.
func EvaluateCitySupport(gs *GameState, player PlayerID) *Shortfall {
	required := TokensPerCity * gs.CityCount(player)
	actual := gs.PopulationOf(player)
	if required <= actual {
		return nil
	}
	return &Shortfall{
		SurplusCities: (required - actual) / TokensPerCity,
		NeededTokens:  required - actual,
	}
}

// TagCitySupport flags every player owning a city for a support check.
func TagCitySupport(gs *GameState) int {
	n := 0
	for _, id := range gs.PlayerOrder {
		p := gs.Players[id]
		if len(p.Cities) > 0 {
			p.Mark = PlayerNeedsCheck
			n++
		}
	}
	return n
}

// EvaluateFlaggedPlayers evaluates every player flagged for a check.
// Supported players settle; the rest are marked with their shortfall.
func EvaluateFlaggedPlayers(gs *GameState) {
	for _, id := range gs.PlayerOrder {
		p := gs.Players[id]
		if p.Mark != PlayerNeedsCheck {
			continue
		}
		if sf := EvaluateCitySupport(gs, id); sf != nil {
			p.Mark = PlayerShortfall
			p.Shortfall = sf
		} else {
			p.Mark = PlayerSettled
			p.Shortfall = nil
		}
	}
}

// CitySupportSettled reports whether no player is waiting for a check or
// carrying a shortfall.
func CitySupportSettled(gs *GameState) bool {
	for _, p := range gs.Players {
		if p.Mark == PlayerNeedsCheck || p.Mark == PlayerShortfall {
			return false
		}
	}
	return true
}

// DefaultCityReductions returns the cities player gives up when it does not
// choose: one city per two missing tokens, rounded up, in ascending area order.
// Each eliminated city lowers the requirement by TokensPerCity.
func DefaultCityReductions(gs *GameState, player PlayerID) []AreaID {
	sf := EvaluateCitySupport(gs, player)
	if sf == nil {
		return nil
	}
	p := gs.Players[player]
	areas := make([]AreaID, 0, len(p.Cities))
	for a := range p.Cities {
		areas = append(areas, a)
	}
	sortAreaIDs(areas)
	n := (sf.NeededTokens + TokensPerCity - 1) / TokensPerCity
	if n > len(areas) {
		n = len(areas)
	}
	return areas[:n]
}
