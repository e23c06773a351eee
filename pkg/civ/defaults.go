package civ

import "sort"

// ApplyDefaults settles every player the current activity waits on with the
// fixed deadline decisions: a player with a city shortfall gives up its
// default reductions and a pending player passes. It returns the commands it
// applied, in player order.
func ApplyDefaults(o *Orchestrator) ([]Command, error) {
	var applied []Command
	for _, id := range o.state.PlayerOrder {
		p := o.state.Players[id]
		var cmds []Command
		switch p.Mark {
		case PlayerShortfall:
			for _, area := range DefaultCityReductions(o.state, id) {
				cmds = append(cmds, Command{Type: CmdEliminateCity, Player: id, Area: area})
			}
		case PlayerPending:
			cmds = append(cmds, Command{Type: CmdPass, Player: id})
		}
		for _, c := range cmds {
			if err := c.ApplyEngine(o); err != nil {
				return applied, err
			}
			applied = append(applied, c)
		}
	}
	return applied, nil
}

// Standing is one player's position in the game.
type Standing struct {
	Player     PlayerID `json:"player"`
	Cities     int      `json:"cities"`
	CivCards   int      `json:"civ_cards"`
	Population int      `json:"population"`
}

// Standings ranks players by cities, then civilization cards, then
// population. Remaining ties keep the player order.
func Standings(gs *GameState) []Standing {
	out := make([]Standing, 0, len(gs.PlayerOrder))
	for _, id := range gs.PlayerOrder {
		out = append(out, Standing{
			Player:     id,
			Cities:     gs.CityCount(id),
			CivCards:   len(gs.Players[id].CivCards),
			Population: gs.PopulationOf(id),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Cities != b.Cities {
			return a.Cities > b.Cities
		}
		if a.CivCards != b.CivCards {
			return a.CivCards > b.CivCards
		}
		return a.Population > b.Population
	})
	return out
}
