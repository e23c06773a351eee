package civ

// MoveOption lists where a player's unmoved tokens in one area can go.
type MoveOption struct {
	From   AreaID   `json:"from"`
	To     []AreaID `json:"to"`
	Tokens int      `json:"tokens"`
}

// AvailableMoves returns the moves open to player this turn, by area.
func AvailableMoves(b *Board, gs *GameState, player PlayerID) []MoveOption {
	p := gs.Players[player]
	if p == nil {
		return nil
	}
	areas := make([]AreaID, 0, len(p.Areas))
	for a := range p.Areas {
		areas = append(areas, a)
	}
	sortAreaIDs(areas)

	var out []MoveOption
	for _, a := range areas {
		n := len(unmovedTokens(gs, a, player))
		to := b.Neighbors(a)
		if n == 0 || len(to) == 0 {
			continue
		}
		out = append(out, MoveOption{From: a, To: append([]AreaID(nil), to...), Tokens: n})
	}
	return out
}

func unmovedTokens(gs *GameState, area AreaID, player PlayerID) []TokenID {
	var out []TokenID
	for _, t := range gs.AreaTokens(area, player) {
		if !gs.Moved.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
