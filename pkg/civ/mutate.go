package civ

// The functions in this file are the only code that moves tokens or cities.
// Each one updates the area Population and the owner's PlayerAreas or
// PlayerCities index together.

// PlaceFromStock moves up to count tokens from player's stock into area and
// returns the placed tokens. A short stock places fewer tokens; it is not an
// error.
func (gs *GameState) PlaceFromStock(area AreaID, player PlayerID, count int) []TokenID {
	st := gs.Areas[area]
	p := gs.Players[player]
	if st == nil || p == nil {
		return nil
	}
	placed := p.takeStock(count)
	for _, t := range placed {
		gs.putToken(st, area, p, t)
	}
	return placed
}

// MoveTokens moves tokens of player from one area to an adjacent one.
func (gs *GameState) MoveTokens(b *Board, from, to AreaID, player PlayerID, tokens []TokenID) error {
	if !b.Adjacent(from, to) {
		return rejectf(CmdMoveTokens, "%s does not border %s", from, to)
	}
	src, dst := gs.Areas[from], gs.Areas[to]
	p := gs.Players[player]
	if src == nil || dst == nil || p == nil {
		return rejectf(CmdMoveTokens, "unknown area or player")
	}
	if len(tokens) == 0 {
		return rejectf(CmdMoveTokens, "no tokens given")
	}
	seen := make(map[TokenID]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			return rejectf(CmdMoveTokens, "token %d listed twice", t)
		}
		seen[t] = true
		if !src.Population[player].Has(t) {
			return rejectf(CmdMoveTokens, "token %d of %s is not in %s", t, player, from)
		}
	}
	for _, t := range tokens {
		gs.takeToken(src, from, p, t)
		gs.putToken(dst, to, p, t)
	}
	return nil
}

// ReturnToStock sends tokens in area back to their owners' stocks. Tokens that
// are not in the area or whose owner record is gone are skipped. It returns the
// number of tokens returned.
func (gs *GameState) ReturnToStock(area AreaID, tokens []TokenID) int {
	st := gs.Areas[area]
	if st == nil {
		return 0
	}
	n := 0
	for _, t := range tokens {
		owner, ok := gs.Owners[t]
		if !ok {
			continue
		}
		p := gs.Players[owner]
		if p == nil || !st.Population[owner].Has(t) {
			continue
		}
		gs.takeToken(st, area, p, t)
		p.Stock = append(p.Stock, t)
		n++
	}
	return n
}

// ApplyRemoval returns every token of r in area to stock.
func (gs *GameState) ApplyRemoval(area AreaID, r Removal) int {
	return gs.ReturnToStock(area, r.Tokens())
}

// ClearArea returns every token in area to stock.
func (gs *GameState) ClearArea(area AreaID) int {
	st := gs.Areas[area]
	if st == nil {
		return 0
	}
	var all []TokenID
	for _, pid := range st.Population.Players() {
		all = append(all, st.Population.Tokens(pid)...)
	}
	return gs.ReturnToStock(area, all)
}

// PlaceCity takes a city marker from player's city stock and stands it in
// area. The caller is responsible for paying the population cost.
func (gs *GameState) PlaceCity(player PlayerID, area AreaID) (CityID, error) {
	st := gs.Areas[area]
	p := gs.Players[player]
	if st == nil || p == nil {
		return 0, rejectf(CmdBuildCity, "unknown area or player")
	}
	if st.City != nil {
		return 0, rejectf(CmdBuildCity, "%s already has a city", area)
	}
	if len(p.CityStock) == 0 {
		return 0, rejectf(CmdBuildCity, "%s has no city markers left", player)
	}
	id := p.CityStock[len(p.CityStock)-1]
	p.CityStock = p.CityStock[:len(p.CityStock)-1]
	st.City = &BuiltCity{Owner: player, Token: id}
	p.Cities[area] = id
	return id, nil
}

// RemoveCity takes the city out of area and returns its marker to the owner's
// city stock. It reports false when the area has no city.
func (gs *GameState) RemoveCity(area AreaID) (BuiltCity, bool) {
	st := gs.Areas[area]
	if st == nil || st.City == nil {
		return BuiltCity{}, false
	}
	city := *st.City
	st.City = nil
	if p := gs.Players[city.Owner]; p != nil {
		delete(p.Cities, area)
		p.CityStock = append(p.CityStock, city.Token)
	}
	return city, true
}

// ReduceCity removes the city in area and replaces it with up to the area's
// population limit of the owner's tokens from stock. Tokens of the owner
// already in the area count towards the limit.
func (gs *GameState) ReduceCity(b *Board, area AreaID) (BuiltCity, []TokenID, bool) {
	city, ok := gs.RemoveCity(area)
	if !ok {
		return city, nil, false
	}
	def := b.Area(area)
	if def == nil {
		return city, nil, true
	}
	room := def.MaxPopulation - gs.Areas[area].Population.Count(city.Owner)
	return city, gs.PlaceFromStock(area, city.Owner, room), true
}

func (gs *GameState) putToken(st *AreaState, area AreaID, p *Player, t TokenID) {
	st.Population.add(p.ID, t)
	s := p.Areas[area]
	if s == nil {
		s = make(TokenSet)
		p.Areas[area] = s
	}
	s[t] = struct{}{}
}

func (gs *GameState) takeToken(st *AreaState, area AreaID, p *Player, t TokenID) {
	st.Population.remove(p.ID, t)
	if s := p.Areas[area]; s != nil {
		delete(s, t)
		if len(s) == 0 {
			delete(p.Areas, area)
		}
	}
}
