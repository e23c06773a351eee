package civ

import "sort"

// Score weights used to choose the erupting volcano.
const (
	volcanoTokenWeight = 1
	volcanoCityWeight  = 5
)

// CalamityEffects is what a calamity will do before anything is committed.
// Only the victim's cities are ever in DestroyCities; ReduceCities may hold
// rival cities hit by an earthquake.
type CalamityEffects struct {
	Kind          CalamityKind `json:"kind"`
	Victim        PlayerID     `json:"victim"`
	Volcano       AreaID       `json:"volcano,omitempty"`
	EruptionAreas []AreaID     `json:"eruption_areas,omitempty"`
	DestroyCities []AreaID     `json:"destroy_cities,omitempty"`
	ReduceCities  []AreaID     `json:"reduce_cities,omitempty"`
	FloodAreas    []AreaID     `json:"flood_areas,omitempty"`
	UnitPointLoss int          `json:"unit_point_loss,omitempty"`
	Immune        bool         `json:"immune,omitempty"`
	Modifiers     []string     `json:"modifiers,omitempty"`
}

func (e CalamityEffects) clone() CalamityEffects {
	c := e
	c.EruptionAreas = append([]AreaID(nil), e.EruptionAreas...)
	c.DestroyCities = append([]AreaID(nil), e.DestroyCities...)
	c.ReduceCities = append([]AreaID(nil), e.ReduceCities...)
	c.FloodAreas = append([]AreaID(nil), e.FloodAreas...)
	c.Modifiers = append([]string(nil), e.Modifiers...)
	return c
}

// CalamityReport is what a committed calamity did.
type CalamityReport struct {
	Effects         CalamityEffects `json:"effects"`
	TokensRemoved   int             `json:"tokens_removed"`
	CitiesDestroyed []BuiltCity     `json:"cities_destroyed,omitempty"`
	CitiesReduced   []BuiltCity     `json:"cities_reduced,omitempty"`
}

// ComputeCalamity works out the effects of kind on victim without changing
// the game. Civilization card modifiers are not applied here.
func ComputeCalamity(b *Board, gs *GameState, victim PlayerID, kind CalamityKind, cards *CardSet) CalamityEffects {
	eff := CalamityEffects{Kind: kind, Victim: victim}
	if gs.Players[victim] == nil {
		return eff
	}
	switch kind {
	case VolcanoEarthquake:
		if v, zone := eruptingVolcano(b, gs, victim); v != "" {
			eff.Volcano = v
			eff.EruptionAreas = zone
		} else {
			eff.DestroyCities, eff.ReduceCities = earthquakeTargets(b, gs, victim)
		}
	case Flood:
		for _, id := range b.IDs() {
			if !b.Area(id).FloodPlain {
				continue
			}
			st := gs.Areas[id]
			if st.Population.Count(victim) > 0 {
				eff.FloodAreas = append(eff.FloodAreas, id)
			}
			if st.City != nil && st.City.Owner == victim {
				eff.ReduceCities = append(eff.ReduceCities, id)
			}
		}
	case Famine, Epidemic:
		if cards != nil {
			eff.UnitPointLoss = cards.Calamities[kind].UnitPoints
		}
	}
	return eff
}

// eruptingVolcano scores every volcano by the victim's presence around it and
// returns the highest positive one with its eruption zone.
func eruptingVolcano(b *Board, gs *GameState, victim PlayerID) (AreaID, []AreaID) {
	var best AreaID
	bestScore := 0
	for _, id := range b.IDs() {
		if !b.Area(id).Volcano {
			continue
		}
		score := 0
		for _, a := range eruptionZone(b, id) {
			st := gs.Areas[a]
			score += volcanoTokenWeight * st.Population.Count(victim)
			if st.City != nil && st.City.Owner == victim {
				score += volcanoCityWeight
			}
		}
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	if best == "" {
		return "", nil
	}
	return best, eruptionZone(b, best)
}

func eruptionZone(b *Board, volcano AreaID) []AreaID {
	zone := append([]AreaID{volcano}, b.Neighbors(volcano)...)
	sortAreaIDs(zone)
	return zone
}

// earthquakeTargets picks the victim city to destroy and the rival city to
// reduce. A victim city bordering a rival city is preferred.
func earthquakeTargets(b *Board, gs *GameState, victim PlayerID) (destroy, reduce []AreaID) {
	var cities []AreaID
	for a := range gs.Players[victim].Cities {
		cities = append(cities, a)
	}
	if len(cities) == 0 {
		return nil, nil
	}
	sortAreaIDs(cities)
	for _, a := range cities {
		for _, n := range b.Neighbors(a) {
			if c := gs.Areas[n].City; c != nil && c.Owner != victim {
				return []AreaID{a}, []AreaID{n}
			}
		}
	}
	return []AreaID{cities[0]}, nil
}

// CommitCalamity applies effects to the game.
func CommitCalamity(b *Board, gs *GameState, eff CalamityEffects) CalamityReport {
	rep := CalamityReport{Effects: eff}
	if eff.Immune {
		return rep
	}
	for _, a := range eff.EruptionAreas {
		if city, ok := gs.RemoveCity(a); ok {
			rep.CitiesDestroyed = append(rep.CitiesDestroyed, city)
		}
		rep.TokensRemoved += gs.ClearArea(a)
	}
	for _, a := range eff.DestroyCities {
		if city, ok := gs.RemoveCity(a); ok {
			rep.CitiesDestroyed = append(rep.CitiesDestroyed, city)
		}
	}
	for _, a := range eff.ReduceCities {
		if city, _, ok := gs.ReduceCity(b, a); ok {
			rep.CitiesReduced = append(rep.CitiesReduced, city)
		}
	}
	for _, a := range eff.FloodAreas {
		rep.TokensRemoved += gs.ReturnToStock(a, gs.AreaTokens(a, eff.Victim))
	}
	if eff.UnitPointLoss > 0 {
		rep.TokensRemoved += gs.removeLargestFirst(eff.Victim, eff.UnitPointLoss)
	}
	return rep
}

// removeLargestFirst returns up to n of player's tokens to stock, one at a
// time from whichever area currently holds most of them.
func (gs *GameState) removeLargestFirst(player PlayerID, n int) int {
	p := gs.Players[player]
	if p == nil {
		return 0
	}
	removed := 0
	for removed < n && len(p.Areas) > 0 {
		areas := make([]AreaID, 0, len(p.Areas))
		for a := range p.Areas {
			areas = append(areas, a)
		}
		sort.Slice(areas, func(i, j int) bool {
			ci, cj := p.Areas[areas[i]].Len(), p.Areas[areas[j]].Len()
			if ci != cj {
				return ci > cj
			}
			return areas[i] < areas[j]
		})
		tokens := p.Areas[areas[0]].Sorted()
		removed += gs.ReturnToStock(areas[0], tokens[len(tokens)-1:])
	}
	return removed
}

// ResolveCalamity computes, modifies and commits one calamity.
func ResolveCalamity(b *Board, gs *GameState, victim PlayerID, kind CalamityKind, cards *CardSet) CalamityReport {
	eff := ComputeCalamity(b, gs, victim, kind, cards)
	if p := gs.Players[victim]; p != nil && cards != nil {
		eff = ApplyCivCardModifiers(eff, cards.CardsOf(p))
	}
	return CommitCalamity(b, gs, eff)
}

// sortCalamities orders held calamities by kind, then by the victim's census
// position.
func sortCalamities(held []HeldCalamity, census []PlayerID) {
	pos := make(map[PlayerID]int, len(census))
	for i, id := range census {
		pos[id] = i
	}
	sort.SliceStable(held, func(i, j int) bool {
		ri, rj := held[i].Kind.rank(), held[j].Kind.rank()
		if ri != rj {
			return ri < rj
		}
		return pos[held[i].Player] < pos[held[j].Player]
	})
}
