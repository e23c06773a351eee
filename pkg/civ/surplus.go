package civ

// OverCapacity reports whether the area holds more tokens than its limit.
func OverCapacity(def *AreaDef, st *AreaState) bool {
	return def != nil && st != nil && st.Population.Total() > def.MaxPopulation
}

// PlanSurplusTrim returns the tokens to remove so that the area fits its
// population limit after conflicts. An area with a city loses every token.
// With several players the smallest holding is drained first; a lone player
// loses exactly the excess.
func PlanSurplusTrim(def *AreaDef, st *AreaState) Removal {
	r := make(Removal)
	if !OverCapacity(def, st) {
		return r
	}
	cs := contenders(st.Population)
	switch {
	case st.City != nil:
		for _, c := range cs {
			r.add(c.player, c.take(c.count()))
		}
	case len(cs) > 1:
		resolveUnequal(def.MaxPopulation, cs, r, true)
	default:
		c := cs[0]
		r.add(c.player, c.take(c.count()-def.MaxPopulation))
	}
	return r
}

// TrimSurplus trims every area over its limit and clears surplus tags. It
// returns the number of areas trimmed.
func TrimSurplus(b *Board, gs *GameState) (int, error) {
	n := 0
	for _, id := range b.IDs() {
		st := gs.Areas[id]
		if st == nil {
			continue
		}
		def := b.Area(id)
		if st.Mark == AreaSurplus && st.Population.Total() == 0 {
			return n, invariantf("TrimSurplus", "surplus tag on empty area %s", id)
		}
		if OverCapacity(def, st) {
			gs.ApplyRemoval(id, PlanSurplusTrim(def, st))
			n++
		}
		if st.Mark == AreaSurplus {
			st.Mark = AreaClear
		}
		if OverCapacity(def, st) {
			return n, invariantf("TrimSurplus", "%s still holds %d tokens over limit %d",
				id, st.Population.Total(), def.MaxPopulation)
		}
	}
	return n, nil
}
