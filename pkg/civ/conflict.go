package civ

import "sort"

// ConflictKind classifies the state of an area before conflict resolution.
type ConflictKind uint8

const (
	ConflictNone ConflictKind = iota
	ConflictRegular
	ConflictCity
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictNone:
		return "none"
	case ConflictRegular:
		return "regular"
	case ConflictCity:
		return "city"
	default:
		return "unknown"
	}
}

// Removal is the set of tokens a resolution takes out of an area, keyed by
// owner. It is a plan: nothing happens until GameState.ApplyRemoval runs.
type Removal map[PlayerID][]TokenID

func (r Removal) add(player PlayerID, tokens []TokenID) {
	if len(tokens) == 0 {
		return
	}
	r[player] = append(r[player], tokens...)
}

// Count returns the number of tokens removed.
func (r Removal) Count() int {
	n := 0
	for _, ts := range r {
		n += len(ts)
	}
	return n
}

// Tokens returns every removed token in ascending order.
func (r Removal) Tokens() []TokenID {
	var out []TokenID
	for _, ts := range r {
		out = append(out, ts...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ConflictKindOf reports which kind of conflict, if any, area is in.
//
// An area holding a city is in city conflict as soon as any other player has
// tokens there. Otherwise an area is in conflict when more than one player
// holds tokens and the total exceeds the population limit.
func ConflictKindOf(def *AreaDef, st *AreaState) ConflictKind {
	if st == nil || def == nil {
		return ConflictNone
	}
	if st.City != nil {
		for pid, s := range st.Population {
			if pid != st.City.Owner && len(s) > 0 {
				return ConflictCity
			}
		}
	}
	if st.Population.NumPlayers() > 1 && st.Population.Total() > def.MaxPopulation {
		return ConflictRegular
	}
	return ConflictNone
}

// IsConflictZone reports whether area needs conflict resolution.
func IsConflictZone(def *AreaDef, st *AreaState) bool {
	return ConflictKindOf(def, st) != ConflictNone
}

// ResolveConflict computes which tokens leave an area whose contenders exceed
// limit. It is pure: pop is not modified.
//
// Exactly one rule applies, checked in order:
//   - limit 1: a single largest contender keeps at most 2 tokens and everyone
//     else is wiped out; a tie for largest wipes out everyone;
//   - all contenders equal: each loses ceil(excess / contenders) tokens, which
//     can leave the area below its limit;
//   - otherwise the contender with the fewest tokens loses one at a time until
//     the area fits or a single contender is left.
//
// Within a contender the highest token IDs are removed first.
func ResolveConflict(limit int, pop Population) (Removal, error) {
	cs := contenders(pop)
	if len(cs) < 2 {
		return nil, invariantf("ResolveConflict", "%d contenders", len(cs))
	}
	if limit < 1 {
		return nil, invariantf("ResolveConflict", "population limit %d", limit)
	}
	r := make(Removal)
	if totalOf(cs) <= limit {
		return r, nil
	}
	switch {
	case limit == 1:
		resolveCapacityOne(cs, r)
	case allEqual(cs):
		resolveEqual(limit, cs, r)
	default:
		resolveUnequal(limit, cs, r, false)
	}
	return r, nil
}

func allEqual(cs []*contender) bool {
	for _, c := range cs[1:] {
		if c.count() != cs[0].count() {
			return false
		}
	}
	return true
}

func resolveCapacityOne(cs []*contender, r Removal) {
	sorted := append([]*contender(nil), cs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].count() > sorted[j].count() })

	if sorted[0].count() == sorted[1].count() {
		for _, c := range sorted {
			r.add(c.player, c.take(c.count()))
		}
		return
	}
	top := sorted[0]
	r.add(top.player, top.take(top.count()-2))
	for _, c := range sorted[1:] {
		r.add(c.player, c.take(c.count()))
	}
}

func resolveEqual(limit int, cs []*contender, r Removal) {
	excess := totalOf(cs) - limit
	n := len(cs)
	rounds := (excess + n - 1) / n
	for _, c := range cs {
		r.add(c.player, c.take(rounds))
	}
}

// resolveUnequal drains the smallest contender one token at a time. With
// drainLast set, the last contender standing keeps losing tokens until the
// area fits; otherwise resolution stops once a single contender is left.
func resolveUnequal(limit int, cs []*contender, r Removal, drainLast bool) {
	queue := append([]*contender(nil), cs...)
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].count() != queue[j].count() {
			return queue[i].count() < queue[j].count()
		}
		return queue[i].player < queue[j].player
	})

	total := totalOf(queue)
	for total > limit && len(queue) > 0 {
		if len(queue) == 1 && !drainLast {
			break
		}
		c := queue[0]
		r.add(c.player, c.take(1))
		total--
		if c.count() == 0 {
			queue = queue[1:]
		}
	}
}
