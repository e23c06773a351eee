package civ

// CityAttackThreshold is the number of tokens an invader must exceed to
// destroy a city. It is also the number of tokens a destroyed city leaves
// behind for its owner.
const CityAttackThreshold = 6

// CityOutcome is the result of planning a city conflict.
type CityOutcome uint8

const (
	CityRepelled  CityOutcome = iota // No invader is strong enough; all invaders are removed
	CityDestroyed                    // A single invader destroys the city
	CityDeferred                     // Several strong invaders fight each other first
)

func (o CityOutcome) String() string {
	switch o {
	case CityRepelled:
		return "repelled"
	case CityDestroyed:
		return "destroyed"
	case CityDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// CityConflictPlan describes how a city conflict proceeds. Removal holds the
// tokens to take out: every invader token when the city is repelled, or the
// result of the invaders' own conflict when deferred.
type CityConflictPlan struct {
	Outcome  CityOutcome
	Owner    PlayerID
	Attacker PlayerID // Set when Outcome is CityDestroyed
	Removal  Removal
}

// PlanCityConflict decides the outcome of a conflict in an area holding a city.
// It does not modify st.
func PlanCityConflict(def *AreaDef, st *AreaState) (CityConflictPlan, error) {
	if def == nil || st == nil || st.City == nil {
		return CityConflictPlan{}, invariantf("PlanCityConflict", "area has no city")
	}
	owner := st.City.Owner
	invaders := make(Population)
	var strong []PlayerID
	for _, pid := range st.Population.Players() {
		if pid == owner {
			continue
		}
		invaders[pid] = st.Population[pid]
		if st.Population.Count(pid) > CityAttackThreshold {
			strong = append(strong, pid)
		}
	}
	if len(invaders) == 0 {
		return CityConflictPlan{}, invariantf("PlanCityConflict", "city in %s has no invaders", def.ID)
	}

	plan := CityConflictPlan{Owner: owner}
	switch len(strong) {
	case 0:
		plan.Outcome = CityRepelled
		plan.Removal = make(Removal)
		for _, pid := range invaders.Players() {
			plan.Removal.add(pid, invaders.Tokens(pid))
		}
	case 1:
		plan.Outcome = CityDestroyed
		plan.Attacker = strong[0]
	default:
		// Two invaders left with more than the threshold would need at least
		// 2*(threshold+1) tokens, so this limit leaves at most one of them.
		limit := 2*CityAttackThreshold + 1
		if def.MaxPopulation < limit {
			limit = def.MaxPopulation
		}
		r, err := ResolveConflict(limit, invaders)
		if err != nil {
			return CityConflictPlan{}, err
		}
		plan.Outcome = CityDeferred
		plan.Removal = r
	}
	return plan, nil
}

// destroyCity removes the city in area, returns its owner's tokens there to
// stock and places CityAttackThreshold fresh owner tokens in their place.
func (gs *GameState) destroyCity(area AreaID) (BuiltCity, bool) {
	city, ok := gs.RemoveCity(area)
	if !ok {
		return city, false
	}
	gs.ReturnToStock(area, gs.AreaTokens(area, city.Owner))
	gs.PlaceFromStock(area, city.Owner, CityAttackThreshold)
	return city, true
}
