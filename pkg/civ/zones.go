package civ

// maxZoneSteps bounds the escalation chain of a single zone. The longest
// legal chain is deferred -> destroyed -> regular -> done.
const maxZoneSteps = 8

// ZoneResult records how one conflict zone was resolved.
type ZoneResult struct {
	Area      AreaID       `json:"area"`
	Kind      ConflictKind `json:"kind"`
	Removed   int          `json:"removed"`
	Repelled  bool         `json:"repelled,omitempty"`
	Destroyed *BuiltCity   `json:"destroyed,omitempty"`
	Steps     int          `json:"steps"`
}

// ConflictReport is the outcome of one ResolveConflicts pass. ZonesResolved
// counts each zone once, however many steps its escalation took.
type ConflictReport struct {
	ZonesResolved int
	Zones         []ZoneResult
}

type zoneStep struct {
	area   AreaID
	result *ZoneResult
}

// TagConflicts marks every conflict zone on the board and returns how many
// were tagged.
func TagConflicts(b *Board, gs *GameState) int {
	n := 0
	for _, id := range b.IDs() {
		st := gs.Areas[id]
		switch ConflictKindOf(b.Area(id), st) {
		case ConflictRegular:
			st.Mark = AreaConflict
			n++
		case ConflictCity:
			st.Mark = AreaCityConflict
			n++
		}
	}
	return n
}

// ResolveConflicts resolves every tagged or conflicting area to completion.
//
// Work items are processed from a queue. A step that escalates (a city
// destroyed, or invaders fighting among themselves first) pushes its
// continuation to the front, so a zone is always finished before the next one
// starts and is counted exactly once when its last step completes.
func ResolveConflicts(b *Board, gs *GameState) (ConflictReport, error) {
	var report ConflictReport
	var queue []zoneStep
	for _, id := range b.IDs() {
		st := gs.Areas[id]
		if st == nil {
			continue
		}
		tagged := st.Mark == AreaConflict || st.Mark == AreaCityConflict
		kind := ConflictKindOf(b.Area(id), st)
		if !tagged && kind == ConflictNone {
			continue
		}
		if tagged && st.Population.Total() == 0 {
			return report, invariantf("ResolveConflicts", "conflict tag on empty area %s", id)
		}
		queue = append(queue, zoneStep{area: id, result: &ZoneResult{Area: id, Kind: kind}})
	}

	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]

		step.result.Steps++
		if step.result.Steps > maxZoneSteps {
			return report, invariantf("ResolveConflicts", "%s did not settle after %d steps", step.area, maxZoneSteps)
		}
		more, err := resolveZoneStep(b, gs, step.area, step.result)
		if err != nil {
			return report, err
		}
		if more {
			queue = append([]zoneStep{step}, queue...)
			continue
		}
		gs.Areas[step.area].Mark = AreaClear
		report.ZonesResolved++
		report.Zones = append(report.Zones, *step.result)
	}
	return report, nil
}

// resolveZoneStep runs one step for area and reports whether the zone needs
// another step.
func resolveZoneStep(b *Board, gs *GameState, area AreaID, res *ZoneResult) (bool, error) {
	def := b.Area(area)
	st := gs.Areas[area]

	switch ConflictKindOf(def, st) {
	case ConflictRegular:
		r, err := ResolveConflict(def.MaxPopulation, st.Population)
		if err != nil {
			return false, err
		}
		res.Removed += gs.ApplyRemoval(area, r)

	case ConflictCity:
		plan, err := PlanCityConflict(def, st)
		if err != nil {
			return false, err
		}
		switch plan.Outcome {
		case CityRepelled:
			res.Removed += gs.ApplyRemoval(area, plan.Removal)
			res.Repelled = true
			return false, nil
		case CityDestroyed:
			city, _ := gs.destroyCity(area)
			res.Destroyed = &city
			return true, nil
		case CityDeferred:
			res.Removed += gs.ApplyRemoval(area, plan.Removal)
			return true, nil
		}
	}

	// The invader that took a city stays only up to the area's limit.
	if res.Destroyed != nil && OverCapacity(def, st) {
		res.Removed += gs.ApplyRemoval(area, PlanSurplusTrim(def, st))
	}
	return false, nil
}
