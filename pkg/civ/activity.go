package civ

// Activity is one step of the turn sequence. Exactly one activity is current
// at a time.
type Activity string

const (
	PopulationExpansion      Activity = "population_expansion"
	Census                   Activity = "census"
	Movement                 Activity = "movement"
	Conflict                 Activity = "conflict"
	CityConstruction         Activity = "city_construction"
	RemoveSurplusPopulation  Activity = "remove_surplus_population"
	CheckCitySupport         Activity = "check_city_support"
	AcquireTradeCards        Activity = "acquire_trade_cards"
	Trade                    Activity = "trade"
	ResolveCalamities        Activity = "resolve_calamities"
	CalamitySurplus          Activity = "calamity_surplus"
	CalamityCitySupport      Activity = "calamity_city_support"
	AcquireCivilizationCards Activity = "acquire_civilization_cards"
	MoveSuccessionMarkers    Activity = "move_succession_markers"
)

// turnSequence is the fixed order of activities within a turn. The activity
// after the last one is the first one of the next turn.
var turnSequence = []Activity{
	PopulationExpansion,
	Census,
	Movement,
	Conflict,
	CityConstruction,
	RemoveSurplusPopulation,
	CheckCitySupport,
	AcquireTradeCards,
	Trade,
	ResolveCalamities,
	CalamitySurplus,
	CalamityCitySupport,
	AcquireCivilizationCards,
	MoveSuccessionMarkers,
}

var successor = func() map[Activity]Activity {
	m := make(map[Activity]Activity, len(turnSequence))
	for i, a := range turnSequence {
		m[a] = turnSequence[(i+1)%len(turnSequence)]
	}
	return m
}()

// Activities returns the turn sequence in order.
func Activities() []Activity {
	return append([]Activity(nil), turnSequence...)
}

// Next returns the activity that follows a, or "" when a is not part of the
// turn sequence.
func Next(a Activity) Activity {
	return successor[a]
}

// Valid reports whether a is part of the turn sequence.
func (a Activity) Valid() bool {
	_, ok := successor[a]
	return ok
}

func (a Activity) String() string {
	return string(a)
}

// isSupportCheck reports whether a evaluates city support.
func (a Activity) isSupportCheck() bool {
	return a == CheckCitySupport || a == CalamityCitySupport
}
