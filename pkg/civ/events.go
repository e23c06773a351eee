package civ

// EventType names an output signal of the orchestrator.
type EventType string

const (
	EventActivityEntered   EventType = "activity_entered"
	EventActivityExited    EventType = "activity_exited"
	EventMovesRecalculated EventType = "moves_recalculated"
	EventConflictResolved  EventType = "conflict_resolved"
	EventCityDestroyed     EventType = "city_destroyed"
	EventCityBuilt         EventType = "city_built"
	EventCityEliminated    EventType = "city_eliminated"
	EventCalamityResolved  EventType = "calamity_resolved"
	EventTurnAdvanced      EventType = "turn_advanced"
)

// Event is a notification for UI and agent collaborators. Data is a JSON
// friendly payload specific to the event type.
type Event struct {
	Type     EventType `json:"type"`
	Turn     int       `json:"turn"`
	Activity Activity  `json:"activity"`
	Player   PlayerID  `json:"player,omitempty"`
	Area     AreaID    `json:"area,omitempty"`
	Data     any       `json:"data,omitempty"`
}
