package civ

// Default per-player allotments.
const (
	DefaultTokenStock = 55
	DefaultCityStock  = 9
)

// PlayerMark is the per-player gate state for the current activity. It is
// reset when the activity ends.
type PlayerMark uint8

const (
	PlayerSettled    PlayerMark = iota // Nothing left to do this activity
	PlayerPending                      // Must act or pass before the activity ends
	PlayerNeedsCheck                   // City support must be (re)evaluated
	PlayerShortfall                    // Owns more cities than its population supports
)

func (m PlayerMark) String() string {
	switch m {
	case PlayerSettled:
		return "settled"
	case PlayerPending:
		return "pending"
	case PlayerNeedsCheck:
		return "needs_check"
	case PlayerShortfall:
		return "shortfall"
	default:
		return "unknown"
	}
}

// Player is one civilization. Areas and Cities are indexes kept consistent with
// the board by the GameState mutation functions; never edit them directly.
type Player struct {
	ID         PlayerID            `json:"id"`
	Name       string              `json:"name"`
	Stock      []TokenID           `json:"stock"`
	CityStock  []CityID            `json:"city_stock"`
	Areas      map[AreaID]TokenSet `json:"areas"`
	Cities     map[AreaID]CityID   `json:"cities"`
	CivCards   []string            `json:"civ_cards,omitempty"`
	Calamities []CalamityKind      `json:"calamities,omitempty"`
	Mark       PlayerMark          `json:"mark"`
	Shortfall  *Shortfall          `json:"shortfall,omitempty"`
	Growth     map[AreaID]int      `json:"growth,omitempty"` // Remaining manual expansion per area
}

// HasCivCard reports whether the player owns the civilization card id.
func (p *Player) HasCivCard(id string) bool {
	for _, c := range p.CivCards {
		if c == id {
			return true
		}
	}
	return false
}

// takeStock removes up to n tokens from the stock.
func (p *Player) takeStock(n int) []TokenID {
	if n > len(p.Stock) {
		n = len(p.Stock)
	}
	if n <= 0 {
		return nil
	}
	cut := len(p.Stock) - n
	out := append([]TokenID(nil), p.Stock[cut:]...)
	p.Stock = p.Stock[:cut]
	return out
}

func (p *Player) clone() *Player {
	c := *p
	c.Stock = append([]TokenID(nil), p.Stock...)
	c.CityStock = append([]CityID(nil), p.CityStock...)
	c.CivCards = append([]string(nil), p.CivCards...)
	c.Calamities = append([]CalamityKind(nil), p.Calamities...)
	c.Areas = make(map[AreaID]TokenSet, len(p.Areas))
	for a, s := range p.Areas {
		c.Areas[a] = s.Clone()
	}
	c.Cities = make(map[AreaID]CityID, len(p.Cities))
	for a, id := range p.Cities {
		c.Cities[a] = id
	}
	if p.Shortfall != nil {
		sf := *p.Shortfall
		c.Shortfall = &sf
	}
	if p.Growth != nil {
		c.Growth = make(map[AreaID]int, len(p.Growth))
		for a, n := range p.Growth {
			c.Growth[a] = n
		}
	}
	return &c
}
