package civ

// CommandType names an input command.
type CommandType string

const (
	CmdPlaceFromStock   CommandType = "place_from_stock"
	CmdMoveTokens       CommandType = "move_tokens"
	CmdBuildCity        CommandType = "build_city"
	CmdEliminateCity    CommandType = "eliminate_city"
	CmdExpandPopulation CommandType = "expand_population"
	CmdPass             CommandType = "pass"
	CmdHoldCalamity     CommandType = "hold_calamity"
	CmdAcquireCivCard   CommandType = "acquire_civ_card"
)

// City building costs in tokens.
const (
	CityCost     = 6
	CitySiteCost = 3
)

// Command is the serializable form of an input command, as stored in command
// logs and received from clients.
type Command struct {
	Type       CommandType  `json:"type"`
	Player     PlayerID     `json:"player"`
	Area       AreaID       `json:"area,omitempty"`
	To         AreaID       `json:"to,omitempty"`
	Count      int          `json:"count,omitempty"`
	Tokens     []TokenID    `json:"tokens,omitempty"`
	IsConflict bool         `json:"is_conflict,omitempty"`
	Calamity   CalamityKind `json:"calamity,omitempty"`
	Card       string       `json:"card,omitempty"`
}

// Apply runs a player's command against o. A rejected command returns a
// *CommandError and leaves the state unchanged. Calamities are dealt by the
// engine, never requested by a player.
func (c Command) Apply(o *Orchestrator) error {
	if c.Type == CmdHoldCalamity {
		return rejectf(c.Type, "calamities are dealt with trade cards")
	}
	return c.apply(o)
}

// ApplyEngine runs c on the engine's behalf: deadline defaults and calamities
// dealt with trade cards.
func (c Command) ApplyEngine(o *Orchestrator) error {
	return c.apply(o)
}

func (c Command) apply(o *Orchestrator) error {
	if o.state.Players[c.Player] == nil {
		return rejectf(c.Type, "unknown player %q", c.Player)
	}
	switch c.Type {
	case CmdPlaceFromStock:
		_, err := o.MoveTokensFromStockToArea(c.Area, c.Player, c.Count)
		return err
	case CmdMoveTokens:
		tokens := c.Tokens
		if len(tokens) == 0 {
			free := unmovedTokens(o.state, c.Area, c.Player)
			if c.Count <= 0 || c.Count > len(free) {
				return rejectf(c.Type, "%s has %d unmoved tokens in %s, %d requested", c.Player, len(free), c.Area, c.Count)
			}
			tokens = free[len(free)-c.Count:]
		}
		return o.MoveTokenFromAreaToArea(c.Area, c.To, c.Player, tokens)
	case CmdBuildCity:
		_, err := o.BuildCity(c.Player, c.Area)
		return err
	case CmdEliminateCity:
		if c.IsConflict {
			return rejectf(c.Type, "cities fall in conflict only through conflict resolution")
		}
		if !o.state.Activity.isSupportCheck() {
			return rejectf(c.Type, "not allowed during %s", o.state.Activity)
		}
		st := o.state.Areas[c.Area]
		if st == nil || st.City == nil {
			return rejectf(c.Type, "no city in %s", c.Area)
		}
		if st.City.Owner != c.Player {
			return rejectf(c.Type, "city in %s belongs to %s", c.Area, st.City.Owner)
		}
		return o.EliminateCity(c.Area, c.IsConflict)
	case CmdExpandPopulation:
		_, err := o.ExpandPopulationManually(c.Player, c.Area, c.Count)
		return err
	case CmdPass:
		return o.Pass(c.Player)
	case CmdHoldCalamity:
		return o.HoldCalamity(c.Player, c.Calamity)
	case CmdAcquireCivCard:
		return o.AcquireCivCard(c.Player, c.Card)
	default:
		return rejectf(c.Type, "unknown command")
	}
}

func (o *Orchestrator) requireActivity(cmd CommandType, a Activity) error {
	if o.state.Activity != a {
		return rejectf(cmd, "not allowed during %s", o.state.Activity)
	}
	return nil
}

func (o *Orchestrator) requirePending(cmd CommandType, player PlayerID) (*Player, error) {
	p := o.state.Players[player]
	if p == nil {
		return nil, rejectf(cmd, "unknown player %q", player)
	}
	if p.Mark != PlayerPending {
		return nil, rejectf(cmd, "%s has nothing to do in %s", player, o.state.Activity)
	}
	return p, nil
}

// MoveTokensFromStockToArea places up to count of player's stock tokens in
// area during population expansion, within the growth the player is owed
// there. It returns the tokens placed, which may be fewer than requested when
// the stock runs short.
func (o *Orchestrator) MoveTokensFromStockToArea(area AreaID, player PlayerID, count int) ([]TokenID, error) {
	return o.expand(CmdPlaceFromStock, player, area, count)
}

// MoveTokenFromAreaToArea moves tokens of player to an adjacent area during
// movement. Each token moves at most once per turn.
func (o *Orchestrator) MoveTokenFromAreaToArea(from, to AreaID, player PlayerID, tokens []TokenID) error {
	if err := o.requireActivity(CmdMoveTokens, Movement); err != nil {
		return err
	}
	if _, err := o.requirePending(CmdMoveTokens, player); err != nil {
		return err
	}
	for _, t := range tokens {
		if o.state.Moved.Has(t) {
			return rejectf(CmdMoveTokens, "token %d already moved this turn", t)
		}
	}
	if err := o.state.MoveTokens(o.board, from, to, player, tokens); err != nil {
		return err
	}
	for _, t := range tokens {
		o.state.Moved[t] = struct{}{}
	}
	o.emitMoves(player)
	return nil
}

// BuildCity turns player's tokens in area into a city. The player must be the
// only one in the area and hold at least CityCost tokens there, or
// CitySiteCost on a city site. All of the player's tokens there return to
// stock.
func (o *Orchestrator) BuildCity(player PlayerID, area AreaID) (CityID, error) {
	if err := o.requireActivity(CmdBuildCity, CityConstruction); err != nil {
		return 0, err
	}
	p, err := o.requirePending(CmdBuildCity, player)
	if err != nil {
		return 0, err
	}
	def := o.board.Area(area)
	if def == nil {
		return 0, rejectf(CmdBuildCity, "unknown area %q", area)
	}
	st := o.state.Areas[area]
	if st.City != nil {
		return 0, rejectf(CmdBuildCity, "%s already has a city", area)
	}
	if st.Population.NumPlayers() != 1 || st.Population.Count(player) == 0 {
		return 0, rejectf(CmdBuildCity, "%s must be the only player in %s", player, area)
	}
	cost := CityCost
	if def.CitySite {
		cost = CitySiteCost
	}
	if have := st.Population.Count(player); have < cost {
		return 0, rejectf(CmdBuildCity, "%s needs %d tokens in %s, has %d", player, cost, area, have)
	}
	if len(p.CityStock) == 0 {
		return 0, rejectf(CmdBuildCity, "%s has no city markers left", player)
	}

	o.state.ReturnToStock(area, o.state.AreaTokens(area, player))
	id, err := o.state.PlaceCity(player, area)
	if err != nil {
		return 0, err
	}
	o.emit(Event{Type: EventCityBuilt, Player: player, Area: area, Data: id})
	return id, nil
}

// EliminateCity removes the city in area. The conflict variant leaves
// CityAttackThreshold of the owner's tokens in its place and is not open to
// players. During a city support check the owner is checked again.
func (o *Orchestrator) EliminateCity(area AreaID, isConflict bool) error {
	st := o.state.Areas[area]
	if st == nil || st.City == nil {
		return rejectf(CmdEliminateCity, "no city in %s", area)
	}
	var city BuiltCity
	if isConflict {
		city, _ = o.state.destroyCity(area)
	} else {
		city, _ = o.state.RemoveCity(area)
	}
	if o.state.Activity.isSupportCheck() {
		if p := o.state.Players[city.Owner]; p != nil {
			p.Mark = PlayerNeedsCheck
			p.Shortfall = nil
		}
	}
	o.emit(Event{Type: EventCityEliminated, Player: city.Owner, Area: area, Data: city})
	return nil
}

// ExpandPopulationManually places up to count tokens in area for a player who
// could not afford automatic expansion. It returns the number placed.
func (o *Orchestrator) ExpandPopulationManually(player PlayerID, area AreaID, count int) (int, error) {
	placed, err := o.expand(CmdExpandPopulation, player, area, count)
	return len(placed), err
}

// expand grows a pending player's population in area from stock. The player
// settles once its allowance or its stock is used up.
func (o *Orchestrator) expand(cmd CommandType, player PlayerID, area AreaID, count int) ([]TokenID, error) {
	if err := o.requireActivity(cmd, PopulationExpansion); err != nil {
		return nil, err
	}
	if o.board.Area(area) == nil {
		return nil, rejectf(cmd, "unknown area %q", area)
	}
	p, err := o.requirePending(cmd, player)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, rejectf(cmd, "count must be positive")
	}
	if allowed := p.Growth[area]; count > allowed {
		return nil, rejectf(cmd, "%s may grow by %d in %s", player, allowed, area)
	}
	placed := o.state.PlaceFromStock(area, player, count)
	p.Growth[area] -= len(placed)
	if p.Growth[area] == 0 {
		delete(p.Growth, area)
	}
	if len(p.Growth) == 0 || len(p.Stock) == 0 {
		p.Mark = PlayerSettled
		p.Growth = nil
	}
	return placed, nil
}

// Pass ends player's part in the current activity. A player with a city
// shortfall cannot pass; it must eliminate cities.
func (o *Orchestrator) Pass(player PlayerID) error {
	p := o.state.Players[player]
	if p == nil {
		return rejectf(CmdPass, "unknown player %q", player)
	}
	switch p.Mark {
	case PlayerShortfall:
		return rejectf(CmdPass, "%s must eliminate %d cities", player, p.Shortfall.SurplusCities)
	case PlayerPending:
		p.Mark = PlayerSettled
		p.Growth = nil
	}
	return nil
}

// HoldCalamity deals player a calamity, resolved in the next
// ResolveCalamities activity. Only the engine deals calamities; see
// Command.ApplyEngine.
func (o *Orchestrator) HoldCalamity(player PlayerID, kind CalamityKind) error {
	p := o.state.Players[player]
	if p == nil {
		return rejectf(CmdHoldCalamity, "unknown player %q", player)
	}
	if !kind.Valid() {
		return rejectf(CmdHoldCalamity, "unknown calamity %q", kind)
	}
	p.Calamities = append(p.Calamities, kind)
	return nil
}

// AcquireCivCard gives player a civilization card.
func (o *Orchestrator) AcquireCivCard(player PlayerID, card string) error {
	if err := o.requireActivity(CmdAcquireCivCard, AcquireCivilizationCards); err != nil {
		return err
	}
	p, err := o.requirePending(CmdAcquireCivCard, player)
	if err != nil {
		return err
	}
	if _, ok := o.cards.Card(card); !ok {
		return rejectf(CmdAcquireCivCard, "unknown card %q", card)
	}
	if p.HasCivCard(card) {
		return rejectf(CmdAcquireCivCard, "%s already owns %s", player, card)
	}
	p.CivCards = append(p.CivCards, card)
	return nil
}

func (o *Orchestrator) emitMoves(player PlayerID) {
	o.emit(Event{Type: EventMovesRecalculated, Player: player, Data: AvailableMoves(o.board, o.state, player)})
}
