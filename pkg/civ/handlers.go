package civ

func registerDefaultHandlers(o *Orchestrator) {
	cards := o.cards

	o.OnEnter(PopulationExpansion, "expand", enterExpansion)
	o.Gate(PopulationExpansion, noPlayerPending)

	o.OnEnter(Census, "census", enterCensus)

	o.OnEnter(Movement, "tag_players", tagPlayersPending(true))
	o.Gate(Movement, noPlayerPending)

	o.OnEnter(Conflict, "tag_conflicts", enterConflict)
	o.OnTick(Conflict, "resolve_conflicts", tickConflict)
	o.Gate(Conflict, noAreaTagged)

	o.OnEnter(CityConstruction, "tag_players", tagPlayersPending(false))
	o.Gate(CityConstruction, noPlayerPending)

	for _, a := range []Activity{RemoveSurplusPopulation, CalamitySurplus} {
		o.OnEnter(a, "tag_surplus", enterSurplus)
		o.OnTick(a, "trim_surplus", tickSurplus)
		o.Gate(a, noAreaTagged)
	}

	for _, a := range []Activity{CheckCitySupport, CalamityCitySupport} {
		o.OnEnter(a, "tag_city_owners", enterCitySupport)
		o.OnTick(a, "check_city_support", tickCitySupport)
		o.Gate(a, func(_ *Board, gs *GameState) bool { return CitySupportSettled(gs) })
	}

	o.OnEnter(ResolveCalamities, "collect_calamities", enterCalamities)
	o.OnTick(ResolveCalamities, "resolve_calamity", func(b *Board, gs *GameState, tx *Tx) error {
		return tickCalamity(b, gs, tx, cards)
	})
	o.Gate(ResolveCalamities, func(_ *Board, gs *GameState) bool { return len(gs.Calamities) == 0 })

	o.OnEnter(AcquireCivilizationCards, "tag_players", tagPlayersPending(false))
	o.Gate(AcquireCivilizationCards, noPlayerPending)

	o.OnEnter(MoveSuccessionMarkers, "advance_turn", enterSuccession)
}

func noPlayerPending(_ *Board, gs *GameState) bool {
	for _, p := range gs.Players {
		if p.Mark == PlayerPending {
			return false
		}
	}
	return true
}

func noAreaTagged(_ *Board, gs *GameState) bool {
	for _, st := range gs.Areas {
		if st.Mark != AreaClear {
			return false
		}
	}
	return true
}

// growthFor is the automatic expansion of an area holding n of a player's
// tokens.
func growthFor(n int) int {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 1
	default:
		return 2
	}
}

// enterExpansion grows every player's population. A player whose stock cannot
// cover the full growth is left to choose where to expand.
func enterExpansion(_ *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		for _, id := range gs.PlayerOrder {
			p := gs.Players[id]
			areas := make([]AreaID, 0, len(p.Areas))
			need := 0
			for a, s := range p.Areas {
				areas = append(areas, a)
				need += growthFor(s.Len())
			}
			if need == 0 {
				continue
			}
			sortAreaIDs(areas)
			if need <= len(p.Stock) {
				for _, a := range areas {
					gs.PlaceFromStock(a, id, growthFor(p.Areas[a].Len()))
				}
				continue
			}
			if len(p.Stock) == 0 {
				continue
			}
			p.Growth = make(map[AreaID]int, len(areas))
			for _, a := range areas {
				p.Growth[a] = growthFor(p.Areas[a].Len())
			}
			p.Mark = PlayerPending
		}
		return nil
	})
	return nil
}

// enterCensus orders players by population, largest first. Ties keep the
// player order.
func enterCensus(_ *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		gs.CensusOrder = censusOrder(gs)
		return nil
	})
	return nil
}

func censusOrder(gs *GameState) []PlayerID {
	order := append([]PlayerID(nil), gs.PlayerOrder...)
	pop := make(map[PlayerID]int, len(order))
	for _, id := range order {
		pop[id] = gs.PopulationOf(id)
	}
	// insertion sort keeps ties stable
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && pop[order[j]] > pop[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

// tagPlayersPending marks every player still on the board as having to act or
// pass. With moves set, the moved-token set is reset and each player's
// available moves are announced.
func tagPlayersPending(moves bool) Handler {
	return func(b *Board, gs *GameState, tx *Tx) error {
		tx.Queue(func(gs *GameState, emit func(Event)) error {
			if moves {
				gs.Moved = make(TokenSet)
			}
			for _, id := range gs.PlayerOrder {
				if !gs.IsAlive(id) {
					continue
				}
				gs.Players[id].Mark = PlayerPending
				if moves {
					emit(Event{Type: EventMovesRecalculated, Player: id, Data: AvailableMoves(b, gs, id)})
				}
			}
			return nil
		})
		return nil
	}
}

func enterConflict(b *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		TagConflicts(b, gs)
		return nil
	})
	return nil
}

func tickConflict(b *Board, gs *GameState, tx *Tx) error {
	if noAreaTagged(b, gs) {
		return nil
	}
	tx.Queue(func(gs *GameState, emit func(Event)) error {
		report, err := ResolveConflicts(b, gs)
		if err != nil {
			return err
		}
		for _, z := range report.Zones {
			emit(Event{Type: EventConflictResolved, Area: z.Area, Data: z})
			if z.Destroyed != nil {
				emit(Event{Type: EventCityDestroyed, Player: z.Destroyed.Owner, Area: z.Area, Data: z.Destroyed})
			}
		}
		return nil
	})
	return nil
}

func enterSurplus(b *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		for _, id := range b.IDs() {
			if OverCapacity(b.Area(id), gs.Areas[id]) {
				gs.Areas[id].Mark = AreaSurplus
			}
		}
		return nil
	})
	return nil
}

func tickSurplus(b *Board, gs *GameState, tx *Tx) error {
	if noAreaTagged(b, gs) {
		return nil
	}
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		_, err := TrimSurplus(b, gs)
		return err
	})
	return nil
}

func enterCitySupport(_ *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		TagCitySupport(gs)
		return nil
	})
	return nil
}

func tickCitySupport(_ *Board, gs *GameState, tx *Tx) error {
	for _, p := range gs.Players {
		if p.Mark == PlayerNeedsCheck {
			tx.Queue(func(gs *GameState, _ func(Event)) error {
				EvaluateFlaggedPlayers(gs)
				return nil
			})
			return nil
		}
	}
	return nil
}

// enterCalamities moves every held calamity into the resolution queue.
func enterCalamities(_ *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, _ func(Event)) error {
		var held []HeldCalamity
		for _, id := range gs.PlayerOrder {
			p := gs.Players[id]
			for _, k := range p.Calamities {
				held = append(held, HeldCalamity{Player: id, Kind: k})
			}
			p.Calamities = nil
		}
		sortCalamities(held, gs.CensusOrder)
		gs.Calamities = append(gs.Calamities, held...)
		return nil
	})
	return nil
}

// tickCalamity resolves one queued calamity per tick.
func tickCalamity(b *Board, gs *GameState, tx *Tx, cards *CardSet) error {
	if len(gs.Calamities) == 0 {
		return nil
	}
	tx.Queue(func(gs *GameState, emit func(Event)) error {
		c := gs.Calamities[0]
		gs.Calamities = gs.Calamities[1:]
		rep := ResolveCalamity(b, gs, c.Player, c.Kind, cards)
		emit(Event{Type: EventCalamityResolved, Player: c.Player, Data: rep})
		return nil
	})
	return nil
}

func enterSuccession(_ *Board, gs *GameState, tx *Tx) error {
	tx.Queue(func(gs *GameState, emit func(Event)) error {
		gs.Turn++
		gs.Moved = make(TokenSet)
		emit(Event{Type: EventTurnAdvanced, Data: gs.Turn})
		return nil
	})
	return nil
}
