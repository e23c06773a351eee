package civ

import (
	"fmt"
	"sort"
)

// CalamityKind identifies a calamity card.
type CalamityKind string

const (
	VolcanoEarthquake CalamityKind = "volcano_earthquake"
	Famine            CalamityKind = "famine"
	Flood             CalamityKind = "flood"
	Epidemic          CalamityKind = "epidemic"
)

// calamityOrder is the order calamities resolve in within a turn.
var calamityOrder = []CalamityKind{VolcanoEarthquake, Famine, Flood, Epidemic}

// Valid reports whether k is a known calamity.
func (k CalamityKind) Valid() bool {
	for _, c := range calamityOrder {
		if c == k {
			return true
		}
	}
	return false
}

func (k CalamityKind) rank() int {
	for i, c := range calamityOrder {
		if c == k {
			return i
		}
	}
	return len(calamityOrder)
}

// CalamityDef is the definition of a calamity card. UnitPoints is the number
// of tokens lost by the victim for calamities that cost population.
type CalamityDef struct {
	Kind       CalamityKind `json:"kind" yaml:"kind"`
	Name       string       `json:"name" yaml:"name"`
	UnitPoints int          `json:"unit_points" yaml:"unit_points"`
}

// ModifierKind identifies how a civilization card changes a calamity.
type ModifierKind string

const (
	DestroyToReduce ModifierKind = "destroy_to_reduce" // Destroyed cities are reduced instead
	Immunity        ModifierKind = "immunity"          // The calamity has no effect
	ReduceLoss      ModifierKind = "reduce_loss"       // Subtract Amount from the unit point loss
	ScaleLoss       ModifierKind = "scale_loss"        // Multiply the unit point loss by Num/Den
)

// Modifier is one effect of a civilization card on a calamity.
type Modifier struct {
	Calamity CalamityKind `json:"calamity" yaml:"calamity"`
	Kind     ModifierKind `json:"kind" yaml:"kind"`
	Amount   int          `json:"amount,omitempty" yaml:"amount,omitempty"`
	Num      int          `json:"num,omitempty" yaml:"num,omitempty"`
	Den      int          `json:"den,omitempty" yaml:"den,omitempty"`
}

// CivCard is a civilization card definition.
type CivCard struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Cost      int        `json:"cost" yaml:"cost"`
	Modifiers []Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// CardSet holds the card definitions for a game. It is read-only once built.
type CardSet struct {
	Calamities map[CalamityKind]CalamityDef
	CivCards   map[string]CivCard
}

// NewCardSet validates the definitions and builds a CardSet.
func NewCardSet(calamities []CalamityDef, civCards []CivCard) (*CardSet, error) {
	cs := &CardSet{
		Calamities: make(map[CalamityKind]CalamityDef, len(calamities)),
		CivCards:   make(map[string]CivCard, len(civCards)),
	}
	for _, c := range calamities {
		if !c.Kind.Valid() {
			return nil, fmt.Errorf("unknown calamity %q", c.Kind)
		}
		if c.UnitPoints < 0 {
			return nil, fmt.Errorf("calamity %s: negative unit points", c.Kind)
		}
		cs.Calamities[c.Kind] = c
	}
	for _, k := range calamityOrder {
		if _, ok := cs.Calamities[k]; !ok {
			return nil, fmt.Errorf("calamity %s not defined", k)
		}
	}
	for _, card := range civCards {
		if card.ID == "" {
			return nil, fmt.Errorf("civilization card without id")
		}
		if _, dup := cs.CivCards[card.ID]; dup {
			return nil, fmt.Errorf("duplicate civilization card %s", card.ID)
		}
		for _, m := range card.Modifiers {
			if err := m.validate(); err != nil {
				return nil, fmt.Errorf("card %s: %w", card.ID, err)
			}
		}
		cs.CivCards[card.ID] = card
	}
	return cs, nil
}

func (m Modifier) validate() error {
	if !m.Calamity.Valid() {
		return fmt.Errorf("modifier for unknown calamity %q", m.Calamity)
	}
	switch m.Kind {
	case DestroyToReduce, Immunity:
	case ReduceLoss:
		if m.Amount <= 0 {
			return fmt.Errorf("reduce_loss needs a positive amount")
		}
	case ScaleLoss:
		if m.Num < 0 || m.Den <= 0 {
			return fmt.Errorf("scale_loss needs num >= 0 and den > 0")
		}
	default:
		return fmt.Errorf("unknown modifier %q", m.Kind)
	}
	return nil
}

// Card returns a civilization card definition.
func (cs *CardSet) Card(id string) (CivCard, bool) {
	c, ok := cs.CivCards[id]
	return c, ok
}

// CardIDs returns the civilization card IDs in sorted order.
func (cs *CardSet) CardIDs() []string {
	ids := make([]string, 0, len(cs.CivCards))
	for id := range cs.CivCards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CardsOf returns the definitions of the cards player owns, sorted by ID.
// Unknown card IDs are skipped.
func (cs *CardSet) CardsOf(p *Player) []CivCard {
	var out []CivCard
	for _, id := range p.CivCards {
		if c, ok := cs.CivCards[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultCards returns the built-in card definitions.
func DefaultCards() *CardSet {
	cs, err := NewCardSet(
		[]CalamityDef{
			{Kind: VolcanoEarthquake, Name: "Volcanic Eruption / Earthquake"},
			{Kind: Famine, Name: "Famine", UnitPoints: 10},
			{Kind: Flood, Name: "Flood"},
			{Kind: Epidemic, Name: "Epidemic", UnitPoints: 16},
		},
		[]CivCard{
			{ID: "engineering", Name: "Engineering", Cost: 140, Modifiers: []Modifier{
				{Calamity: VolcanoEarthquake, Kind: DestroyToReduce},
			}},
			{ID: "pottery", Name: "Pottery", Cost: 45, Modifiers: []Modifier{
				{Calamity: Famine, Kind: ReduceLoss, Amount: 4},
			}},
			{ID: "medicine", Name: "Medicine", Cost: 140, Modifiers: []Modifier{
				{Calamity: Epidemic, Kind: ScaleLoss, Num: 1, Den: 2},
			}},
			{ID: "agriculture", Name: "Agriculture", Cost: 110},
			{ID: "astronomy", Name: "Astronomy", Cost: 80},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in cards are invalid: %v", err))
	}
	return cs
}

// ApplyCivCardModifiers transforms effects by the modifiers of cards, applied
// in card ID order. It returns a new value and does not modify effects.
func ApplyCivCardModifiers(effects CalamityEffects, cards []CivCard) CalamityEffects {
	out := effects.clone()
	sorted := append([]CivCard(nil), cards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, card := range sorted {
		for _, m := range card.Modifiers {
			if m.Calamity != out.Kind {
				continue
			}
			switch m.Kind {
			case Immunity:
				out = CalamityEffects{Kind: out.Kind, Victim: out.Victim, Immune: true}
			case DestroyToReduce:
				out.ReduceCities = append(out.ReduceCities, out.DestroyCities...)
				out.DestroyCities = nil
				sortAreaIDs(out.ReduceCities)
			case ReduceLoss:
				out.UnitPointLoss -= m.Amount
				if out.UnitPointLoss < 0 {
					out.UnitPointLoss = 0
				}
			case ScaleLoss:
				out.UnitPointLoss = out.UnitPointLoss * m.Num / m.Den
			}
			out.Modifiers = append(out.Modifiers, card.ID+":"+string(m.Kind))
		}
	}
	return out
}
