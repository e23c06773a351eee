// Package cards loads calamity and civilization card definitions from YAML.
package cards

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/mare-nostrum/pkg/civ"
)

//go:embed default_cards.yaml
var defaultDeck []byte

// Deck is the on-disk layout of a card file.
type Deck struct {
	Calamities []civ.CalamityDef `yaml:"calamities"`
	CivCards   []civ.CivCard     `yaml:"civ_cards"`
}

// Parse decodes a YAML deck and validates it. Unknown fields are rejected.
func Parse(data []byte) (*civ.CardSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Deck
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse cards: empty document")
		}
		return nil, fmt.Errorf("parse cards: %w", err)
	}
	cs, err := civ.NewCardSet(d.Calamities, d.CivCards)
	if err != nil {
		return nil, fmt.Errorf("validate cards: %w", err)
	}
	return cs, nil
}

// Load reads the deck at path, or the embedded default deck when path is empty.
func Load(path string) (*civ.CardSet, error) {
	if path == "" {
		return Parse(defaultDeck)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cards: %w", err)
	}
	return Parse(data)
}

// Marshal renders a card set back to YAML, calamities in resolution order
// and civilization cards by ID.
func Marshal(cs *civ.CardSet) ([]byte, error) {
	var d Deck
	for _, k := range []civ.CalamityKind{civ.VolcanoEarthquake, civ.Famine, civ.Flood, civ.Epidemic} {
		if c, ok := cs.Calamities[k]; ok {
			d.Calamities = append(d.Calamities, c)
		}
	}
	for _, id := range cs.CardIDs() {
		d.CivCards = append(d.CivCards, cs.CivCards[id])
	}
	return yaml.Marshal(&d)
}
