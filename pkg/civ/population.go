package civ

import (
	"encoding/json"
	"sort"
)

// TokenSet is a set of token IDs. It encodes to JSON as a sorted array.
type TokenSet map[TokenID]struct{}

// NewTokenSet returns a set holding ids.
func NewTokenSet(ids ...TokenID) TokenSet {
	s := make(TokenSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s TokenSet) Has(id TokenID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of tokens in the set.
func (s TokenSet) Len() int {
	return len(s)
}

// Sorted returns the tokens in ascending order.
func (s TokenSet) Sorted() []TokenID {
	out := make([]TokenID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of the set.
func (s TokenSet) Clone() TokenSet {
	c := make(TokenSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func (s TokenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TokenSet) UnmarshalJSON(data []byte) error {
	var ids []TokenID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewTokenSet(ids...)
	return nil
}

// Population is the content of one area: the tokens each player holds there.
// Players without tokens never appear as keys. Totals are always derived from
// the map.
type Population map[PlayerID]TokenSet

// Total returns the number of tokens in the area.
func (p Population) Total() int {
	n := 0
	for _, s := range p {
		n += len(s)
	}
	return n
}

// NumPlayers returns how many players hold at least one token.
func (p Population) NumPlayers() int {
	n := 0
	for _, s := range p {
		if len(s) > 0 {
			n++
		}
	}
	return n
}

// Count returns how many tokens player holds in the area.
func (p Population) Count(player PlayerID) int {
	return len(p[player])
}

// Players returns the contenders in ascending ID order.
func (p Population) Players() []PlayerID {
	out := make([]PlayerID, 0, len(p))
	for id, s := range p {
		if len(s) > 0 {
			out = append(out, id)
		}
	}
	sortPlayerIDs(out)
	return out
}

// Tokens returns player's tokens in ascending order.
func (p Population) Tokens(player PlayerID) []TokenID {
	return p[player].Sorted()
}

// Clone returns a deep copy.
func (p Population) Clone() Population {
	c := make(Population, len(p))
	for id, s := range p {
		c[id] = s.Clone()
	}
	return c
}

func (p Population) add(player PlayerID, t TokenID) {
	s := p[player]
	if s == nil {
		s = make(TokenSet)
		p[player] = s
	}
	s[t] = struct{}{}
}

func (p Population) remove(player PlayerID, t TokenID) bool {
	s := p[player]
	if !s.Has(t) {
		return false
	}
	delete(s, t)
	if len(s) == 0 {
		delete(p, player)
	}
	return true
}

// contender is a working copy of one player's tokens in an area, used by the
// resolution algorithms. Tokens are kept ascending; removals take from the end.
type contender struct {
	player PlayerID
	tokens []TokenID
}

func (c *contender) count() int { return len(c.tokens) }

// take removes up to n tokens, highest IDs first.
func (c *contender) take(n int) []TokenID {
	if n > len(c.tokens) {
		n = len(c.tokens)
	}
	if n <= 0 {
		return nil
	}
	cut := len(c.tokens) - n
	out := append([]TokenID(nil), c.tokens[cut:]...)
	c.tokens = c.tokens[:cut]
	return out
}

// contenders snapshots every player holding tokens, ordered by player ID.
func contenders(p Population) []*contender {
	ids := p.Players()
	out := make([]*contender, 0, len(ids))
	for _, id := range ids {
		out = append(out, &contender{player: id, tokens: p.Tokens(id)})
	}
	return out
}

func totalOf(cs []*contender) int {
	n := 0
	for _, c := range cs {
		n += c.count()
	}
	return n
}
