package civ

import (
	"fmt"
	"sync"
)

// AegeanMapID is the identifier of the built-in board.
const AegeanMapID = "aegean"

var (
	aegeanOnce sync.Once
	aegeanInst *Board
)

// SampleBoard returns the built-in eastern Mediterranean board. The board is
// built once and cached; callers must not mutate it.
func SampleBoard() *Board {
	aegeanOnce.Do(func() {
		b, err := NewBoard(AegeanMapID, aegeanAreas())
		if err != nil {
			panic(fmt.Sprintf("built-in board is invalid: %v", err))
		}
		aegeanInst = b
	})
	return aegeanInst
}

// BoardByID returns a built-in board by its map ID.
func BoardByID(mapID string) (*Board, error) {
	switch mapID {
	case AegeanMapID, "":
		return SampleBoard(), nil
	}
	return nil, fmt.Errorf("unknown map %q", mapID)
}

func aegeanAreas() []AreaDef {
	edges := [][2]AreaID{
		{"att", "boe"}, {"att", "arg"}, {"att", "eub"}, {"att", "cyc"},
		{"boe", "thes"}, {"boe", "eub"}, {"boe", "epi"},
		{"thes", "mac"}, {"thes", "epi"}, {"thes", "eub"},
		{"mac", "thr"}, {"mac", "epi"},
		{"thr", "tro"},
		{"epi", "pel"},
		{"pel", "arg"}, {"pel", "cre"},
		{"arg", "cyc"},
		{"the", "cyc"}, {"the", "cre"}, {"the", "rho"},
		{"cre", "rho"}, {"cre", "nile"},
		{"cyc", "ion"},
		{"ion", "lyd"}, {"ion", "car"}, {"ion", "tro"},
		{"lyd", "tro"}, {"lyd", "car"},
		{"rho", "car"},
	}

	areas := []AreaDef{
		{ID: "att", Name: "Attica", MaxPopulation: 3, CitySite: true},
		{ID: "boe", Name: "Boeotia", MaxPopulation: 2},
		{ID: "thes", Name: "Thessaly", MaxPopulation: 4, FloodPlain: true},
		{ID: "mac", Name: "Macedonia", MaxPopulation: 3},
		{ID: "thr", Name: "Thrace", MaxPopulation: 2},
		{ID: "epi", Name: "Epirus", MaxPopulation: 2},
		{ID: "pel", Name: "Peloponnese", MaxPopulation: 4, CitySite: true},
		{ID: "arg", Name: "Argolis", MaxPopulation: 2},
		{ID: "eub", Name: "Euboea", MaxPopulation: 1},
		{ID: "the", Name: "Thera", MaxPopulation: 1, Volcano: true},
		{ID: "cre", Name: "Crete", MaxPopulation: 3, CitySite: true},
		{ID: "cyc", Name: "Cyclades", MaxPopulation: 1},
		{ID: "ion", Name: "Ionia", MaxPopulation: 3, CitySite: true},
		{ID: "lyd", Name: "Lydia", MaxPopulation: 4, FloodPlain: true},
		{ID: "tro", Name: "Troad", MaxPopulation: 2},
		{ID: "rho", Name: "Rhodes", MaxPopulation: 1},
		{ID: "car", Name: "Caria", MaxPopulation: 2},
		{ID: "nile", Name: "Nile Delta", MaxPopulation: 5, FloodPlain: true, CitySite: true},
	}

	index := make(map[AreaID]int, len(areas))
	for i, a := range areas {
		index[a.ID] = i
	}
	for _, e := range edges {
		a, c := index[e[0]], index[e[1]]
		areas[a].Neighbors = append(areas[a].Neighbors, e[1])
		areas[c].Neighbors = append(areas[c].Neighbors, e[0])
	}
	return areas
}
