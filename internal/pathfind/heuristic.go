package pathfind

import (
	"fmt"
	"strings"

	"cosmic-nav/server/internal/world"
)

// Heuristic selects the remaining-cost estimate used by Search.
type Heuristic uint8

const (
	// HeuristicManhattan sums the axis distances. With diagonal moves charged
	// the destination cost alone it can overestimate, so paths found with it
	// are not guaranteed to be cheapest.
	HeuristicManhattan Heuristic = iota
	// HeuristicChebyshev takes the larger axis distance. Every step advances
	// at most one cell per axis and costs at least world.MinBaseCost, so this
	// estimate never overestimates and the search returns cheapest paths.
	HeuristicChebyshev
)

func (h Heuristic) String() string {
	switch h {
	case HeuristicManhattan:
		return "manhattan"
	case HeuristicChebyshev:
		return "chebyshev"
	default:
		return fmt.Sprintf("Heuristic(%d)", uint8(h))
	}
}

// ParseHeuristic resolves a heuristic by name. An empty name selects Manhattan.
func ParseHeuristic(name string) (Heuristic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "manhattan":
		return HeuristicManhattan, nil
	case "chebyshev":
		return HeuristicChebyshev, nil
	default:
		return 0, fmt.Errorf("unknown heuristic %q", name)
	}
}

// Admissible reports whether the heuristic never overestimates.
func (h Heuristic) Admissible() bool {
	return h == HeuristicChebyshev
}

func (h Heuristic) fn() func(a, b world.Cell) float64 {
	switch h {
	case HeuristicChebyshev:
		return chebyshev
	default:
		return manhattan
	}
}

func manhattan(a, b world.Cell) float64 {
	return float64(absInt(a.X-b.X) + absInt(a.Y-b.Y))
}

func chebyshev(a, b world.Cell) float64 {
	return float64(max(absInt(a.X-b.X), absInt(a.Y-b.Y)))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
