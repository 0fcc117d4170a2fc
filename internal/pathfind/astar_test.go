package pathfind

import (
	"math"
	"math/rand"
	"testing"

	"cosmic-nav/server/internal/world"
)

func mustLayout(t *testing.T, text string) *world.Grid {
	t.Helper()
	grid, err := world.ParseLayoutAt(text, world.Cell{})
	if err != nil {
		t.Fatalf("parse layout: %v", err)
	}
	return grid
}

func assertValidPath(t *testing.T, path []world.Cell, start, goal world.Cell, terrain Terrain) {
	t.Helper()
	if len(path) == 0 {
		t.Fatalf("expected non-empty path")
	}
	if path[0] != start || path[len(path)-1] != goal {
		t.Fatalf("path must run %+v -> %+v, got %+v -> %+v", start, goal, path[0], path[len(path)-1])
	}
	for i, c := range path {
		if !terrain.IsWalkable(c) {
			t.Fatalf("path cell %d %+v is not walkable", i, c)
		}
		if i == 0 {
			continue
		}
		prev := path[i-1]
		dx, dy := absInt(c.X-prev.X), absInt(c.Y-prev.Y)
		if dx > 1 || dy > 1 || (dx == 0 && dy == 0) {
			t.Fatalf("step %d from %+v to %+v is not a single move", i, prev, c)
		}
	}
}

func TestScenarioBridgeCrossing(t *testing.T) {
	grid := mustLayout(t, `
		..~..
		..~..
		..~..
		..=..
		..~..
	`)
	start, goal := world.Cell{X: 0, Y: 0}, world.Cell{X: 4, Y: 4}
	path, ok := FindPath(start, goal, grid)
	if !ok {
		t.Fatalf("expected a path across the bridge")
	}
	assertValidPath(t, path, start, goal, grid)
	crossed := false
	for _, c := range path {
		if c == (world.Cell{X: 2, Y: 3}) {
			crossed = true
		}
	}
	if !crossed {
		t.Fatalf("expected path through bridge (2,3), got %+v", path)
	}
}

func TestScenarioCorruptedVoidBlocksCorridor(t *testing.T) {
	grid := mustLayout(t, "..v..")
	start, goal := world.Cell{X: 0}, world.Cell{X: 4}
	if _, ok := FindPath(start, goal, grid); !ok {
		t.Fatalf("expected a path over clean void")
	}
	grid.SetCorruption(world.Cell{X: 2}, 0.95)
	if path, ok := FindPath(start, goal, grid); ok {
		t.Fatalf("expected no path once the void is corrupted, got %+v", path)
	}
}

func TestScenarioCorruptedVoidForcesDetour(t *testing.T) {
	grid := mustLayout(t, `
		..v..
		.###.
		.....
	`)
	start, goal := world.Cell{X: 0}, world.Cell{X: 4}
	void := world.Cell{X: 2}
	if _, ok := FindPath(start, goal, grid); !ok {
		t.Fatalf("expected an initial path")
	}
	grid.SetCorruption(void, 0.95)
	path, ok := FindPath(start, goal, grid)
	if !ok {
		t.Fatalf("expected a detour through the bottom row")
	}
	assertValidPath(t, path, start, goal, grid)
	for _, c := range path {
		if c == void {
			t.Fatalf("detour must avoid the corrupted void: %+v", path)
		}
	}
}

func TestFindPathFailsOnUnwalkableEndpoints(t *testing.T) {
	grid := mustLayout(t, "..#")
	if _, ok := FindPath(world.Cell{}, world.Cell{X: 2}, grid); ok {
		t.Fatalf("unwalkable goal must fail")
	}
	if _, ok := FindPath(world.Cell{X: 2}, world.Cell{}, grid); ok {
		t.Fatalf("unwalkable start must fail")
	}
	if _, ok := FindPath(world.Cell{}, world.Cell{X: 9}, grid); ok {
		t.Fatalf("out-of-bounds goal must fail")
	}
}

func TestFindPathStartEqualsGoal(t *testing.T) {
	grid := mustLayout(t, "...")
	path, ok := FindPath(world.Cell{X: 1}, world.Cell{X: 1}, grid)
	if !ok || len(path) != 1 || path[0] != (world.Cell{X: 1}) {
		t.Fatalf("expected single-cell path, got %+v ok=%v", path, ok)
	}
}

func TestFindPathEnclosedGoalIsUnreachable(t *testing.T) {
	grid := mustLayout(t, `
		.....
		.###.
		.#.#.
		.###.
		.....
	`)
	if path, ok := FindPath(world.Cell{}, world.Cell{X: 2, Y: 2}, grid); ok {
		t.Fatalf("enclosed goal must be unreachable, got %+v", path)
	}
}

func TestDiagonalSqueezeRespectsCornerOption(t *testing.T) {
	grid := mustLayout(t, `
		.#
		#.
	`)
	start, goal := world.Cell{}, world.Cell{X: 1, Y: 1}
	if path, ok := FindPath(start, goal, grid); ok {
		t.Fatalf("default search must not squeeze between diagonal walls, got %+v", path)
	}
	if _, ok := Search(start, goal, grid, Options{AllowCornerCutting: true}); !ok {
		t.Fatalf("corner cutting should allow the squeeze")
	}
}

func TestMaxExpansionsAbortsSearch(t *testing.T) {
	grid := world.NewGrid(world.Bounds{Width: 40, Height: 40})
	start, goal := world.Cell{}, world.Cell{X: 39, Y: 39}
	if _, ok := Search(start, goal, grid, Options{MaxExpansions: 3}); ok {
		t.Fatalf("expected the capped search to give up")
	}
	if _, ok := Search(start, goal, grid, Options{}); !ok {
		t.Fatalf("uncapped search should succeed")
	}
}

func randomGrid(rng *rand.Rand, width, height int, blocked float64) *world.Grid {
	grid := world.NewGrid(world.Bounds{MinX: -width / 2, MinY: -height / 2, Width: width, Height: height})
	b := grid.Bounds()
	for y := b.MinY; y <= b.MaxY(); y++ {
		for x := b.MinX; x <= b.MaxX(); x++ {
			c := world.Cell{X: x, Y: y}
			switch r := rng.Float64(); {
			case r < blocked:
				grid.SetWalkable(c, false)
			case r < blocked+0.1:
				grid.SetTile(c, world.NewTile(world.TileVoid))
				grid.SetCorruption(c, rng.Float64())
			case r < blocked+0.15:
				grid.SetTile(c, world.NewTile(world.TileBridge))
			}
		}
	}
	return grid
}

func randomWalkable(rng *rand.Rand, grid *world.Grid) (world.Cell, bool) {
	b := grid.Bounds()
	for i := 0; i < 200; i++ {
		c := world.Cell{X: b.MinX + rng.Intn(b.Width), Y: b.MinY + rng.Intn(b.Height)}
		if grid.IsWalkable(c) {
			return c, true
		}
	}
	return world.Cell{}, false
}

// connected floods 8-connected walkable cells from start.
func connected(grid *world.Grid, start world.Cell, preventCorners bool) map[world.Cell]bool {
	seen := map[world.Cell]bool{start: true}
	queue := []world.Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range neighborOffsets {
			next := cur.Offset(d.dx, d.dy)
			if seen[next] || !grid.IsWalkable(next) {
				continue
			}
			if d.diagonal && preventCorners && !canTraverseDiagonal(cur, d, grid) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

func TestReachabilityMatchesFloodFill(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 150; trial++ {
		grid := randomGrid(rng, 14, 11, 0.3)
		start, ok1 := randomWalkable(rng, grid)
		goal, ok2 := randomWalkable(rng, grid)
		if !ok1 || !ok2 {
			continue
		}
		prevent := trial%2 == 1
		reachable := connected(grid, start, prevent)[goal]
		path, ok := Search(start, goal, grid, Options{AllowCornerCutting: !prevent})
		if ok != reachable {
			t.Fatalf("trial %d: search ok=%v but flood fill reachable=%v (%+v -> %+v)\n%s", trial, ok, reachable, start, goal, world.FormatLayout(grid))
		}
		if ok {
			assertValidPath(t, path, start, goal, grid)
		}
	}
}

func pathCost(path []world.Cell, terrain Terrain) float64 {
	total := 0.0
	for _, c := range path[1:] {
		total += terrain.Cost(c)
	}
	return total
}

// cheapest runs Dijkstra over the same move and cost model.
func cheapest(grid *world.Grid, start, goal world.Cell, preventCorners bool) (float64, bool) {
	dist := map[world.Cell]float64{start: 0}
	done := map[world.Cell]bool{}
	for {
		var cur world.Cell
		best := math.Inf(1)
		for c, d := range dist {
			if !done[c] && d < best {
				best, cur = d, c
			}
		}
		if math.IsInf(best, 1) {
			return 0, false
		}
		if cur == goal {
			return best, true
		}
		done[cur] = true
		for _, d := range neighborOffsets {
			next := cur.Offset(d.dx, d.dy)
			if !grid.IsWalkable(next) || done[next] {
				continue
			}
			if d.diagonal && preventCorners && !canTraverseDiagonal(cur, d, grid) {
				continue
			}
			nd := best + grid.Cost(next)
			if old, ok := dist[next]; !ok || nd < old {
				dist[next] = nd
			}
		}
	}
}

func TestChebyshevHeuristicFindsCheapestPath(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 80; trial++ {
		grid := randomGrid(rng, 10, 10, 0.2)
		start, ok1 := randomWalkable(rng, grid)
		goal, ok2 := randomWalkable(rng, grid)
		if !ok1 || !ok2 {
			continue
		}
		allow := trial%2 == 1
		want, reachable := cheapest(grid, start, goal, !allow)
		path, ok := Search(start, goal, grid, Options{Heuristic: HeuristicChebyshev, AllowCornerCutting: allow})
		if ok != reachable {
			t.Fatalf("trial %d: ok=%v reachable=%v", trial, ok, reachable)
		}
		if !ok {
			continue
		}
		if got := pathCost(path, grid); math.Abs(got-want) > 1e-9 {
			t.Fatalf("trial %d: chebyshev path cost %v, cheapest %v", trial, got, want)
		}
	}
}

func TestManhattanIsDefaultHeuristic(t *testing.T) {
	var opts Options
	if opts.Heuristic != HeuristicManhattan {
		t.Fatalf("expected Manhattan as the zero value")
	}
	if HeuristicManhattan.Admissible() || !HeuristicChebyshev.Admissible() {
		t.Fatalf("unexpected admissibility flags")
	}
	h, err := ParseHeuristic("Chebyshev")
	if err != nil || h != HeuristicChebyshev {
		t.Fatalf("expected chebyshev, got %v err=%v", h, err)
	}
	if _, err := ParseHeuristic("octile"); err == nil {
		t.Fatalf("expected unknown heuristic error")
	}
}
