package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"

	"cosmic-nav/server/internal/config"
	"cosmic-nav/server/internal/pathfind"
)

func main() {
	var (
		layoutPath string
		heuristic  string
		corners    bool
		clearance  int
	)
	flag.StringVar(&layoutPath, "layout", "", "glyph layout file; empty uses an open 17x17 grid")
	flag.StringVar(&heuristic, "heuristic", "manhattan", "manhattan or chebyshev")
	flag.BoolVar(&corners, "corner-cutting", false, "allow diagonal moves past blocked corners")
	flag.IntVar(&clearance, "clearance", 0, "clearance ring around placed obstacles")
	flag.Parse()

	worldCfg := config.Default().World
	worldCfg.LayoutFile = layoutPath
	grid, err := worldCfg.Grid()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load grid: %v\n", err)
		os.Exit(1)
	}
	h, err := pathfind.ParseHeuristic(heuristic)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	v := newViewer(grid, pathfind.Planner{
		Mapper:  worldCfg.Mapper(),
		Options: pathfind.Options{Heuristic: h, AllowCornerCutting: corners},
	}, clearance)
	run(screen, v)
}

func run(screen tcell.Screen, v *viewer) {
	v.draw(screen)
	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			if v.handleKey(ev) {
				return
			}
		}
		v.draw(screen)
	}
}
