package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "cosmic-nav/server"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under one of the
// Deny prefixes.
type rule struct {
	From string
	Deny []string
}

// coreRules keep the navigation core free of transport, simulation and event
// plumbing so it can be driven from tools and tests alone.
var coreRules = []rule{
	{
		From: modulePath + "/internal/world",
		Deny: []string{modulePath + "/internal/pathfind", modulePath + "/internal/obstacles", modulePath + "/internal/replan"},
	},
	{From: modulePath + "/internal/world", Deny: transportPrefixes()},
	{From: modulePath + "/internal/pathfind", Deny: transportPrefixes()},
	{From: modulePath + "/internal/obstacles", Deny: transportPrefixes()},
	{From: modulePath + "/internal/replan", Deny: transportPrefixes()},
	{
		From: modulePath + "/internal/sim",
		Deny: []string{modulePath + "/internal/net", "github.com/gorilla/websocket"},
	},
}

func transportPrefixes() []string {
	return []string{
		modulePath + "/internal/net",
		modulePath + "/internal/sim",
		modulePath + "/logging",
		"github.com/gorilla/websocket",
		"net/http",
	}
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	pkgs, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if found := violations(pkgs, coreRules); len(found) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range found {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var pkgs []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
}

func violations(pkgs []packageInfo, rules []rule) []string {
	var out []string
	for _, pkg := range pkgs {
		for _, r := range rules {
			if !underPath(pkg.ImportPath, r.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, deny := range r.Deny {
					if underPath(imp, deny) {
						out = append(out, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func underPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
