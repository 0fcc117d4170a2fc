package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"cosmic-nav/server/internal/net/proto"
)

// protocol groups every websocket frame so one schema document covers the
// whole wire format.
type protocol struct {
	Client        proto.ClientMessage `json:"client"`
	CommandAck    proto.CommandAck    `json:"commandAck"`
	CommandReject proto.CommandReject `json:"commandReject"`
	Welcome       proto.Welcome       `json:"welcome"`
	Path          proto.PathUpdate    `json:"path"`
	PathFailed    proto.PathFailed    `json:"pathFailed"`
	Arrived       proto.Arrived       `json:"arrived"`
	GridChanged   proto.GridChanged   `json:"gridChanged"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(protocol))
	schema.Title = "Navigation Wire Protocol"
	schema.Description = fmt.Sprintf("Websocket frames exchanged with the navigation server, protocol version %d", proto.Version)
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	return os.Rename(tmpPath, outPath)
}
