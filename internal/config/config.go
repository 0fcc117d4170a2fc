// Package config loads the server configuration from YAML and environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cosmic-nav/server/internal/pathfind"
	"cosmic-nav/server/internal/world"
	"cosmic-nav/server/logging"
)

// ErrInvalidConfig wraps every validation and override failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sim       SimConfig       `yaml:"sim"`
	World     WorldConfig     `yaml:"world"`
	Pathfind  PathfindConfig  `yaml:"pathfind"`
	Obstacles ObstaclesConfig `yaml:"obstacles"`
	Replan    ReplanConfig    `yaml:"replan"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SimConfig struct {
	TickRate        int `yaml:"tick_rate"`
	CatchupMaxTicks int `yaml:"catchup_max_ticks"`
	CommandCapacity int `yaml:"command_capacity"`
	PerUnitLimit    int `yaml:"per_unit_limit"`
	WarningStep     int `yaml:"warning_step"`
	// Workers bounds parallel planning. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

type WorldConfig struct {
	TileSize   float64 `yaml:"tile_size"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Layout     string  `yaml:"layout"`
	LayoutFile string  `yaml:"layout_file"`
}

type PathfindConfig struct {
	Heuristic          string `yaml:"heuristic"`
	AllowCornerCutting bool   `yaml:"allow_corner_cutting"`
	MaxExpansions      int    `yaml:"max_expansions"`
}

type ObstaclesConfig struct {
	DefaultClearance int `yaml:"default_clearance"`
	// AuditEveryTicks runs the residual-mark audit on this interval. Zero
	// disables it.
	AuditEveryTicks int `yaml:"audit_every_ticks"`
}

type ReplanConfig struct {
	StuckSpeed        float64 `yaml:"stuck_speed"`
	StuckTimeoutTicks int     `yaml:"stuck_timeout_ticks"`
	CooldownTicks     int     `yaml:"cooldown_ticks"`
	ArriveRadius      float64 `yaml:"arrive_radius"`
	DefaultSpeed      float64 `yaml:"default_speed"`
}

type LoggingConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Sinks      []string `yaml:"sinks"`
	JSONPath   string   `yaml:"json_path"`
	BufferSize int      `yaml:"buffer_size"`
	UseColor   bool     `yaml:"use_color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Sim: SimConfig{
			TickRate:        15,
			CatchupMaxTicks: 3,
			CommandCapacity: 1024,
			PerUnitLimit:    8,
			WarningStep:     256,
		},
		World: WorldConfig{
			TileSize: world.DefaultTileSize,
			Width:    17,
			Height:   17,
		},
		Pathfind:  PathfindConfig{Heuristic: pathfind.HeuristicManhattan.String()},
		Obstacles: ObstaclesConfig{DefaultClearance: 1, AuditEveryTicks: 0},
		Replan: ReplanConfig{
			StuckSpeed:        0.5,
			StuckTimeoutTicks: 6,
			CooldownTicks:     8,
			ArriveRadius:      1,
			DefaultSpeed:      5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Sinks:      []string{logging.SinkConsole},
			BufferSize: 512,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides fields from NAV_* environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	str := func(key string, dst *string) {
		if raw, ok := lookup(key); ok && raw != "" {
			*dst = raw
		}
	}
	num := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok || raw == "" {
			return
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = value
	}
	float := func(key string, dst *float64) {
		raw, ok := lookup(key)
		if !ok || raw == "" {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = value
	}
	flag := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok || raw == "" {
			return
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = value
	}

	str("NAV_ADDR", &c.Server.Addr)
	num("NAV_TICK_RATE", &c.Sim.TickRate)
	num("NAV_WORKERS", &c.Sim.Workers)
	float("NAV_TILE_SIZE", &c.World.TileSize)
	str("NAV_LAYOUT_FILE", &c.World.LayoutFile)
	str("NAV_HEURISTIC", &c.Pathfind.Heuristic)
	flag("NAV_ALLOW_CORNER_CUTTING", &c.Pathfind.AllowCornerCutting)
	num("NAV_CLEARANCE", &c.Obstacles.DefaultClearance)
	str("NAV_LOG_LEVEL", &c.Logging.Level)
	str("NAV_LOG_FORMAT", &c.Logging.Format)
	str("NAV_LOG_JSON_PATH", &c.Logging.JSONPath)
	if raw, ok := lookup("NAV_LOG_SINKS"); ok && raw != "" {
		c.Logging.Sinks = splitList(raw)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	check(c.Server.Addr != "", "server.addr is empty")
	check(c.Sim.TickRate > 0, "sim.tick_rate must be positive, got %d", c.Sim.TickRate)
	check(c.Sim.CommandCapacity > 0, "sim.command_capacity must be positive, got %d", c.Sim.CommandCapacity)
	check(c.Sim.PerUnitLimit >= 0, "sim.per_unit_limit must not be negative")
	check(c.Sim.Workers >= 0, "sim.workers must not be negative")
	check(c.World.TileSize > 0, "world.tile_size must be positive, got %v", c.World.TileSize)
	if c.World.Layout == "" && c.World.LayoutFile == "" {
		check(c.World.Width > 0 && c.World.Height > 0, "world size must be positive, got %dx%d", c.World.Width, c.World.Height)
	}
	_, err := pathfind.ParseHeuristic(c.Pathfind.Heuristic)
	check(err == nil, "pathfind.heuristic: %v", err)
	check(c.Pathfind.MaxExpansions >= 0, "pathfind.max_expansions must not be negative")
	check(c.Obstacles.DefaultClearance >= 0, "obstacles.default_clearance must not be negative")
	check(c.Obstacles.AuditEveryTicks >= 0, "obstacles.audit_every_ticks must not be negative")
	check(c.Replan.StuckSpeed >= 0, "replan.stuck_speed must not be negative")
	check(c.Replan.StuckTimeoutTicks > 0, "replan.stuck_timeout_ticks must be positive")
	check(c.Replan.CooldownTicks >= 0, "replan.cooldown_ticks must not be negative")
	check(c.Replan.ArriveRadius >= 0, "replan.arrive_radius must not be negative")
	check(c.Replan.DefaultSpeed > 0, "replan.default_speed must be positive")
	_, err = logging.ParseSeverity(c.Logging.Level)
	check(err == nil, "logging.level: %v", err)
	for _, sink := range c.Logging.Sinks {
		switch sink {
		case logging.SinkConsole, logging.SinkMemory:
		case logging.SinkJSON:
			check(c.Logging.JSONPath != "", "logging.json_path is required for the json sink")
		default:
			problems = append(problems, fmt.Sprintf("logging.sinks: unknown sink %q", sink))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Options converts the pathfind section. Call after Validate.
func (c PathfindConfig) Options() pathfind.Options {
	heuristic, _ := pathfind.ParseHeuristic(c.Heuristic)
	return pathfind.Options{
		Heuristic:          heuristic,
		AllowCornerCutting: c.AllowCornerCutting,
		MaxExpansions:      c.MaxExpansions,
	}
}

// Router converts the logging section into router settings.
func (c LoggingConfig) Router() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.Sinks) > 0 {
		cfg.EnabledSinks = append([]string(nil), c.Sinks...)
	}
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	if severity, err := logging.ParseSeverity(c.Level); err == nil {
		cfg.MinimumSeverity = severity
	}
	cfg.Console = logging.ConsoleConfig{UseColor: c.UseColor, Format: c.Format}
	cfg.JSON = logging.JSONConfig{FilePath: c.JSONPath, FlushInterval: 2 * time.Second}
	return cfg
}

// Mapper builds the coordinate mapper for the configured tile size.
func (c WorldConfig) Mapper() world.Mapper {
	return world.NewMapper(c.TileSize)
}

// Grid builds the starting terrain: the layout file if set, then the inline
// layout, then an all-ground grid of the configured size centered on (0,0).
func (c WorldConfig) Grid() (*world.Grid, error) {
	switch {
	case c.LayoutFile != "":
		data, err := os.ReadFile(c.LayoutFile)
		if err != nil {
			return nil, fmt.Errorf("read layout: %w", err)
		}
		grid, err := world.ParseLayout(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse layout %s: %w", c.LayoutFile, err)
		}
		return grid, nil
	case strings.TrimSpace(c.Layout) != "":
		grid, err := world.ParseLayout(c.Layout)
		if err != nil {
			return nil, fmt.Errorf("parse inline layout: %w", err)
		}
		return grid, nil
	default:
		return world.NewGrid(world.CenteredBounds(c.Width, c.Height)), nil
	}
}
