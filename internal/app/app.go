package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	server "cosmic-nav/server"
	"cosmic-nav/server/internal/config"
	servernet "cosmic-nav/server/internal/net"
	"cosmic-nav/server/internal/observability"
	"cosmic-nav/server/internal/replan"
	"cosmic-nav/server/internal/sim"
	"cosmic-nav/server/internal/telemetry"
	"cosmic-nav/server/logging"
	loggingSinks "cosmic-nav/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Nav           config.Config
	Logger        telemetry.Logger
	Observability observability.Config
	// Console receives the console sink output. Nil means stdout.
	Console io.Writer
	// Listener, when set, replaces listening on Nav.Server.Addr.
	Listener net.Listener
}

// Run serves the navigation hub until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Nav.Validate(); err != nil {
		return err
	}

	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogrus(telemetry.NewLogrus(cfg.Nav.Logging.Level, cfg.Nav.Logging.Format))
	}

	router, err := NewRouter(cfg.Nav.Logging, cfg.Console)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hubCfg, err := HubConfig(cfg.Nav)
	if err != nil {
		return err
	}
	hubCfg.Logger = telemetryLogger
	hubCfg.Publisher = router
	hubCfg.RouterStats = router.Stats

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	hub := server.NewHub(hubCfg)
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Observability: observabilityCfg,
		TickRate:      cfg.Nav.Sim.TickRate,
	})
	srv := &http.Server{Addr: cfg.Nav.Server.Addr, Handler: handler}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hub.RunSimulation(groupCtx)
		return nil
	})
	group.Go(func() error {
		var err error
		if cfg.Listener != nil {
			telemetryLogger.Printf("server listening on %s", cfg.Listener.Addr())
			err = srv.Serve(cfg.Listener)
		} else {
			telemetryLogger.Printf("server listening on %s", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// NewRouter builds the event router with the sinks named in cfg.
func NewRouter(cfg config.LoggingConfig, console io.Writer) (*logging.Router, error) {
	routerCfg := cfg.Router()
	var sinks []logging.NamedSink
	for _, name := range routerCfg.EnabledSinks {
		switch name {
		case logging.SinkConsole:
			if console == nil {
				console = os.Stdout
			}
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(console, routerCfg.Console)})
		case logging.SinkJSON:
			sink, err := loggingSinks.OpenJSONFile(routerCfg.JSON.FilePath, routerCfg.JSON.FlushInterval)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: sink})
		case logging.SinkMemory:
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewMemorySink()})
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return logging.NewRouter(logging.SystemClock{}, routerCfg, sinks)
}

// HubConfig translates the loaded configuration into hub settings.
func HubConfig(cfg config.Config) (server.HubConfig, error) {
	grid, err := cfg.World.Grid()
	if err != nil {
		return server.HubConfig{}, err
	}
	hubCfg := server.DefaultHubConfig()
	hubCfg.Loop = sim.LoopConfig{
		TickRate:        cfg.Sim.TickRate,
		CatchupMaxTicks: cfg.Sim.CatchupMaxTicks,
		CommandCapacity: cfg.Sim.CommandCapacity,
		PerUnitLimit:    cfg.Sim.PerUnitLimit,
		WarningStep:     cfg.Sim.WarningStep,
	}
	hubCfg.Engine = sim.EngineConfig{
		Grid:     grid,
		Mapper:   cfg.World.Mapper(),
		Pathfind: cfg.Pathfind.Options(),
		Replan: replan.Config{
			StuckSpeed:        cfg.Replan.StuckSpeed,
			StuckTimeoutTicks: cfg.Replan.StuckTimeoutTicks,
			CooldownTicks:     cfg.Replan.CooldownTicks,
			ArriveRadius:      cfg.Replan.ArriveRadius,
			DefaultSpeed:      cfg.Replan.DefaultSpeed,
		},
		DefaultClearance: cfg.Obstacles.DefaultClearance,
		Workers:          cfg.Sim.Workers,
		AuditEveryTicks:  cfg.Obstacles.AuditEveryTicks,
	}
	hubCfg.Metrics = &logging.Metrics{}
	hubCfg.Clock = logging.SystemClock{}
	return hubCfg, nil
}
