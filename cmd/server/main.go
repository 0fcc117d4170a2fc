package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cosmic-nav/server/internal/app"
	"cosmic-nav/server/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{Nav: cfg}); err != nil {
		log.Fatalf("%v", err)
	}
}
