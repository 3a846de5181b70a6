package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanwahyu/threat-analyzer/internal/app"
	"github.com/bryanwahyu/threat-analyzer/internal/config"
	"github.com/bryanwahyu/threat-analyzer/internal/logging"
)

var version = "dev"

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Color)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer a.Close()

	// run server and liveness probe until a signal arrives
	if err := a.Serve(ctx, version); err != nil {
		log.Printf("server error: %v", err)
	}
}
