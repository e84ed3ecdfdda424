package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/subforge/subex/internal/config"
	"github.com/subforge/subex/internal/jobs"
	"github.com/subforge/subex/internal/persistence"
	"github.com/subforge/subex/internal/service"
	"github.com/subforge/subex/pkg/log"
)

func main() {
	log.InitLogger(log.LevelInfo)

	cfg, err := config.New()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	store, err := persistence.NewSQLiteStore(cfg.Jobs.DBPath)
	if err != nil {
		log.Fatal("Failed to open store at %s: %v", cfg.Jobs.DBPath, err)
	}
	defer store.Close()

	queue := jobs.NewQueue(cfg.Jobs.Workers, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cronEngine := cron.New()
	svc := service.NewExtractService(*cfg, cronEngine, store, queue)
	if err := svc.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule extraction service: %v", err)
	}
	cronEngine.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	cancel()
	<-cronEngine.Stop().Done()
	svc.Stop()
}
