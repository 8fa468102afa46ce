package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hopperfilterx/internal/audit"
	"hopperfilterx/internal/config"
	"hopperfilterx/internal/hopper"
	"hopperfilterx/internal/hopperdb"
	"hopperfilterx/internal/perm"
	"hopperfilterx/internal/version"
)

// buildVersion is overridden at link time.
var buildVersion = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "path to hopperd.yaml (empty for defaults)")
		noUpdate   = flag.Bool("no_update_check", false, "skip the startup update check")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hopperd] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	db, err := hopperdb.Open(cfg.DBFile, logger)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	auditor := audit.NewWriter(cfg.AuditDir)
	defer auditor.Close()

	reg := hopper.NewRegistry()
	perms := perm.New(db)
	coord := hopper.NewCoordinator(hopper.CoordinatorConfig{
		ItemKind:     cfg.ItemKind,
		CompactEvery: cfg.CompactEvery,
		QueueSize:    cfg.QueueSize,
		Logger:       logger,
	}, db, perms, reg, auditor)

	placed, stored, err := coord.LoadPlaced()
	if err != nil {
		logger.Fatalf("load hoppers: %v", err)
	}
	logger.Printf("loaded %d placed hoppers (%d stored)", placed, stored)

	if cfg.UpdateCheck.Enabled && !*noUpdate {
		go checkForUpdates(cfg.UpdateCheck, logger)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRateHz))
	defer ticker.Stop()

	logger.Printf("hopperd %s running at %d Hz", buildVersion, cfg.TickRateHz)
loop:
	for {
		select {
		case <-ticker.C:
			coord.Tick()
		case sig := <-stop:
			logger.Printf("received %s, shutting down", sig)
			break loop
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FlushTimeout())
	defer cancel()
	if err := coord.Close(ctx); err != nil {
		logger.Printf("WARN drain queued writes: %v", err)
	}
	if err := db.FlushAndSync(); err != nil {
		logger.Printf("WARN flush db: %v", err)
	}
	logger.Printf("shutdown complete")
}

func checkForUpdates(cfg config.UpdateCheckConfig, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	checker := version.NewChecker(cfg.URL, cfg.GameVersion, cfg.Loader, cfg.Timeout())
	outdated, latest, err := checker.Outdated(ctx, buildVersion)
	if err != nil {
		logger.Printf("WARN update check failed: %v", err)
		return
	}
	if outdated {
		logger.Printf("update available: %s (running %s)", latest.VersionNumber, buildVersion)
	}
}
