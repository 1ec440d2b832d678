package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awsl-project/maxdesk/internal/config"
	"github.com/awsl-project/maxdesk/internal/desktop"
	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/awsl-project/maxdesk/internal/recovery"
	"github.com/awsl-project/maxdesk/internal/version"
)

// shutdownTimeout bounds restoring windows on exit
const shutdownTimeout = 15 * time.Second

func main() {
	// Parse flags
	dataDir := flag.String("data", "", "Data directory for recovery state and logs (default: per-user cache dir)")
	store := flag.String("store", "", "Recovery store backend: file or sqlite (default: file)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		fmt.Println(version.Full())
		os.Exit(0)
	}

	// CLI flag > env var > default
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Override(*dataDir, *store)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := interop.Supported(); err != nil {
		log.Fatalf("Cannot run here: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", cfg.DataDir, err)
	}

	logPath := filepath.Join(cfg.DataDir, version.Name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Warning: Failed to open log file %s: %v", logPath, err)
	} else {
		defer logFile.Close()
		// file first: a GUI build has no usable stderr
		log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	}

	release, err := desktop.AcquireInstance()
	if errors.Is(err, desktop.ErrAlreadyRunning) {
		log.Printf("%s is already running, exiting", version.Name)
		return
	}
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	defer release()

	recoveryStore, err := recovery.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open recovery store: %v", err)
	}

	log.Printf("Starting %s", version.Info())
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("  Recovery store: %s", cfg.Store)
	log.Printf("  Log file: %s", logPath)

	app := desktop.NewApp(cfg, recoveryStore, desktop.NativeDeps())
	tray := desktop.NewTrayManager(app, cfg.DataDir)
	app.SetView(tray)
	app.Start()

	inputCtx, inputCancel := context.WithCancel(context.Background())
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		if err := desktop.RunInput(inputCtx, app, cfg.ProbeTimeout); err != nil {
			log.Printf("Input hooks failed: %v", err)
			tray.Quit()
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		tray.Quit()
	}()

	// Blocks until Exit is clicked or a signal arrives
	tray.Run()

	// Step 1: stop input so nothing new is queued
	inputCancel()
	<-inputDone

	// Step 2: restore every relocated window and release the desktop service
	if err := app.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Warning: shutdown: %v", err)
	}

	log.Printf("Stopped")
}
