package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/storage"
	"github.com/parleyhq/parley/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default: from config)")
	dbPath := flag.String("db", "", "Database path (default: ~/.parley/parley.db)")
	configPath := flag.String("config", "", "Config path (default: ~/.parley/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	path := *dbPath
	if path == "" {
		path = storage.DefaultDBPath()
	}

	slog.Info("Initializing storage", "path", path)
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	registry, err := cfg.CreateRegistry()
	if err != nil {
		slog.Error("Failed to initialize backend registry", "error", err)
		os.Exit(1)
	}

	manager := engine.NewManager(registry, store, logger)
	h := handlers.New(manager, registry, store, logger)

	listenPort := cfg.Server.Port
	if *port != 0 {
		listenPort = *port
	}
	addr := fmt.Sprintf(":%d", listenPort)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down...")
		server.Close()
	}()

	slog.Info("Starting parley server", "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
