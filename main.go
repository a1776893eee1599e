package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gorm.io/gorm"

	"PosPrint/app/config"
	"PosPrint/app/database"
	"PosPrint/app/services"
	"PosPrint/app/websocket"
)

// Station is the POS terminal process: it prints tickets and bills, keeps
// the offline queue and serves the local API the UI talks to.
type Station struct {
	cfg *config.AppConfig

	LoggerService   *services.LoggerService
	LocalDB         *database.LocalDB
	Backend         *services.LazyBackend
	SequenceService *services.SequenceService
	PrinterService  *services.PrinterService
	OfflineCache    *services.OfflineCacheService
	SyncWorker      *services.SyncWorker
	QueueClient     *services.QueueClient
	Hub             *websocket.Hub

	server *http.Server
}

// NewStation wires every service from the configuration
func NewStation(cfg *config.AppConfig, logger *services.LoggerService) (*Station, error) {
	s := &Station{cfg: cfg, LoggerService: logger}

	local, err := database.OpenLocalDB(cfg.LocalDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	s.LocalDB = local
	logger.LogInfo("Local database opened", local.Path())

	s.Backend = services.NewLazyBackend(func() (*gorm.DB, error) {
		return database.Open(cfg.Database)
	})
	s.SequenceService = services.NewSequenceService(local, logger)
	s.Hub = websocket.NewHub(logger)

	connector := services.NewDeviceConnector()
	strategies := []services.PrintStrategy{services.NewThermalStrategy(connector)}
	if cfg.Station.QueueURL != "" {
		s.QueueClient = services.NewQueueClient(cfg.Station.QueueURL, cfg.Station.AgentKey, cfg.Station.AgentProbeURL)
		strategies = append(strategies, services.NewAgentStrategy(s.QueueClient))
	}
	if cfg.Station.BrowserFallback {
		spool := cfg.Station.SpoolDir
		if spool == "" {
			spool = filepath.Join(cfg.DataDir, "spool")
		}
		chrome := services.NewChromePrinter(os.Getenv("CHROME_PATH"), spool, logger)
		strategies = append(strategies, services.NewBrowserStrategy(chrome))
	}
	dispatcher := services.NewDispatcher(logger, strategies...)
	s.PrinterService = services.NewPrinterService(cfg.Station, dispatcher, connector, s.SequenceService, logger)

	connectivity := services.PingConnectivity{Backend: s.Backend}
	s.OfflineCache, err = services.NewOfflineCacheService(local, s.Backend, connectivity, s.Hub, logger)
	if err != nil {
		local.Close()
		return nil, err
	}
	s.SyncWorker = services.NewSyncWorker(s.OfflineCache, connectivity, cfg.Station.ConnectivityInterval, logger)

	var agent websocket.AgentProber
	if s.QueueClient != nil {
		agent = s.QueueClient
	}
	handlers := websocket.NewRESTHandlers(s.PrinterService, s.OfflineCache, s.SequenceService, agent, s.Hub, logger)
	s.server = &http.Server{
		Addr:              cfg.Station.Listen,
		Handler:           handlers.Routes(s.Hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is done
func (s *Station) Run(ctx context.Context) error {
	go s.Hub.Run(ctx)
	go s.SyncWorker.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		defer s.LoggerService.RecoverPanic()
		s.LoggerService.LogInfo("Station API listening", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("station API failed: %w", err)
	case <-ctx.Done():
	}
	return nil
}

// Shutdown stops the API and background workers and closes the databases
func (s *Station) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.LoggerService.LogError("Station API shutdown failed", err)
	}
	s.SyncWorker.Stop()
	s.SyncWorker.Wait()
	if db := s.Backend.DB(); db != nil {
		_ = database.Close(db)
	}
	if err := s.LocalDB.Close(); err != nil {
		s.LoggerService.LogError("Failed to close local database", err)
	}
	s.LoggerService.LogInfo("Station stopped")
}

func main() {
	configPath := flag.String("config", "", "config file (default $POSPRINT_CONFIG or config.json)")
	seal := flag.Bool("seal-config", false, "encrypt the secrets in the config file and exit")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if *seal {
		path := *configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := config.SaveConfig(cfg, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error sealing configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Secrets sealed in", path)
		return
	}

	logger := services.NewLoggerService(cfg.Log, "station")
	defer logger.Close()

	station, err := NewStation(cfg, logger)
	if err != nil {
		logger.LogFatal("Failed to start station", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := station.Run(ctx); err != nil {
		logger.LogError("Station stopped with error", err)
	}
	station.Shutdown()
}
