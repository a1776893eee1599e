// Command printagent polls the print queue and prints jobs on the local
// network printers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"PosPrint/app/config"
	"PosPrint/app/services"
	"PosPrint/app/websocket"
)

const queueServiceType = "_printqueue._tcp"

// discoverQueue browses mDNS for a print queue and returns its base URL
func discoverQueue(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mDNS: failed to create resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, queueServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("mDNS: browse failed: %w", err)
	}

	for {
		select {
		case entry := <-entries:
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}
			return fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port), nil
		case <-ctx.Done():
			return "", errors.New("mDNS: no print queue found")
		}
	}
}

// wsURL turns the queue base URL into its websocket endpoint for agents
func wsURL(base string) string {
	u := strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?type=agent"
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := services.NewLoggerService(cfg.Log, "printagent")
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agentID := cfg.Agent.ID
	if agentID == "" {
		agentID = uuid.NewString()
	}

	queueURL := cfg.Agent.QueueURL
	for queueURL == "" {
		queueURL, err = discoverQueue(ctx, 5*time.Second)
		if err != nil {
			logger.LogWarning("Print queue not found, retrying", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
	logger.LogInfo("Using print queue", queueURL)

	client := services.NewQueueClient(queueURL, cfg.Agent.Key, "")
	chrome := services.NewChromePrinter(os.Getenv("CHROME_PATH"), filepath.Join(cfg.DataDir, "spool"), logger)
	agent := services.NewPrintAgent(agentID, client, services.NewDeviceConnector(), chrome, cfg.Agent.Printers, cfg.Agent.PollInterval, logger)

	mux := http.NewServeMux()
	mux.Handle("/health", agent.HealthHandler())
	health := &http.Server{Addr: cfg.Agent.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		defer logger.RecoverPanic()
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("Agent health endpoint failed", err)
		}
	}()

	header := http.Header{}
	if cfg.Agent.Key != "" {
		header.Set(services.AgentKeyHeader, cfg.Agent.Key)
	}
	go websocket.Listen(ctx, wsURL(queueURL), header, 5*time.Second, logger, func(msg websocket.Message) {
		if msg.Type == websocket.TypeJobAvailable {
			agent.Wake()
		}
	})

	logger.LogInfo("Print agent started", agentID)
	agent.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)
	logger.LogInfo("Print agent stopped")
}
