// Command printqueue runs the remote print job queue that print agents poll.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"PosPrint/app/config"
	"PosPrint/app/database"
	"PosPrint/app/security"
	"PosPrint/app/services"
	"PosPrint/app/websocket"
)

// QueueServiceType is the mDNS service agents browse for
const QueueServiceType = "_printqueue._tcp"

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

func main() {
	hashKey := flag.String("hash-agent-key", "", "print the bcrypt hash of an agent key for queue.agent_key_hash and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := security.HashAgentKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := services.NewLoggerService(cfg.Log, "printqueue")
	defer logger.Close()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.LogFatal("Failed to open job store", err)
	}
	defer database.Close(db)

	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.Queue.RabbitMQURL != "" {
		amqpPublisher, err := services.DialAMQPPublisher(cfg.Queue.RabbitMQURL)
		if err != nil {
			logger.LogError("RabbitMQ unavailable, job events disabled", err)
		} else {
			publisher = amqpPublisher
			logger.LogInfo("Publishing job events", services.JobExchange)
		}
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	defer hub.Shutdown()

	if cfg.Queue.MDNS {
		port, err := listenPort(cfg.Queue.Listen)
		if err == nil {
			err = hub.Announce(cfg.Queue.InstanceName, QueueServiceType, port, []string{"path=/"})
		}
		if err != nil {
			logger.LogWarning("mDNS announcement skipped", err.Error())
		}
	}

	queue := services.NewPrintQueueService(db, cfg.Queue, publisher, hub, logger)
	go queue.Run(ctx)

	api := services.NewQueueAPIServer(cfg.Queue.Listen, queue, cfg.Queue.AgentKeyHash, hub, logger)
	errCh := make(chan error, 1)
	go func() {
		defer logger.RecoverPanic()
		errCh <- api.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.LogError("Print queue API failed", err)
		}
	case <-ctx.Done():
		if err := api.Stop(); err != nil {
			logger.LogError("Print queue API shutdown failed", err)
		}
	}
	logger.LogInfo("Print queue stopped")
}
