package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"PosPrint/app/models"
)

// AgentQueue is the part of the queue API an agent consumes. QueueClient
// implements it.
type AgentQueue interface {
	Pending(ctx context.Context, agentID string, limit int) ([]models.PrintJob, error)
	Complete(ctx context.Context, jobID, agentID string, success bool, errMsg string) error
}

// RasterRenderer turns an HTML document into a ready ESC/POS raster job.
// ChromePrinter implements it.
type RasterRenderer interface {
	RenderRaster(ctx context.Context, html string, paper models.PaperFormat) ([]byte, error)
}

// PrintAgent polls the queue and delivers jobs to local network printers
type PrintAgent struct {
	id           string
	queue        AgentQueue
	connector    Connector
	renderer     RasterRenderer
	printers     []models.PrinterDescriptor
	pollInterval time.Duration
	logger       *LoggerService
	wake         chan struct{}
}

// NewPrintAgent creates an agent. renderer may be nil, HTML jobs then fail.
func NewPrintAgent(id string, queue AgentQueue, connector Connector, renderer RasterRenderer, printers []models.PrinterDescriptor, pollInterval time.Duration, logger *LoggerService) *PrintAgent {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &PrintAgent{
		id:           id,
		queue:        queue,
		connector:    connector,
		renderer:     renderer,
		printers:     printers,
		pollInterval: pollInterval,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}
}

// ID returns the agent id reported to the queue
func (a *PrintAgent) ID() string {
	return a.id
}

// Wake makes Run poll immediately
func (a *PrintAgent) Wake() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// target picks the device for a job: the explicit address first, then a
// configured printer by name, then by role
func (a *PrintAgent) target(job models.PrintJob, p models.RawPayload) (models.PrinterDescriptor, error) {
	paper, err := models.ParsePaperFormat(p.Paper)
	if err != nil {
		return models.PrinterDescriptor{}, err
	}

	if p.Address != "" {
		desc := models.PrinterDescriptor{
			Name:        p.Printer,
			Role:        models.PrinterRole(job.PrinterRole),
			Transport:   models.TransportNetwork,
			PaperFormat: paper,
			Address:     p.Address,
		}
		if host, port, err := net.SplitHostPort(p.Address); err == nil {
			desc.Address = host
			desc.Port, _ = strconv.Atoi(port)
		}
		return desc, nil
	}

	for _, d := range a.printers {
		if p.Printer != "" && d.Name == p.Printer {
			return d, nil
		}
	}
	for _, d := range a.printers {
		if job.PrinterRole != "" && string(d.Role) == job.PrinterRole {
			return d, nil
		}
	}
	return models.PrinterDescriptor{}, fmt.Errorf("%w: no printer for job %s", ErrNoConnection, job.ID)
}

// HandleJob prints one job
func (a *PrintAgent) HandleJob(ctx context.Context, job models.PrintJob) error {
	var p models.RawPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	desc, err := a.target(job, p)
	if err != nil {
		return err
	}

	data := p.Data
	if p.HTML != "" {
		if a.renderer == nil {
			return errors.New("html jobs are not supported by this agent")
		}
		if data, err = a.renderer.RenderRaster(ctx, p.HTML, desc.PaperFormat); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		return errors.New("job has nothing to print")
	}
	return writeJob(ctx, a.connector, desc, data)
}

// PollOnce picks up pending jobs, prints them and reports each outcome.
// It returns how many jobs were handled.
func (a *PrintAgent) PollOnce(ctx context.Context) (int, error) {
	jobs, err := a.queue.Pending(ctx, a.id, DefaultPickupLimit)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		printErr := a.HandleJob(ctx, job)
		msg := ""
		if printErr != nil {
			msg = printErr.Error()
			a.logger.LogWarning("Print job failed", job.ID, msg)
		} else {
			a.logger.LogDebug("print job done", "id", job.ID, "type", job.JobType)
		}
		if err := a.queue.Complete(ctx, job.ID, a.id, printErr == nil, msg); err != nil {
			// the reaper returns the job to the queue
			a.logger.LogError("Failed to report job result", err, job.ID)
		}
	}
	return len(jobs), nil
}

// Run polls on the interval, and whenever Wake is called, until ctx is done
func (a *PrintAgent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := a.PollOnce(ctx)
			if err != nil {
				a.logger.LogDebug("queue poll failed", "error", err)
			}
			// keep going while full batches come back
			if err != nil || n < DefaultPickupLimit {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.wake:
		}
	}
}

// HealthHandler serves the probe the station uses to see a local agent
func (a *PrintAgent) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(a.printers))
		for _, p := range a.printers {
			names = append(names, p.Name)
		}
		WriteJSON(w, http.StatusOK, AgentHealth{AgentID: a.id, Printers: names})
	})
}
