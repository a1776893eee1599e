package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PosPrint/app/models"
)

// AgentKeyHeader carries the shared agent key on queue requests
const AgentKeyHeader = "X-Agent-Key"

// DefaultAgentProbeURL is where a local print agent answers health checks
const DefaultAgentProbeURL = "http://localhost:8765/health"

// SubmitRequest is the body of POST /submit
type SubmitRequest struct {
	JobType     models.JobType  `json:"job_type"`
	PrinterRole string          `json:"printer_role,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// CompleteRequest is the body of POST /complete
type CompleteRequest struct {
	JobID        string `json:"job_id"`
	AgentID      string `json:"agent_id,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// QueueResponse is the envelope every queue endpoint answers with
type QueueResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
	JobID   string                `json:"job_id,omitempty"`
	Jobs    []models.PrintJob     `json:"jobs,omitempty"`
	Job     *models.JobStatusView `json:"job,omitempty"`
}

// AgentHealth is what a local agent reports on /health
type AgentHealth struct {
	AgentID  string   `json:"agent_id"`
	Printers []string `json:"printers"`
}

// QueueClient talks to the remote print queue over HTTP
type QueueClient struct {
	baseURL  string
	agentKey string
	probeURL string
	client   *http.Client
	probe    *http.Client
}

// NewQueueClient creates a client for the queue at baseURL
func NewQueueClient(baseURL, agentKey, probeURL string) *QueueClient {
	if probeURL == "" {
		probeURL = DefaultAgentProbeURL
	}
	return &QueueClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		agentKey: agentKey,
		probeURL: probeURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		probe:    &http.Client{Timeout: 2 * time.Second},
	}
}

// BaseURL returns the queue address
func (c *QueueClient) BaseURL() string {
	return c.baseURL
}

func (c *QueueClient) do(ctx context.Context, method, path string, body interface{}) (*QueueResponse, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.agentKey != "" {
		req.Header.Set(AgentKeyHeader, c.agentKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queue request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var out QueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid queue response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = resp.Status
		}
		return &out, fmt.Errorf("queue rejected %s: %s", path, out.Error)
	}
	return &out, nil
}

// Submit creates a job and returns its id
func (c *QueueClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/submit", req)
	if err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Pending picks up to limit jobs for agentID; they come back as processing
func (c *QueueClient) Pending(ctx context.Context, agentID string, limit int) ([]models.PrintJob, error) {
	q := url.Values{}
	q.Set("agent_id", agentID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.do(ctx, http.MethodGet, "/pending?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Complete reports the outcome of a job agentID picked up
func (c *QueueClient) Complete(ctx context.Context, jobID, agentID string, success bool, errMsg string) error {
	_, err := c.do(ctx, http.MethodPost, "/complete", CompleteRequest{
		JobID:        jobID,
		AgentID:      agentID,
		Success:      success,
		ErrorMessage: errMsg,
	})
	return err
}

// Status looks up a job without changing it
func (c *QueueClient) Status(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status?job_id="+url.QueryEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	if resp.Job == nil {
		return nil, fmt.Errorf("queue returned no job for %s", jobID)
	}
	return resp.Job, nil
}

// AgentAvailable reports whether a local print agent answers its health probe.
// Any error or a non-200 answer within two seconds counts as absent.
func (c *QueueClient) AgentAvailable(ctx context.Context) bool {
	_, ok := c.AgentHealth(ctx)
	return ok
}

// AgentHealth probes the local agent and returns what it reported
func (c *QueueClient) AgentHealth(ctx context.Context) (*AgentHealth, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return nil, false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	var health AgentHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, false
	}
	return &health, true
}
