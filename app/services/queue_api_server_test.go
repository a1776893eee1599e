package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PosPrint/app/config"
	"PosPrint/app/models"
	"PosPrint/app/security"
)

func newTestQueueServer(t *testing.T, agentKeyHash string) (*httptest.Server, *PrintQueueService) {
	t.Helper()
	q := NewPrintQueueService(openTestMainDB(t), config.QueueConfig{}, nil, nil, NewNopLogger())
	api := NewQueueAPIServer("", q, agentKeyHash, nil, NewNopLogger())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, q
}

func TestQueueAPIEndToEnd(t *testing.T) {
	srv, _ := newTestQueueServer(t, "")
	client := NewQueueClient(srv.URL, "", "")
	ctx := context.Background()

	jobID, err := client.Submit(ctx, kotRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID == "" {
		t.Fatalf("submit returned no job_id")
	}

	jobs, err := client.Pending(ctx, "agent-1", 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != jobID || jobs[0].Status != models.JobStatusProcessing {
		t.Fatalf("pending returned %+v", jobs)
	}
	var payload struct {
		Items []struct {
			Name     string `json:"name"`
			Quantity int    `json:"quantity"`
		} `json:"items"`
		Table string `json:"table"`
	}
	if err := json.Unmarshal(jobs[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Table != "T1" || len(payload.Items) != 1 || payload.Items[0].Name != "Burger" || payload.Items[0].Quantity != 2 {
		t.Fatalf("payload = %+v", payload)
	}

	if err := client.Complete(ctx, jobID, "agent-1", true, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	view, err := client.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", view.Status)
	}
}

func TestQueueAPIStatusCodes(t *testing.T) {
	srv, q := newTestQueueServer(t, "")
	ctx := context.Background()

	post := func(path, body string) int {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	get := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	job, _ := q.Submit(ctx, kotRequest())

	tests := []struct {
		name string
		code int
		want int
	}{
		{"submit bad type", post("/submit", `{"job_type":"x","payload":{}}`), http.StatusBadRequest},
		{"submit bad body", post("/submit", `not json`), http.StatusBadRequest},
		{"pending without agent", get("/pending"), http.StatusBadRequest},
		{"pending bad limit", get("/pending?agent_id=a&limit=-1"), http.StatusBadRequest},
		{"complete unknown", post("/complete", `{"job_id":"nope","success":true}`), http.StatusNotFound},
		{"complete pending job", post("/complete", `{"job_id":"`+job.ID+`","success":true}`), http.StatusConflict},
		{"status unknown", get("/status?job_id=nope"), http.StatusNotFound},
		{"status by path", get("/jobs/" + job.ID), http.StatusOK},
		{"list", get("/jobs?status=pending"), http.StatusOK},
		{"health", get("/health"), http.StatusOK},
	}
	for _, tt := range tests {
		if tt.code != tt.want {
			t.Errorf("%s: HTTP %d, want %d", tt.name, tt.code, tt.want)
		}
	}
}

func TestQueueAPIAgentKey(t *testing.T) {
	hash, err := security.HashAgentKey("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	srv, _ := newTestQueueServer(t, hash)
	ctx := context.Background()

	if _, err := NewQueueClient(srv.URL, "wrong", "").Submit(ctx, kotRequest()); err == nil {
		t.Fatalf("submit with a wrong key succeeded")
	}
	good := NewQueueClient(srv.URL, "s3cret", "")
	if _, err := good.Submit(ctx, kotRequest()); err != nil {
		t.Fatalf("submit with the right key: %v", err)
	}
	if _, err := good.Pending(ctx, "agent-1", 5); err != nil {
		t.Fatalf("pending with the right key: %v", err)
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health requires no key, got HTTP %d", resp.StatusCode)
	}
}

func TestAgentProbe(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, AgentHealth{AgentID: "bar-agent", Printers: []string{"kitchen"}})
	}))
	defer agent.Close()

	client := NewQueueClient("http://unused", "", agent.URL+"/health")
	health, ok := client.AgentHealth(context.Background())
	if !ok || health.AgentID != "bar-agent" {
		t.Fatalf("probe = %+v %v", health, ok)
	}

	agent.Close()
	if client.AgentAvailable(context.Background()) {
		t.Fatalf("closed agent reported available")
	}
}
