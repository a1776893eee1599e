package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"PosPrint/app/config"
	"PosPrint/app/models"
	"PosPrint/app/services"
)

func TestStationPersistsBillThroughBackend(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(cfg.DataDir, "main.db")}
	cfg.Station.BrowserFallback = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	station, err := NewStation(cfg, services.NewNopLogger())
	if err != nil {
		t.Fatalf("new station: %v", err)
	}
	defer station.Shutdown()

	srv := httptest.NewServer(station.server.Handler)
	defer srv.Close()

	body, _ := json.Marshal(models.BillPayload{
		ID:    "bill-1",
		Items: []models.LineItem{{Name: "Burger", Quantity: 1, UnitPrice: 150}},
		Total: 150,
	})
	resp, err := http.Post(srv.URL+"/api/bills", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out services.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, _ := out.Data.(map[string]interface{})
	if !out.Success || data["queued"] != false || data["bill_number"] != "B000001" {
		t.Fatalf("response = %+v", out)
	}
	if station.Backend.DB() == nil {
		t.Errorf("backend not connected after a successful write")
	}
}
