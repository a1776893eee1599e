package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"PosPrint/app/config"
	"PosPrint/app/database"
	"PosPrint/app/models"
	"PosPrint/app/services"
)

type memConn struct {
	bytes.Buffer
}

func (m *memConn) Close() error { return nil }

type memConnector struct {
	mu    sync.Mutex
	conns []*memConn
}

func (m *memConnector) Resolve(ctx context.Context, desc models.PrinterDescriptor) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &memConn{}
	m.conns = append(m.conns, c)
	return c, nil
}

type offline struct{}

func (offline) Online(context.Context) bool { return false }

func newTestStation(t *testing.T) (*httptest.Server, *memConnector, *services.OfflineCacheService) {
	t.Helper()
	logger := services.NewNopLogger()

	local, err := database.OpenLocalDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open local db: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	mainDB, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "main.db")})
	if err != nil {
		t.Fatalf("open main db: %v", err)
	}
	// a closed backend behaves like an unreachable one
	_ = database.Close(mainDB)

	station := config.StationConfig{
		Currency: "$",
		Printers: []models.PrinterDescriptor{{
			Name:        "Kitchen",
			Role:        models.RoleKitchen,
			Transport:   models.TransportUSB,
			Address:     "/dev/usb/lp0",
			PaperFormat: models.Paper58mm,
		}},
	}
	connector := &memConnector{}
	sequence := services.NewSequenceService(local, logger)
	dispatcher := services.NewDispatcher(logger, services.NewThermalStrategy(connector))
	printer := services.NewPrinterService(station, dispatcher, connector, sequence, logger)

	cache, err := services.NewOfflineCacheService(local, services.NewBackendService(mainDB), offline{}, nil, logger)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	h := NewRESTHandlers(printer, cache, sequence, nil, nil, logger)
	srv := httptest.NewServer(h.Routes(nil))
	t.Cleanup(srv.Close)
	return srv, connector, cache
}

func call(t *testing.T, method, url string, body interface{}) (int, services.APIResponse) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, url, r)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out services.APIResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func burger() models.TicketPayload {
	return models.TicketPayload{
		TableNumber: "T1",
		Items:       []models.LineItem{{Name: "Burger", Quantity: 2, UnitPrice: 150}},
	}
}

func TestPrintKOTEndpoint(t *testing.T) {
	srv, connector, _ := newTestStation(t)

	status, resp := call(t, http.MethodPost, srv.URL+"/api/print/kot", burger())
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("print kot = %d %+v", status, resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["method"] != services.MethodThermal {
		t.Errorf("method = %v", data["method"])
	}
	if data["ticket_number"] != "01" {
		t.Errorf("ticket_number = %v, want 01", data["ticket_number"])
	}
	if len(connector.conns) != 1 || !strings.Contains(connector.conns[0].String(), "Burger") {
		t.Fatalf("ticket bytes not written to the kitchen printer")
	}

	_, resp = call(t, http.MethodGet, srv.URL+"/api/sequence", nil)
	if got := resp.Data.(map[string]interface{})["counter"]; got != float64(1) {
		t.Errorf("counter = %v, want 1", got)
	}
}

func TestPrintKOTRejectsEmptyTicket(t *testing.T) {
	srv, connector, _ := newTestStation(t)

	_, resp := call(t, http.MethodPost, srv.URL+"/api/print/kot", models.TicketPayload{TableNumber: "T1"})
	if resp.Success {
		t.Fatalf("empty ticket printed")
	}
	if resp.Data.(map[string]interface{})["method"] != services.MethodNone {
		t.Errorf("method = %v, want none", resp.Data)
	}
	if len(connector.conns) != 0 {
		t.Errorf("printer touched for an empty ticket")
	}
}

func TestRESTHandlerErrors(t *testing.T) {
	srv, _, _ := newTestStation(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"wrong method", http.MethodGet, "/api/print/kot", nil, http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "/api/print/bill", "{", http.StatusBadRequest},
		{"bill without id", http.MethodPost, "/api/bills", models.BillPayload{Total: 10}, http.StatusBadRequest},
		{"test unconfigured role", http.MethodPost, "/api/print/test", TestPrintRequest{Role: models.RoleBar}, http.StatusBadGateway},
		{"unknown reference", http.MethodPut, "/api/reference/orders", "[]", http.StatusBadRequest},
		{"reference not cached", http.MethodGet, "/api/reference/sections", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, tt.method, srv.URL+tt.path, tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestCreateBillQueuesWhileOffline(t *testing.T) {
	srv, _, cache := newTestStation(t)

	bill := models.BillPayload{
		ID:    "bill-a",
		Items: []models.LineItem{{Name: "Burger", Quantity: 1, UnitPrice: 150}},
		Total: 150,
	}
	for i := 0; i < 2; i++ {
		status, resp := call(t, http.MethodPost, srv.URL+"/api/bills", bill)
		if status != http.StatusOK || !resp.Success {
			t.Fatalf("create bill = %d %+v", status, resp)
		}
		if resp.Data.(map[string]interface{})["queued"] != true {
			t.Fatalf("bill not queued while offline")
		}
	}

	_, resp := call(t, http.MethodGet, srv.URL+"/api/sync/status", nil)
	if got := resp.Data.(map[string]interface{})["pending_bills"]; got != float64(1) {
		t.Fatalf("pending_bills = %v, want 1", got)
	}

	status, _ := call(t, http.MethodPost, srv.URL+"/api/sync/drain", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("drain while offline = %d", status)
	}

	status, _ = call(t, http.MethodDelete, srv.URL+"/api/sync/pending", nil)
	if status != http.StatusOK {
		t.Fatalf("clear = %d", status)
	}
	if bills, _, _ := cache.PendingCount(); bills != 0 {
		t.Errorf("pending after clear = %d", bills)
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	srv, _, _ := newTestStation(t)

	status, _ := call(t, http.MethodPut, srv.URL+"/api/reference/products", `[{"id":1,"name":"Burger"}]`)
	if status != http.StatusOK {
		t.Fatalf("save = %d", status)
	}
	status, resp := call(t, http.MethodGet, srv.URL+"/api/reference/products", nil)
	if status != http.StatusOK {
		t.Fatalf("load = %d", status)
	}
	products := resp.Data.(map[string]interface{})["data"].([]interface{})
	if len(products) != 1 || products[0].(map[string]interface{})["name"] != "Burger" {
		t.Errorf("products = %v", products)
	}
}
