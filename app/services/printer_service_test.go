package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"PosPrint/app/config"
	"PosPrint/app/models"
)

type bufferConn struct {
	bytes.Buffer
	closed bool
}

func (b *bufferConn) Close() error {
	b.closed = true
	return nil
}

type fakeConnector struct {
	err   error
	conns []*bufferConn
}

func (f *fakeConnector) Resolve(ctx context.Context, desc models.PrinterDescriptor) (io.WriteCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &bufferConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

type panicConnector struct{}

func (panicConnector) Resolve(ctx context.Context, desc models.PrinterDescriptor) (io.WriteCloser, error) {
	panic("driver crashed")
}

type fakeBrowser struct {
	err     error
	printed []RenderTarget
}

func (f *fakeBrowser) PrintHTML(ctx context.Context, target RenderTarget, paper models.PaperFormat) error {
	if f.err != nil {
		return f.err
	}
	f.printed = append(f.printed, target)
	return nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	err  error
	reqs []SubmitRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return "job-1", nil
}

var (
	usbKitchen = models.PrinterDescriptor{
		Name: "kitchen-usb", Role: models.RoleKitchen, Transport: models.TransportUSB,
		PaperFormat: models.Paper58mm, Address: "/dev/usb/lp0",
	}
	lanCounter = models.PrinterDescriptor{
		Name: "counter-lan", Role: models.RoleCounter, Transport: models.TransportNetwork,
		PaperFormat: models.Paper80mm, Address: "192.168.1.50", CashDrawer: true,
	}
)

func burgerTicket() *models.TicketPayload {
	return &models.TicketPayload{
		TableNumber: "T1",
		Items:       []models.LineItem{{Name: "Burger", Quantity: 2}},
	}
}

func newTestPrinterService(station config.StationConfig, conn Connector, queue JobSubmitter, browser BrowserPrinter) *PrinterService {
	logger := NewNopLogger()
	strategies := []PrintStrategy{NewThermalStrategy(conn)}
	if queue != nil {
		strategies = append(strategies, NewAgentStrategy(queue))
	}
	if browser != nil {
		strategies = append(strategies, NewBrowserStrategy(browser))
	}
	seq := NewSequenceService(nil, logger)
	return NewPrinterService(station, NewDispatcher(logger, strategies...), conn, seq, logger)
}

func TestDispatchThermalSuccess(t *testing.T) {
	conn := &fakeConnector{}
	svc := newTestPrinterService(config.StationConfig{Printers: []models.PrinterDescriptor{usbKitchen}}, conn, nil, &fakeBrowser{})

	ticket := burgerTicket()
	res := svc.PrintKitchenTicket(context.Background(), ticket, "")
	if !res.Success || res.Method != MethodThermal {
		t.Fatalf("result = %+v, want thermal success", res)
	}
	if ticket.TicketNumber != "01" {
		t.Fatalf("ticket number = %q, want 01", ticket.TicketNumber)
	}
	if len(conn.conns) != 1 || !conn.conns[0].closed {
		t.Fatalf("expected one closed connection, got %d", len(conn.conns))
	}
	if !bytes.Contains(conn.conns[0].Bytes(), []byte("Burger")) {
		t.Fatalf("ticket bytes do not contain the item")
	}
}

func TestDispatchFailingDirectFallsBackToBrowser(t *testing.T) {
	conn := &fakeConnector{err: ErrNoConnection}
	browser := &fakeBrowser{}
	station := config.StationConfig{Printers: []models.PrinterDescriptor{usbKitchen}, BrowserFallback: true}
	svc := newTestPrinterService(station, conn, nil, browser)

	for i := 0; i < 3; i++ {
		res := svc.PrintKitchenTicket(context.Background(), burgerTicket(), models.RoleKitchen)
		if !res.Success || res.Method != MethodBrowser {
			t.Fatalf("attempt %d: result = %+v, want browser success", i, res)
		}
	}
	if len(browser.printed) != 3 {
		t.Fatalf("browser printed %d documents, want 3", len(browser.printed))
	}
	if !strings.Contains(browser.printed[0].HTML, "Burger") || !strings.Contains(browser.printed[0].HTML, "TABLE T1") {
		t.Fatalf("fallback html missing ticket content")
	}
}

func TestDispatchPanickingStrategyFallsThrough(t *testing.T) {
	browser := &fakeBrowser{}
	station := config.StationConfig{Printers: []models.PrinterDescriptor{usbKitchen}, BrowserFallback: true}
	svc := newTestPrinterService(station, panicConnector{}, nil, browser)

	res := svc.PrintKitchenTicket(context.Background(), burgerTicket(), models.RoleKitchen)
	if !res.Success || res.Method != MethodBrowser {
		t.Fatalf("result = %+v, want browser success", res)
	}
	if len(browser.printed) != 1 {
		t.Fatalf("browser printed %d documents, want 1", len(browser.printed))
	}
}

func TestDispatchNothingAvailable(t *testing.T) {
	conn := &fakeConnector{err: errors.New("device busy")}
	// fallback disabled, so no render target is built
	svc := newTestPrinterService(config.StationConfig{Printers: []models.PrinterDescriptor{usbKitchen}}, conn, nil, &fakeBrowser{})

	res := svc.PrintKitchenTicket(context.Background(), burgerTicket(), models.RoleKitchen)
	want := PrintResult{Success: false, Method: MethodBrowser, Error: ErrNoPrintMethod}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
}

func TestDispatchBrowserFailureIsReported(t *testing.T) {
	conn := &fakeConnector{err: ErrNoConnection}
	browser := &fakeBrowser{err: errors.New("chrome not found")}
	station := config.StationConfig{Printers: []models.PrinterDescriptor{usbKitchen}, BrowserFallback: true}
	svc := newTestPrinterService(station, conn, nil, browser)

	res := svc.PrintKitchenTicket(context.Background(), burgerTicket(), models.RoleKitchen)
	if res.Success || res.Error != ErrNoPrintMethod {
		t.Fatalf("result = %+v, want explicit failure", res)
	}
}

func TestDispatchNetworkPrinterGoesThroughAgent(t *testing.T) {
	queue := &fakeSubmitter{}
	station := config.StationConfig{Printers: []models.PrinterDescriptor{lanCounter}, Currency: "$"}
	svc := newTestPrinterService(station, &fakeConnector{}, queue, &fakeBrowser{})

	bill := &models.BillPayload{
		ID:            "bill-1",
		Items:         []models.LineItem{{Name: "Burger", Quantity: 2, UnitPrice: 5}},
		Subtotal:      10,
		Total:         10,
		PaymentMethod: "cash",
	}
	res := svc.PrintBill(context.Background(), bill)
	if !res.Success || res.Method != MethodAgent {
		t.Fatalf("result = %+v, want agent success", res)
	}
	if len(queue.reqs) != 1 {
		t.Fatalf("submitted %d jobs, want 1", len(queue.reqs))
	}
	req := queue.reqs[0]
	if req.JobType != models.JobTypeBill || req.PrinterRole != "counter" {
		t.Fatalf("submit request = %+v", req)
	}
	var payload models.RawPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Address != "192.168.1.50:9100" {
		t.Fatalf("address = %q", payload.Address)
	}
	drawer := []byte{0x1B, 0x70, 0x00, 0x19, 0xFA}
	if !bytes.HasSuffix(payload.Data, drawer) {
		t.Fatalf("cash bill should end with the drawer pulse")
	}
}

func TestDispatchAgentFailureFallsBack(t *testing.T) {
	queue := &fakeSubmitter{err: errors.New("queue down")}
	browser := &fakeBrowser{}
	station := config.StationConfig{Printers: []models.PrinterDescriptor{lanCounter}, BrowserFallback: true}
	svc := newTestPrinterService(station, &fakeConnector{}, queue, browser)

	res := svc.PrintBill(context.Background(), &models.BillPayload{
		Items: []models.LineItem{{Name: "Tea", Quantity: 1, UnitPrice: 2}},
		Total: 2,
	})
	if !res.Success || res.Method != MethodBrowser {
		t.Fatalf("result = %+v, want browser", res)
	}
}

func TestPrintEmptyTicketDoesNotConsumeNumber(t *testing.T) {
	svc := newTestPrinterService(config.StationConfig{}, &fakeConnector{}, nil, nil)
	res := svc.PrintKitchenTicket(context.Background(), &models.TicketPayload{}, "")
	if res.Success || res.Method != MethodNone {
		t.Fatalf("result = %+v, want formatting failure", res)
	}
	if svc.sequence.Peek() != 0 {
		t.Fatalf("empty ticket consumed a sequence number")
	}
}

func TestTestPrintSurfacesTransportError(t *testing.T) {
	conn := &fakeConnector{err: ErrNoConnection}
	svc := newTestPrinterService(config.StationConfig{}, conn, nil, &fakeBrowser{})

	err := svc.TestPrint(context.Background(), usbKitchen)
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("err = %v, want ErrNoConnection", err)
	}
}

func TestTestPrintWritesDiagnosticPage(t *testing.T) {
	conn := &fakeConnector{}
	svc := newTestPrinterService(config.StationConfig{}, conn, nil, nil)

	if err := svc.TestPrint(context.Background(), usbKitchen); err != nil {
		t.Fatalf("test print: %v", err)
	}
	out := conn.conns[0].Bytes()
	if !bytes.HasPrefix(out, []byte{0x1B, 0x40}) || !bytes.Contains(out, []byte("kitchen-usb")) {
		t.Fatalf("diagnostic page missing reset or printer name")
	}
}

func TestDeviceConnectorNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		data, _ := io.ReadAll(c)
		got <- data
	}()

	addr := ln.Addr().(*net.TCPAddr)
	desc := models.PrinterDescriptor{
		Name: "lan", Role: models.RoleKitchen, Transport: models.TransportNetwork,
		PaperFormat: models.Paper80mm, Address: "127.0.0.1", Port: addr.Port,
	}
	if err := writeJob(context.Background(), NewDeviceConnector(), desc, []byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case data := <-got:
		if !bytes.Equal(data, []byte{0x1B, 0x40}) {
			t.Fatalf("printer received % X", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("printer received nothing")
	}
}

func TestDeviceConnectorMissingDevice(t *testing.T) {
	desc := models.PrinterDescriptor{Name: "usb", Transport: models.TransportUSB, Address: "/nonexistent/lp9"}
	_, err := NewDeviceConnector().Resolve(context.Background(), desc)
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("err = %v, want ErrNoConnection", err)
	}
}
