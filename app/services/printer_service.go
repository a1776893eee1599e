package services

import (
	"context"
	"encoding/json"
	"fmt"

	"PosPrint/app/config"
	"PosPrint/app/models"
)

// Print methods reported in PrintResult
const (
	MethodThermal = "thermal"
	MethodAgent   = "agent"
	MethodBrowser = "browser"
	MethodNone    = "none"
)

// ErrNoPrintMethod is the error text when every strategy was skipped or failed
const ErrNoPrintMethod = "No print method available"

// PrintResult is the outcome of one print attempt
type PrintResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method"`
	Error   string `json:"error,omitempty"`
}

// PrintRequest is a finalized job for one printer. Fallback is optional.
type PrintRequest struct {
	JobType  models.JobType
	Printer  models.PrinterDescriptor
	Data     []byte
	Fallback *RenderTarget
}

// PrintStrategy is one way of getting a job onto paper
type PrintStrategy interface {
	Method() string
	Available(req PrintRequest) bool
	Print(ctx context.Context, req PrintRequest) error
}

// Dispatcher tries its strategies in order until one succeeds
type Dispatcher struct {
	strategies []PrintStrategy
	logger     *LoggerService
}

// NewDispatcher creates a dispatcher over an ordered strategy list
func NewDispatcher(logger *LoggerService, strategies ...PrintStrategy) *Dispatcher {
	return &Dispatcher{strategies: strategies, logger: logger}
}

// Dispatch never returns an error: strategy failures, panics included, are
// logged and the next strategy is tried.
func (d *Dispatcher) Dispatch(ctx context.Context, req PrintRequest) PrintResult {
	for _, s := range d.strategies {
		if !s.Available(req) {
			continue
		}
		if err := d.print(ctx, s, req); err != nil {
			d.logger.LogWarning(fmt.Sprintf("%s print failed, falling back", s.Method()),
				fmt.Sprintf("printer=%s error=%v", req.Printer.Name, err))
			continue
		}
		d.logger.LogInfo(fmt.Sprintf("Printed %s via %s", req.JobType, s.Method()), req.Printer.Name)
		return PrintResult{Success: true, Method: s.Method()}
	}
	return PrintResult{Success: false, Method: MethodBrowser, Error: ErrNoPrintMethod}
}

func (d *Dispatcher) print(ctx context.Context, s PrintStrategy, req PrintRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.LogPanic(r)
			err = fmt.Errorf("%s strategy panicked: %v", s.Method(), r)
		}
	}()
	return s.Print(ctx, req)
}

// ThermalStrategy writes directly to usb and bluetooth printers
type ThermalStrategy struct {
	connector Connector
}

func NewThermalStrategy(connector Connector) *ThermalStrategy {
	return &ThermalStrategy{connector: connector}
}

func (t *ThermalStrategy) Method() string { return MethodThermal }

func (t *ThermalStrategy) Available(req PrintRequest) bool {
	return req.Printer.Transport.IsDirect() && len(req.Data) > 0
}

func (t *ThermalStrategy) Print(ctx context.Context, req PrintRequest) error {
	return writeJob(ctx, t.connector, req.Printer, req.Data)
}

// JobSubmitter hands jobs to the remote queue. QueueClient implements it.
type JobSubmitter interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
}

// AgentStrategy routes network printers through the remote queue, where a
// local agent on the printer's LAN picks the job up
type AgentStrategy struct {
	queue JobSubmitter
}

func NewAgentStrategy(queue JobSubmitter) *AgentStrategy {
	return &AgentStrategy{queue: queue}
}

func (a *AgentStrategy) Method() string { return MethodAgent }

func (a *AgentStrategy) Available(req PrintRequest) bool {
	return a.queue != nil && req.Printer.Transport == models.TransportNetwork && len(req.Data) > 0
}

func (a *AgentStrategy) Print(ctx context.Context, req PrintRequest) error {
	payload, err := json.Marshal(models.RawPayload{
		Printer: req.Printer.Name,
		Address: req.Printer.NetworkAddress(),
		Paper:   string(req.Printer.PaperFormat),
		Data:    req.Data,
	})
	if err != nil {
		return err
	}
	_, err = a.queue.Submit(ctx, SubmitRequest{
		JobType:     req.JobType,
		PrinterRole: string(req.Printer.Role),
		Payload:     payload,
	})
	return err
}

// BrowserStrategy prints the rendered fallback document
type BrowserStrategy struct {
	printer BrowserPrinter
}

func NewBrowserStrategy(printer BrowserPrinter) *BrowserStrategy {
	return &BrowserStrategy{printer: printer}
}

func (b *BrowserStrategy) Method() string { return MethodBrowser }

func (b *BrowserStrategy) Available(req PrintRequest) bool {
	return b.printer != nil && req.Fallback != nil
}

func (b *BrowserStrategy) Print(ctx context.Context, req PrintRequest) error {
	return b.printer.PrintHTML(ctx, *req.Fallback, req.Printer.PaperFormat)
}

// PrinterService formats tickets and bills and hands them to the dispatcher
type PrinterService struct {
	station    config.StationConfig
	dispatcher *Dispatcher
	connector  Connector
	sequence   *SequenceService
	logger     *LoggerService
}

// NewPrinterService creates the station's printing front end
func NewPrinterService(station config.StationConfig, dispatcher *Dispatcher, connector Connector, sequence *SequenceService, logger *LoggerService) *PrinterService {
	return &PrinterService{
		station:    station,
		dispatcher: dispatcher,
		connector:  connector,
		sequence:   sequence,
		logger:     logger,
	}
}

// printerFor returns the configured printer for a role. Without one, a
// placeholder is returned so the browser fallback can still print.
func (s *PrinterService) printerFor(role models.PrinterRole) models.PrinterDescriptor {
	if p, ok := s.station.PrinterFor(role); ok {
		return p
	}
	return models.PrinterDescriptor{
		Name:        string(role),
		Role:        role,
		PaperFormat: models.Paper80mm,
	}
}

// Printers returns the configured printers
func (s *PrinterService) Printers() []models.PrinterDescriptor {
	return s.station.Printers
}

// PrintKitchenTicket numbers the ticket when it has no number yet, formats
// it and prints it on the printer for role (kitchen when empty).
func (s *PrinterService) PrintKitchenTicket(ctx context.Context, p *models.TicketPayload, role models.PrinterRole) PrintResult {
	if role == "" {
		role = models.RoleKitchen
	}
	if len(p.Items) == 0 {
		return PrintResult{Success: false, Method: MethodNone, Error: ErrEmptyTicket.Error()}
	}
	if p.TicketNumber == "" && s.sequence != nil {
		p.TicketNumber = s.sequence.Next()
	}

	desc := s.printerFor(role)
	data, err := FormatKitchenTicket(*p, desc.PaperFormat)
	if err != nil {
		return PrintResult{Success: false, Method: MethodNone, Error: err.Error()}
	}

	req := PrintRequest{JobType: models.JobTypeKOT, Printer: desc, Data: data}
	if s.station.BrowserFallback {
		if target, err := KitchenTicketHTML(*p, desc.PaperFormat); err == nil {
			req.Fallback = &target
		} else {
			s.logger.LogError("Failed to render kitchen ticket HTML", err)
		}
	}
	return s.dispatcher.Dispatch(ctx, req)
}

// PrintBill formats the bill for the counter printer. Station business
// details fill any header field the payload leaves empty.
func (s *PrinterService) PrintBill(ctx context.Context, p *models.BillPayload) PrintResult {
	if p.BusinessName == "" {
		p.BusinessName = s.station.BusinessName
	}
	if p.Address == "" {
		p.Address = s.station.Address
	}
	if p.Phone == "" {
		p.Phone = s.station.Phone
	}

	desc := s.printerFor(models.RoleCounter)
	data, err := FormatBill(*p, desc.PaperFormat, s.station.Currency)
	if err != nil {
		return PrintResult{Success: false, Method: MethodNone, Error: err.Error()}
	}
	if p.PaidInCash() && desc.CashDrawer {
		data = append(data, DrawerPulse(desc.PaperFormat)...)
	}

	req := PrintRequest{JobType: models.JobTypeBill, Printer: desc, Data: data}
	if s.station.BrowserFallback {
		if target, err := BillHTML(*p, desc.PaperFormat, s.station.Currency); err == nil {
			req.Fallback = &target
		} else {
			s.logger.LogError("Failed to render bill HTML", err)
		}
	}
	return s.dispatcher.Dispatch(ctx, req)
}

// TestPrint sends the diagnostic page straight to the device. Unlike the
// dispatcher it returns the transport error as is.
func (s *PrinterService) TestPrint(ctx context.Context, desc models.PrinterDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := writeJob(ctx, s.connector, desc, FormatTestPage(desc)); err != nil {
		return err
	}
	s.logger.LogInfo("Test print sent", desc.Name)
	return nil
}

// TestPrintRole runs TestPrint on the printer configured for role
func (s *PrinterService) TestPrintRole(ctx context.Context, role models.PrinterRole) error {
	if p, ok := s.station.PrinterFor(role); ok {
		return s.TestPrint(ctx, p)
	}
	return fmt.Errorf("%w: no %s printer configured", ErrNoConnection, role)
}
