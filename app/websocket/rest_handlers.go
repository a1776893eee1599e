package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"PosPrint/app/models"
	"PosPrint/app/services"
)

// AgentProber reports on the local print agent. QueueClient implements it.
type AgentProber interface {
	AgentHealth(ctx context.Context) (*services.AgentHealth, bool)
}

// RESTHandlers is the station API consumed by the POS screens
type RESTHandlers struct {
	printer  *services.PrinterService
	cache    *services.OfflineCacheService
	sequence *services.SequenceService
	agent    AgentProber
	notifier services.Notifier
	logger   *services.LoggerService
}

// NewRESTHandlers creates the handlers. agent may be nil.
func NewRESTHandlers(printer *services.PrinterService, cache *services.OfflineCacheService, sequence *services.SequenceService, agent AgentProber, notifier services.Notifier, logger *services.LoggerService) *RESTHandlers {
	if notifier == nil {
		notifier = services.NopNotifier{}
	}
	return &RESTHandlers{
		printer:  printer,
		cache:    cache,
		sequence: sequence,
		agent:    agent,
		notifier: notifier,
		logger:   logger,
	}
}

// Routes registers every endpoint. ws serves UI events on /ws when not nil.
func (h *RESTHandlers) Routes(ws http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/api/print/kot", h.HandlePrintKOT)
	mux.HandleFunc("/api/print/bill", h.HandlePrintBill)
	mux.HandleFunc("/api/print/test", h.HandleTestPrint)
	mux.HandleFunc("/api/printers", h.HandleGetPrinters)
	mux.HandleFunc("/api/printers/detect", h.HandleDetectPrinters)
	mux.HandleFunc("/api/agent", h.HandleAgentStatus)
	mux.HandleFunc("/api/bills", h.HandleCreateBill)
	mux.HandleFunc("/api/kots", h.HandleCreateKOT)
	mux.HandleFunc("/api/sync/status", h.HandleSyncStatus)
	mux.HandleFunc("/api/sync/drain", h.HandleDrain)
	mux.HandleFunc("/api/sync/pending", h.HandleClearPending)
	mux.HandleFunc("/api/sequence", h.HandleSequence)
	mux.HandleFunc("/api/sequence/reset", h.HandleSequenceReset)
	mux.HandleFunc("/api/reference/", h.HandleReference)
	if ws != nil {
		mux.Handle("/ws", ws)
	}
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		services.WriteJSON(w, http.StatusMethodNotAllowed, services.APIResponse{Success: false, Error: "method not allowed"})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		services.WriteJSON(w, http.StatusBadRequest, services.APIResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, status int, err error) {
	services.WriteJSON(w, status, services.APIResponse{Success: false, Error: err.Error()})
}

// HandleHealth handles GET /health
func (h *RESTHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	services.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandlePrintKOT handles POST /api/print/kot?role=kitchen|bar
func (h *RESTHandlers) HandlePrintKOT(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var ticket models.TicketPayload
	if !decodeBody(w, r, &ticket) {
		return
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}

	role := models.PrinterRole(r.URL.Query().Get("role"))
	result := h.printer.PrintKitchenTicket(r.Context(), &ticket, role)
	h.notifier.Notify(string(TypePrintResult), map[string]interface{}{
		"job":           "kot",
		"ticket_number": ticket.TicketNumber,
		"result":        result,
	})

	services.WriteJSON(w, http.StatusOK, services.APIResponse{
		Success: result.Success,
		Error:   result.Error,
		Data: map[string]interface{}{
			"method":        result.Method,
			"ticket_number": ticket.TicketNumber,
		},
	})
}

// HandlePrintBill handles POST /api/print/bill
func (h *RESTHandlers) HandlePrintBill(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var bill models.BillPayload
	if !decodeBody(w, r, &bill) {
		return
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now()
	}

	result := h.printer.PrintBill(r.Context(), &bill)
	h.notifier.Notify(string(TypePrintResult), map[string]interface{}{
		"job":         "bill",
		"bill_number": bill.BillNumber,
		"result":      result,
	})

	services.WriteJSON(w, http.StatusOK, services.APIResponse{
		Success: result.Success,
		Error:   result.Error,
		Data:    map[string]interface{}{"method": result.Method},
	})
}

// TestPrintRequest selects the printer to test: a configured role, or a
// full descriptor for a printer that is not saved yet
type TestPrintRequest struct {
	Role    models.PrinterRole        `json:"role,omitempty"`
	Printer *models.PrinterDescriptor `json:"printer,omitempty"`
}

// HandleTestPrint handles POST /api/print/test. Transport errors are
// returned as they are.
func (h *RESTHandlers) HandleTestPrint(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req TestPrintRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	if req.Printer != nil {
		err = h.printer.TestPrint(r.Context(), *req.Printer)
	} else {
		err = h.printer.TestPrintRole(r.Context(), req.Role)
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Message: "Test page sent"})
}

// HandleGetPrinters handles GET /api/printers
func (h *RESTHandlers) HandleGetPrinters(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	printers := h.printer.Printers()
	if printers == nil {
		printers = []models.PrinterDescriptor{}
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: printers})
}

// HandleDetectPrinters handles GET /api/printers/detect
func (h *RESTHandlers) HandleDetectPrinters(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	printers, err := services.DetectPrinters()
	if err != nil {
		respondError(w, http.StatusNotImplemented, err)
		return
	}
	if printers == nil {
		printers = []services.DetectedPrinter{}
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: printers})
}

// HandleAgentStatus handles GET /api/agent
func (h *RESTHandlers) HandleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	data := map[string]interface{}{"available": false}
	if h.agent != nil {
		if health, ok := h.agent.AgentHealth(r.Context()); ok {
			data["available"] = true
			data["agent_id"] = health.AgentID
			data["printers"] = health.Printers
		}
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: data})
}

// HandleCreateBill handles POST /api/bills: persist now, or queue offline
func (h *RESTHandlers) HandleCreateBill(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var bill models.BillPayload
	if !decodeBody(w, r, &bill) {
		return
	}
	if bill.ID == "" {
		services.WriteJSON(w, http.StatusBadRequest, services.APIResponse{Success: false, Error: "id is required"})
		return
	}

	stored, queued, err := h.cache.PersistBill(r.Context(), bill)
	if err != nil {
		h.logger.LogError("Failed to persist or queue bill", err, bill.ID)
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	data := map[string]interface{}{"queued": queued}
	if stored != nil {
		data["bill_number"] = stored.BillNumber
		data["bill_id"] = stored.ID
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: data})
}

// HandleCreateKOT handles POST /api/kots: mark items sent, or queue offline
func (h *RESTHandlers) HandleCreateKOT(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var ticket models.TicketPayload
	if !decodeBody(w, r, &ticket) {
		return
	}
	if ticket.ID == "" {
		services.WriteJSON(w, http.StatusBadRequest, services.APIResponse{Success: false, Error: "id is required"})
		return
	}

	queued, err := h.cache.PersistKitchenTicket(r.Context(), ticket)
	if err != nil {
		h.logger.LogError("Failed to persist or queue kitchen ticket", err, ticket.ID)
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: map[string]interface{}{"queued": queued}})
}

// HandleSyncStatus handles GET /api/sync/status
func (h *RESTHandlers) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: h.cache.Status()})
}

// HandleDrain handles POST /api/sync/drain
func (h *RESTHandlers) HandleDrain(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	result, err := h.cache.Drain(r.Context())
	if err != nil {
		services.WriteJSON(w, http.StatusServiceUnavailable, services.APIResponse{Success: false, Error: err.Error(), Data: result})
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Data: result})
}

// HandleClearPending handles DELETE /api/sync/pending
func (h *RESTHandlers) HandleClearPending(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	if err := h.cache.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Message: "Offline queues cleared"})
}

// HandleSequence handles GET /api/sequence
func (h *RESTHandlers) HandleSequence(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	services.WriteJSON(w, http.StatusOK, services.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"counter":    h.sequence.Peek(),
			"persistent": h.sequence.Persistent(),
		},
	})
}

// HandleSequenceReset handles POST /api/sequence/reset
func (h *RESTHandlers) HandleSequenceReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.sequence.Reset()
	services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true, Message: "Kitchen ticket counter reset"})
}

// HandleReference handles GET and PUT /api/reference/{products|sections}
func (h *RESTHandlers) HandleReference(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/reference/")

	switch r.Method {
	case http.MethodGet:
		ref, err := h.cache.LoadReference(key)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if ref == nil {
			services.WriteJSON(w, http.StatusNotFound, services.APIResponse{Success: false, Error: "not cached"})
			return
		}
		services.WriteJSON(w, http.StatusOK, services.APIResponse{
			Success: true,
			Data: map[string]interface{}{
				"data":        json.RawMessage(ref.Data),
				"last_synced": ref.LastSynced,
			},
		})

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
		if err != nil || !json.Valid(body) {
			services.WriteJSON(w, http.StatusBadRequest, services.APIResponse{Success: false, Error: "body must be JSON"})
			return
		}
		if err := h.cache.SaveReference(key, string(body)); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		services.WriteJSON(w, http.StatusOK, services.APIResponse{Success: true})

	default:
		services.WriteJSON(w, http.StatusMethodNotAllowed, services.APIResponse{Success: false, Error: "method not allowed"})
	}
}
