package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/tickets/db"
	ticketlock "ms-checkin/internal/tickets/redis"
	tickets "ms-checkin/internal/tickets/service"
)

type ScanService interface {
	Scan(ctx context.Context, uniqueID, scanner string, clientTimestamp *int64) (models.ScanResult, error)
	GetTicket(ctx context.Context, uniqueID string) (*models.TicketSnapshot, error)
	GetStats(ctx context.Context) (models.TicketStats, error)
	GetScanHistory(ctx context.Context, uniqueID string, limit int) ([]models.ScanHistory, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	TicketService ScanService
	Emitter       *sse.ScanEventEmitter
	HealthChecks  map[string]HealthCheck
	Logger        *logger.Logger
	// DefaultScanner is recorded when neither the request nor the token names a scanner.
	DefaultScanner string
}

func NewHandler(ticketService ScanService, emitter *sse.ScanEventEmitter, log *logger.Logger, defaultScanner string) *Handler {
	return &Handler{
		TicketService:  ticketService,
		Emitter:        emitter,
		HealthChecks:   map[string]HealthCheck{},
		Logger:         log,
		DefaultScanner: defaultScanner,
	}
}

// ScanTicket handles POST /api/checkin/scan
// Expected body: {"uniqueId": "...", "timestamp": 1700000000000, "scannedBy": "Gate A"}
func (h *Handler) ScanTicket(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeScanError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UniqueID == "" {
		writeScanError(w, http.StatusBadRequest, "uniqueId is required")
		return
	}

	result, err := h.TicketService.Scan(r.Context(), req.UniqueID, h.resolveScanner(r, req.ScannedBy), req.Timestamp)
	if err != nil {
		switch {
		case errors.Is(err, tickets.ErrScanContention), errors.Is(err, ticketlock.ErrLockTimeout):
			writeScanError(w, http.StatusConflict, "Ticket is being scanned elsewhere, please retry")
		default:
			h.Logger.Error("API", fmt.Sprintf("Scan of %s failed: %v", req.UniqueID, err))
			writeScanError(w, http.StatusInternalServerError, "Scan failed, please retry")
		}
		return
	}

	status := http.StatusOK
	if result.Status == models.ScanStatusNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result.Response())
}

// resolveScanner prefers the identity typed on the device, then the token, then the configured default.
func (h *Handler) resolveScanner(r *http.Request, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	if s := auth.ScannerIdentity(r.Context()); s != "" {
		return s
	}
	return h.DefaultScanner
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")
	ticket, err := h.TicketService.GetTicket(r.Context(), uniqueID)
	if err != nil {
		h.writeLookupError(w, uniqueID, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) ScanHistory(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.TicketService.GetScanHistory(r.Context(), uniqueID, limit)
	if err != nil {
		h.writeLookupError(w, uniqueID, err)
		return
	}
	if entries == nil {
		entries = []models.ScanHistory{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.TicketService.GetStats(r.Context())
	if err != nil {
		h.Logger.Error("API", err.Error())
		http.Error(w, "Error retrieving ticket stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, uniqueID string, err error) {
	if errors.Is(err, db.ErrTicketNotFound) {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}
	h.Logger.Error("API", fmt.Sprintf("Lookup of %s failed: %v", uniqueID, err))
	http.Error(w, "Error retrieving ticket", http.StatusInternalServerError)
}

func writeScanError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ScanResponse{Status: "error", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
