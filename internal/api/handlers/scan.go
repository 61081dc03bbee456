package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/scanner"
)

// ScanController is the part of scanner.Engine the scan endpoints drive.
type ScanController interface {
	Start(req scanner.Request) (string, error)
	Cancel()
	IsScanning() bool
	CurrentID() string
	LastID() string
	Results() []scanner.Outcome
}

// ErrInvalidArguments is returned when a scan request names neither a range
// nor a complete pair of bounds.
var ErrInvalidArguments = errors.NewScanError(errors.CodeValidation, "Invalid arguments")

// ScanRequest is the body of POST /scan. Range wins when both forms are given.
type ScanRequest struct {
	Range   string `json:"range" validate:"required_without=StartIP"`
	StartIP string `json:"start_ip" validate:"required_without=Range,required_with=EndIP"`
	EndIP   string `json:"end_ip" validate:"required_with=StartIP"`
}

func (r *ScanRequest) normalize() {
	r.Range = strings.TrimSpace(r.Range)
	r.StartIP = strings.TrimSpace(r.StartIP)
	r.EndIP = strings.TrimSpace(r.EndIP)
}

// StartScanResponse is returned when a scan was accepted.
type StartScanResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

// ScanStatusResponse describes the engine state and the latest results.
type ScanStatusResponse struct {
	Scanning bool              `json:"scanning"`
	ScanID   string            `json:"scan_id,omitempty"`
	Results  []scanner.Outcome `json:"results"`
}

// ScanHandler serves the scan control endpoints.
type ScanHandler struct {
	engine         ScanController
	logger         *slog.Logger
	validator      *validator.Validate
	maxRequestSize int64
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(engine ScanController, logger *slog.Logger, maxRequestSize int64) *ScanHandler {
	return &ScanHandler{
		engine:         engine,
		logger:         logger.With("handler", "scan"),
		validator:      validator.New(),
		maxRequestSize: maxRequestSize,
	}
}

// StartScan starts a scan, replacing any running one.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := parseJSON(w, r, &req, h.maxRequestSize); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.normalize()

	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			h.logger.Debug("Scan request failed validation", "fields", len(verrs))
		}
		writeError(w, r, http.StatusBadRequest, ErrInvalidArguments)
		return
	}

	scanReq := scanner.Request{Range: req.Range}
	if req.Range == "" {
		scanReq = scanner.Request{StartIP: req.StartIP, EndIP: req.EndIP}
	}

	scanID, err := h.engine.Start(scanReq)
	if err != nil {
		if errors.IsRangeError(err) {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("Failed to start scan", "request", scanReq.String(), "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Scan started", "scan_id", scanID, "request", scanReq.String())
	writeJSON(w, r, http.StatusAccepted, StartScanResponse{ScanID: scanID, Status: "started"})
}

// CancelScan stops the running scan. Canceling while idle succeeds.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := h.engine.CurrentID()
	h.engine.Cancel()

	if scanID != "" {
		h.logger.Info("Scan canceled", "scan_id", scanID)
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"canceled": scanID != "",
		"scan_id":  scanID,
	})
}

// GetScan reports whether a scan runs and the results of the latest scan.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	results := h.engine.Results()
	if results == nil {
		results = []scanner.Outcome{}
	}

	writeJSON(w, r, http.StatusOK, ScanStatusResponse{
		Scanning: h.engine.IsScanning(),
		ScanID:   h.engine.LastID(),
		Results:  results,
	})
}
