package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kvist/reconwave/internal/command"
	"github.com/kvist/reconwave/internal/errors"
	"github.com/kvist/reconwave/internal/scanning"
)

var validate = validator.New()

// CreateScanRequest is the scan submission body. Callers either fill in
// the structured fields, or supply a Command sentence of the form
// "Run <type> scan on <target>" which sets target and scan type.
type CreateScanRequest struct {
	Command        string            `json:"command,omitempty"`
	Target         string            `json:"target,omitempty"`
	ScanType       scanning.ScanType `json:"scan_type,omitempty" validate:"omitempty,oneof=Passive PortDiscovery ServiceDetection OsFingerprint"`
	Ports          string            `json:"ports,omitempty"`
	RateLimit      uint              `json:"rate_limit,omitempty"`
	TimeoutSeconds uint              `json:"timeout,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// CreateScanResponse is returned for an admitted scan.
type CreateScanResponse struct {
	ScanID   string   `json:"scan_id"`
	Status   string   `json:"status"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) createScanHandler(w http.ResponseWriter, r *http.Request) {
	var body CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	if body.Command != "" {
		scanType, target, err := command.ParseCommand(body.Command)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body.ScanType = scanType
		body.Target = target
	}

	if body.Target == "" || body.ScanType == "" {
		s.writeError(w, r, errors.NewScanError(errors.CodeValidation,
			"target and scan_type are required (or provide a command)"))
		return
	}
	if err := validate.Struct(&body); err != nil {
		s.writeError(w, r, errors.NewScanError(errors.CodeValidation, err.Error()))
		return
	}

	receipt, err := s.orchestrator.StartScan(r.Context(), scanning.ScanRequest{
		Target:         body.Target,
		ScanType:       body.ScanType,
		Ports:          body.Ports,
		RateLimit:      body.RateLimit,
		TimeoutSeconds: body.TimeoutSeconds,
		Options:        body.Options,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, CreateScanResponse{
		ScanID:   receipt.ScanID.String(),
		Status:   string(scanning.StatusRunning),
		Warnings: receipt.Warnings,
	})
}

func (s *Server) listScansHandler(w http.ResponseWriter, _ *http.Request) {
	active := s.orchestrator.ActiveScans()
	if active == nil {
		active = []scanning.ScanJobSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scans": active,
		"count": len(active),
	})
}

func (s *Server) getScanHandler(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snapshot, err := s.orchestrator.GetScanStatus(scanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) cancelScanHandler(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.orchestrator.CancelScan(scanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearFinishedHandler(w http.ResponseWriter, _ *http.Request) {
	removed := s.orchestrator.ClearFinished()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

func scanIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	scanID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid scan ID %q", raw))
	}
	return scanID, nil
}
