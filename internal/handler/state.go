package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"relaywatch/internal/logger"
	"relaywatch/internal/service"
	"relaywatch/internal/service/state"
)

// SnapshotReader returns the shared state. *state.Reader implements it.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (state.Snapshot, error)
}

// IngestControl is the part of *service.Manager exposed over HTTP.
type IngestControl interface {
	Status() service.Status
	Restart(ctx context.Context) error
}

type stateResponse struct {
	State  state.Snapshot  `json:"state"`
	Ingest *service.Status `json:"ingest,omitempty"`
}

// StateHandler serves GET /api/state: the shared keys plus, when available,
// the ingestion worker status.
func StateHandler(reader SnapshotReader, ingest IngestControl, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap, err := reader.Snapshot(r.Context())
		if err != nil {
			logger.Error("Error reading shared state: %v", err)
			status := http.StatusInternalServerError
			if errors.Is(err, state.ErrStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, "State unavailable", status)
			return
		}

		resp := stateResponse{State: snap}
		if ingest != nil {
			st := ingest.Status()
			resp.Ingest = &st
		}
		writeJSON(w, http.StatusOK, resp, logger)
	}
}

// RestartIngestHandler serves POST /api/ingest/restart. Ingestion halts on an
// unrecoverable stream error; this is how an operator resumes it.
func RestartIngestHandler(ingest IngestControl, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := ingest.Restart(r.Context()); err != nil {
			logger.Error("Ingestion restart failed: %v", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()}, logger)
			return
		}
		logger.Info("Ingestion restarted by %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, ingest.Status(), logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}
