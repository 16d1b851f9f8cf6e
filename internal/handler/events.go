package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/model"
)

// EventLister reads the audit trail. *eventlog.Logger implements it.
type EventLister interface {
	ListDay(ctx context.Context, day time.Time) ([]model.LogEntry, error)
	Recent(ctx context.Context, limit int) ([]model.LogEntry, error)
}

// EventsHandler serves GET /api/events. With ?date=YYYY-MM-DD it returns that
// day's rows in order; otherwise the newest ?limit rows (default 100).
func EventsHandler(events EventLister, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		var (
			rows []model.LogEntry
			err  error
		)
		if v := q.Get("date"); v != "" {
			day, perr := time.ParseInLocation("2006-01-02", v, time.Local)
			if perr != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			rows, err = events.ListDay(r.Context(), day)
		} else {
			rows, err = events.Recent(r.Context(), atoiDefault(q.Get("limit"), 100))
		}
		if err != nil {
			logger.Error("Error querying audit log: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if rows == nil {
			rows = []model.LogEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "events": rows}, logger)
	}
}

// atoiDefault converts s to a positive int or returns def.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
