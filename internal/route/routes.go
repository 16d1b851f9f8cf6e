package route

import (
	"net/http"
	"os"
	"path/filepath"

	"relaywatch/internal/config"
	"relaywatch/internal/handler"
	"relaywatch/internal/logger"
	"relaywatch/internal/middleware"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Hub     handler.Hub
	State   handler.SnapshotReader
	Ingest  handler.IngestControl
	Events  handler.EventLister
	Session *middleware.Session
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", path+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers the viewer, state, audit and log endpoints and wraps
// the mux with the authentication middleware.
func SetupRoutes(deps Deps, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, logger))
	mux.HandleFunc("/api/state", handler.StateHandler(deps.State, deps.Ingest, logger))
	mux.HandleFunc("/api/events", handler.EventsHandler(deps.Events, logger))
	mux.HandleFunc("/api/ingest/restart", handler.RestartIngestHandler(deps.Ingest, logger))

	// Log endpoints
	for name := range handler.LogFiles {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(logger, name))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, name))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, deps.Session, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// /events -> static/events.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(deps.Session, mux)
}
