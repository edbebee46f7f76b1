package route

import (
	"net/http"
	"os"
	"path/filepath"

	"detectview/internal/config"
	"detectview/internal/handler"
	"detectview/internal/logger"
	"detectview/internal/middleware"
	"detectview/internal/pipeline"
	"detectview/internal/repository"
	"detectview/internal/service/websocket"
)

// Dependencies are the services the routes are served from.
// FrameRepo and DetectionRepo are nil when the journal is disabled.
type Dependencies struct {
	Orchestrator  *pipeline.Orchestrator
	Annotate      handler.AnnotateFunc
	Hub           *websocket.HubService
	FrameRepo     repository.FrameRepository
	DetectionRepo repository.DetectionRepository
	Health        []handler.HealthChecker
}

// pageHandler serves /path as dir/path.html if the file exists; otherwise 404.
func pageHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(dir, filepath.FromSlash(path)+".html")

		if _, err := os.Stat(filePath); err != nil {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints,
// and wraps the mux with the CORS middleware.
func SetupRoutes(deps Dependencies, cfg *config.Config, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// API endpoints
	mux.HandleFunc("/api/detect", handler.DetectHandler(deps.Orchestrator, deps.Annotate, cfg, log))
	mux.HandleFunc("/api/frame", handler.FrameHandler(deps.Orchestrator.Store(), log))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, log))
	mux.HandleFunc("/api/history", handler.HistoryHandler(cfg, log, deps.FrameRepo, deps.DetectionRepo))
	mux.HandleFunc("/api/history/clear", handler.ClearHistoryHandler(log, deps.FrameRepo))
	mux.HandleFunc("/health", handler.HealthHandler(log, deps.Health...))

	// Log endpoints
	for level, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg.LogDirectory, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Pages: / -> index.html, /history -> history.html
	mux.HandleFunc("/", pageHandler(cfg.StaticDirectory))

	return middleware.CORSMiddleware(mux)
}
