package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"detectview/internal/config"
	"detectview/internal/logger"
	"detectview/internal/pipeline"
	"detectview/internal/repository/sqlite"
	"detectview/internal/route"
	"detectview/internal/service/ai"
	"detectview/internal/service/storage"
	"detectview/internal/service/websocket"

	"go.uber.org/multierr"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	pipeline   *Pipeline
	hubService *websocket.HubService
	journal    *storage.JournalService
	db         *sqlite.DB
	router     http.Handler
	detach     []func()
}

// NewApp loads the configuration from the environment and wires every service.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	store := pipeline.NewStore()

	p, err := NewPipeline(a.config, a.logger, store)
	if err != nil {
		return err
	}
	a.pipeline = p

	a.hubService = websocket.NewHubService(a.logger)
	a.detach = append(a.detach, a.hubService.Attach(store))

	deps := route.Dependencies{
		Orchestrator: p.Orchestrator,
		Annotate:     ai.Annotate,
		Hub:          a.hubService,
		Health:       p.Health,
	}

	if a.config.JournalPath != "" {
		db, err := sqlite.New(a.config.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open frame journal: %w", err)
		}
		a.db = db

		frameRepo := sqlite.NewFrameRepository(db)
		deps.FrameRepo = frameRepo
		deps.DetectionRepo = sqlite.NewDetectionRepository(db)

		a.journal = storage.NewJournalService(a.config, a.logger, frameRepo)
		a.detach = append(a.detach, a.journal.Attach(store))
	}

	a.router = route.SetupRoutes(deps, a.config, a.logger)
	return nil
}

// Run serves HTTP until ctx ends, then shuts the server and background services down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background services
	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		a.hubService.Run(ctx)
	}()
	if a.journal != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			a.journal.Run(ctx)
		}()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("🚀 Detection Viewer\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Objects: %s, Faces: %s\n", a.config.ObjectBackend, a.config.FaceBackend)
	if a.journal != nil {
		fmt.Printf("📁 Journal: %s\n", a.config.JournalPath)
	}
	a.logger.Info("Server listening on :%d", a.config.Port)

	err := httpServer.ListenAndServe()
	cancel()
	background.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases the detectors, the journal database and the log files.
func (a *App) Close() error {
	for _, detach := range a.detach {
		detach()
	}

	var err error
	if a.pipeline != nil {
		err = multierr.Append(err, a.pipeline.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return multierr.Append(err, a.logger.Close())
}
