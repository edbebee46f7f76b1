package app

import (
	"fmt"
	"io"

	"detectview/internal/config"
	"detectview/internal/geometry"
	"detectview/internal/handler"
	"detectview/internal/logger"
	"detectview/internal/pipeline"
	"detectview/internal/service/ai"
	"detectview/internal/service/remote"

	"go.uber.org/multierr"
)

// Pipeline is an orchestrator together with the resources its detectors hold.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	Health       []handler.HealthChecker
	closers      []io.Closer
}

// NewPipeline builds the decoder and both detectors for the configured backends
// and wires them to store.
func NewPipeline(cfg *config.Config, log *logger.Logger, store *pipeline.Store) (*Pipeline, error) {
	p := &Pipeline{}

	var client *remote.Client
	remoteClient := func() *remote.Client {
		if client == nil {
			client = remote.NewClient(cfg.InferenceURL, nil, log)
			p.Health = append(p.Health, client)
		}
		return client
	}

	var objects pipeline.ObjectDetector
	switch cfg.ObjectBackend {
	case config.BackendDNN:
		d := ai.NewObjectDetector(cfg, log)
		p.closers = append(p.closers, d)
		objects = d
	case config.BackendRemote:
		objects = remoteClient()
	default:
		return nil, fmt.Errorf("unknown object backend %q", cfg.ObjectBackend)
	}

	var faces pipeline.FaceDetector
	switch cfg.FaceBackend {
	case config.BackendDNN:
		d := ai.NewFaceDetector(cfg, log)
		p.closers = append(p.closers, d)
		faces = d
	case config.BackendRemote:
		faces = remoteClient()
	default:
		return nil, fmt.Errorf("unknown face backend %q", cfg.FaceBackend)
	}

	p.Orchestrator = pipeline.NewOrchestrator(ai.NewDecoder(log), objects, faces, store, log, pipeline.Options{
		MaxResults:      cfg.MaxResults,
		Face:            pipeline.FaceOptions{FlipHorizontal: cfg.FlipHorizontal},
		DetectorTimeout: cfg.DetectorTimeout,
		MaxDisplay:      geometry.Size{Width: float64(cfg.MaxDisplayWidth), Height: float64(cfg.MaxDisplayHeight)},
	})
	return p, nil
}

// Close releases the detector networks.
func (p *Pipeline) Close() error {
	var err error
	for _, c := range p.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
