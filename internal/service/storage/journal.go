package storage

import (
	"context"
	"sync"
	"time"

	"detectview/internal/config"
	"detectview/internal/logger"
	"detectview/internal/model"
	"detectview/internal/pipeline"
	"detectview/internal/repository"

	"github.com/google/uuid"
)

const (
	// JournalBufferLimit is how many completed frames are held before an early flush.
	JournalBufferLimit = 32
	// DefaultJournalFlushInterval is used when the configured interval is not positive.
	DefaultJournalFlushInterval = 10 * time.Second
)

// JournalService buffers completed frames in memory and periodically writes them to the repository.
type JournalService struct {
	interval  time.Duration
	frames    []model.FrameRecord
	lastRun   uuid.UUID
	full      chan struct{}
	mu        sync.Mutex
	logger    *logger.Logger
	frameRepo repository.FrameRepository
}

// NewJournalService creates a journal writing into frameRepo.
func NewJournalService(config *config.Config, logger *logger.Logger, frameRepo repository.FrameRepository) *JournalService {
	interval := config.JournalFlushInterval
	if interval <= 0 {
		interval = DefaultJournalFlushInterval
	}

	return &JournalService{
		interval:  interval,
		frames:    make([]model.FrameRecord, 0, JournalBufferLimit),
		full:      make(chan struct{}, 1),
		logger:    logger,
		frameRepo: frameRepo,
	}
}

// Attach records every frame store completes until the returned cancel is called.
func (s *JournalService) Attach(store *pipeline.Store) (cancel func()) {
	return store.Subscribe(s.Record)
}

// Run flushes on a ticker, or early when the buffer fills, until ctx ends.
// Frames still buffered at that point are flushed before returning.
func (s *JournalService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushFrames()
			return
		case <-ticker.C:
			s.FlushFrames()
		case <-s.full:
			s.FlushFrames()
		}
	}
}

// Record buffers f once it has completed. Frames still loading are ignored,
// as are repeated notifications for a run already recorded.
func (s *JournalService) Record(f pipeline.Frame) {
	if f.Loading || f.RunID == uuid.Nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f.RunID == s.lastRun {
		return
	}
	s.lastRun = f.RunID
	s.frames = append(s.frames, *NewFrameRecord(f))

	if len(s.frames) >= JournalBufferLimit {
		select {
		case s.full <- struct{}{}:
		default:
		}
	}
}

// Pending returns how many frames are waiting to be flushed.
func (s *JournalService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// FlushFrames writes buffered frames to the repository and resets the buffer.
// Frames that fail to insert are logged and dropped. Returns how many were saved.
func (s *JournalService) FlushFrames() int {
	s.mu.Lock()
	frames := s.frames
	s.frames = make([]model.FrameRecord, 0, JournalBufferLimit)
	s.mu.Unlock()

	if len(frames) == 0 {
		return 0
	}

	savedCount := 0
	for i := range frames {
		if _, err := s.frameRepo.Insert(&frames[i]); err != nil {
			s.logger.Error("Error saving frame %s to database: %v", frames[i].RunID, err)
			continue
		}
		savedCount++
	}

	s.logger.Info("Flushed %d frames to the journal", savedCount)
	return savedCount
}

// NewFrameRecord flattens a completed frame into its journal form.
func NewFrameRecord(f pipeline.Frame) *model.FrameRecord {
	record := &model.FrameRecord{
		RunID:         f.RunID.String(),
		NaturalWidth:  f.Natural.Width,
		NaturalHeight: f.Natural.Height,
		DisplayWidth:  f.Display.Width,
		DisplayHeight: f.Display.Height,
		ObjectStatus:  f.Objects.Status.String(),
		FaceStatus:    f.Faces.Status.String(),
		StartedAt:     f.StartedAt,
		CompletedAt:   f.CompletedAt,
	}
	if err := f.Err(); err != nil {
		record.Error = err.Error()
	}

	for _, o := range f.Overlays() {
		record.Detections = append(record.Detections, model.DetectionRecord{
			Kind:   o.Kind,
			Label:  o.Label,
			Score:  o.Score,
			X:      o.Box.X,
			Y:      o.Box.Y,
			Width:  o.Box.Width,
			Height: o.Box.Height,
		})
	}
	return record
}
