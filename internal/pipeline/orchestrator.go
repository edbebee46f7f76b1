package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/model"

	"github.com/google/uuid"
)

const (
	// DefaultMaxResults matches the box budget the object model is usually queried with.
	DefaultMaxResults = 6
	// DefaultDetectorTimeout bounds a single detector call, including a first-use model load.
	DefaultDetectorTimeout = 30 * time.Second
)

// Options configure every run of an Orchestrator.
type Options struct {
	MaxResults      int
	Face            FaceOptions
	DetectorTimeout time.Duration
	// MaxDisplay bounds the default display size; zero leaves the natural size untouched.
	MaxDisplay geometry.Size
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	display geometry.Size
}

// WithDisplaySize sets the size the image will be rendered at.
// Sizes that are not Valid are ignored and the default is used instead.
func WithDisplaySize(size geometry.Size) RunOption {
	return func(rc *runConfig) {
		rc.display = size
	}
}

// Orchestrator drives decode → detect → normalize → publish for one image at a time,
// and is the only writer of its Store.
type Orchestrator struct {
	decoder Decoder
	objects ObjectDetector
	faces   FaceDetector
	store   *Store
	logger  *logger.Logger
	opts    Options
	now     func() time.Time

	mu           sync.Mutex
	activeID     uuid.UUID
	cancelActive context.CancelFunc
}

// NewOrchestrator wires the detectors to store. Zero options take their defaults.
func NewOrchestrator(decoder Decoder, objects ObjectDetector, faces FaceDetector, store *Store, logger *logger.Logger, opts Options) *Orchestrator {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.DetectorTimeout == 0 {
		opts.DetectorTimeout = DefaultDetectorTimeout
	}

	return &Orchestrator{
		decoder: decoder,
		objects: objects,
		faces:   faces,
		store:   store,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// Store returns the store this orchestrator publishes into.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// Run performs one detection pass over data and returns the resulting frame.
//
// Starting a run supersedes any run still in flight: the older run's context is
// cancelled and none of its later results reach the store. Detector failures are
// recorded in the frame's slots and do not produce an error; a decode failure
// returns ErrDecodeFailed and a superseded run returns ErrSuperseded.
func (o *Orchestrator) Run(ctx context.Context, data []byte, opts ...RunOption) (Frame, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.New()
	frame := o.activate(id, cancel)
	defer o.release(id)

	superseded := false
	// mutate is applied to the local frame and to the store's copy, so it must be deterministic.
	publish := func(mutate func(*Frame)) {
		mutate(&frame)
		if superseded {
			return
		}
		if !o.store.update(id, mutate) {
			superseded = true
			o.logger.Warning("Run %s superseded, dropping its remaining results", id)
		}
	}

	img, err := o.decode(runCtx, data)
	if err != nil {
		o.logger.Error("Run %s: %v", id, err)
		completed := o.now()
		publish(func(f *Frame) {
			f.DecodeErr = err
			f.Objects = Slot[model.ObjectDetection]{Status: StatusFailed}
			f.Faces = Slot[model.FaceDetection]{Status: StatusFailed}
			f.Loading = false
			f.CompletedAt = completed
		})
		return frame, err
	}

	natural := img.Size()
	display := o.displaySize(natural, rc.display)
	publish(func(f *Frame) {
		f.Natural = natural
		f.Display = display
	})
	o.logger.Info("Run %s: image %s displayed at %s", id, natural, display)

	var calls sync.WaitGroup
	calls.Add(2)
	outcomes := make(chan func(*Frame), 2)
	go func() { outcomes <- o.detectObjects(runCtx, &calls, img, display) }()
	go func() { outcomes <- o.detectFaces(runCtx, &calls, img, display) }()
	go func() {
		calls.Wait()
		if err := img.Close(); err != nil {
			o.logger.Warning("Run %s: failed to release image: %v", id, err)
		}
	}()

	for i := 0; i < 2; i++ {
		publish(<-outcomes)
	}
	completed := o.now()
	publish(func(f *Frame) {
		f.Loading = false
		f.CompletedAt = completed
	})

	o.logger.Info("Run %s finished: objects %s (%d), faces %s (%d)", id,
		frame.Objects.Status, len(frame.Objects.Items), frame.Faces.Status, len(frame.Faces.Items))

	if superseded {
		return frame, fmt.Errorf("%w: %s", ErrSuperseded, id)
	}
	return frame, nil
}

// activate cancels the previous run and makes id the store's active run in one step,
// so two concurrent Run calls cannot leave a cancelled run active.
func (o *Orchestrator) activate(id uuid.UUID, cancel context.CancelFunc) Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelActive != nil {
		o.cancelActive()
	}
	o.activeID, o.cancelActive = id, cancel

	return o.store.begin(id, o.now())
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeID == id {
		o.cancelActive = nil
	}
}

func (o *Orchestrator) decode(ctx context.Context, data []byte) (Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrDecodeFailed)
	}

	img, err := o.decoder.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: decoder returned no image", ErrDecodeFailed)
	}
	if size := img.Size(); !size.Valid() {
		img.Close()
		return nil, fmt.Errorf("%w: decoded image has size %s", ErrDecodeFailed, size)
	}
	return img, nil
}

func (o *Orchestrator) displaySize(natural, requested geometry.Size) geometry.Size {
	if requested.Valid() {
		return requested
	}
	return geometry.Fit(natural, o.opts.MaxDisplay)
}

func (o *Orchestrator) detectObjects(ctx context.Context, calls *sync.WaitGroup, img Image, display geometry.Size) func(*Frame) {
	res, err := invoke(ctx, o.opts.DetectorTimeout, calls, func(ctx context.Context) (ObjectResult, error) {
		return o.objects.DetectObjects(ctx, img, o.opts.MaxResults)
	})

	var slot Slot[model.ObjectDetection]
	if err != nil {
		slot = failedSlot[model.ObjectDetection](res.ModelSize, fmt.Errorf("%w: object detector: %w", ErrDetectionFailed, err))
	} else {
		slot = normalizeObjects(res, display, o.opts.MaxResults)
	}
	if slot.Failed() {
		o.logger.Error("Object detection failed: %v", slot.Err)
	}

	return func(f *Frame) { f.Objects = slot }
}

func (o *Orchestrator) detectFaces(ctx context.Context, calls *sync.WaitGroup, img Image, display geometry.Size) func(*Frame) {
	res, err := invoke(ctx, o.opts.DetectorTimeout, calls, func(ctx context.Context) (FaceResult, error) {
		return o.faces.DetectFaces(ctx, img, o.opts.Face)
	})

	var slot Slot[model.FaceDetection]
	if err != nil {
		slot = failedSlot[model.FaceDetection](res.ModelSize, fmt.Errorf("%w: face detector: %w", ErrDetectionFailed, err))
	} else {
		slot = normalizeFaces(res, display)
	}
	if slot.Failed() {
		o.logger.Error("Face detection failed: %v", slot.Err)
	}

	return func(f *Frame) { f.Faces = slot }
}

// invoke runs call with a per-detector timeout and stops waiting when ctx ends.
// calls is marked done only when call itself returns, so the image outlives it.
func invoke[R any](ctx context.Context, timeout time.Duration, calls *sync.WaitGroup, call func(context.Context) (R, error)) (R, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		res R
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer calls.Done()
		res, err := call(ctx)
		done <- reply{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func normalizeObjects(res ObjectResult, display geometry.Size, maxResults int) Slot[model.ObjectDetection] {
	scale, err := geometry.NewScale(res.ModelSize, display)
	if err != nil {
		return failedSlot[model.ObjectDetection](res.ModelSize, fmt.Errorf("object detector: %w", err))
	}

	raw := res.Detections
	if maxResults > 0 && len(raw) > maxResults {
		raw = raw[:maxResults]
	}

	items := make([]model.ObjectDetection, 0, len(raw))
	for i, d := range raw {
		if err := d.Box.Validate(); err != nil {
			return failedSlot[model.ObjectDetection](res.ModelSize, fmt.Errorf("%w: object detector: detection %d: %w", ErrDetectionFailed, i, err))
		}
		d.Box = scale.Box(d.Box)
		items = append(items, d)
	}
	return readySlot(res.ModelSize, items)
}

func normalizeFaces(res FaceResult, display geometry.Size) Slot[model.FaceDetection] {
	scale, err := geometry.NewScale(res.ModelSize, display)
	if err != nil {
		return failedSlot[model.FaceDetection](res.ModelSize, fmt.Errorf("face detector: %w", err))
	}

	items := make([]model.FaceDetection, 0, len(res.Detections))
	for i, d := range res.Detections {
		if err := d.Box.Validate(); err != nil {
			return failedSlot[model.FaceDetection](res.ModelSize, fmt.Errorf("%w: face detector: detection %d: %w", ErrDetectionFailed, i, err))
		}
		d.Box = scale.FaceBox(d.Box)
		items = append(items, d)
	}
	return readySlot(res.ModelSize, items)
}
