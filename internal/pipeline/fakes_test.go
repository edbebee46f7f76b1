package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"detectview/internal/geometry"
	"detectview/internal/logger"
)

// fakeImage records when the orchestrator releases it.
type fakeImage struct {
	size   geometry.Size
	data   []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeImage(size geometry.Size, data []byte) *fakeImage {
	return &fakeImage{size: size, data: data, closed: make(chan struct{})}
}

func (i *fakeImage) Size() geometry.Size { return i.size }
func (i *fakeImage) Bytes() []byte       { return i.data }
func (i *fakeImage) Close() error {
	i.once.Do(func() { close(i.closed) })
	return nil
}

// fakeDecoder decodes every input to an image of a fixed size.
type fakeDecoder struct {
	size   geometry.Size
	err    error
	mu     sync.Mutex
	images []*fakeImage
}

func (d *fakeDecoder) Decode(ctx context.Context, data []byte) (Image, error) {
	if d.err != nil {
		return nil, d.err
	}
	img := newFakeImage(d.size, data)
	d.mu.Lock()
	d.images = append(d.images, img)
	d.mu.Unlock()
	return img, nil
}

type objectFunc func(ctx context.Context, img Image, maxResults int) (ObjectResult, error)

type fakeObjects struct {
	fn    objectFunc
	calls atomic.Int32
}

func (f *fakeObjects) DetectObjects(ctx context.Context, img Image, maxResults int) (ObjectResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, img, maxResults)
}

type faceFunc func(ctx context.Context, img Image, opts FaceOptions) (FaceResult, error)

type fakeFaces struct {
	fn    faceFunc
	calls atomic.Int32
}

func (f *fakeFaces) DetectFaces(ctx context.Context, img Image, opts FaceOptions) (FaceResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, img, opts)
}

func objectsReturning(res ObjectResult, err error) *fakeObjects {
	return &fakeObjects{fn: func(context.Context, Image, int) (ObjectResult, error) { return res, err }}
}

func facesReturning(res FaceResult, err error) *fakeFaces {
	return &fakeFaces{fn: func(context.Context, Image, FaceOptions) (FaceResult, error) { return res, err }}
}

func newTestOrchestrator(decoder Decoder, objects ObjectDetector, faces FaceDetector, opts Options) *Orchestrator {
	return NewOrchestrator(decoder, objects, faces, NewStore(), logger.NewWriterLogger(io.Discard), opts)
}

// frameRecorder collects every frame a store publishes.
type frameRecorder struct {
	frames chan Frame
}

func recordFrames(s *Store) *frameRecorder {
	r := &frameRecorder{frames: make(chan Frame, 64)}
	s.Subscribe(func(f Frame) { r.frames <- f })
	return r
}

// next waits for the first published frame matching match.
func (r *frameRecorder) next(t *testing.T, match func(Frame) bool) Frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-r.frames:
			if match(f) {
				return f
			}
		case <-timeout:
			t.Fatal("Timed out waiting for a matching frame")
			return Frame{}
		}
	}
}

var errBoom = errors.New("boom")

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
}
