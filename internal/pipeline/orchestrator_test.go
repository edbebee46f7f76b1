package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"detectview/internal/geometry"
	"detectview/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestRun_NormalizesBothDetectors(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 640, Height: 480}}
	objects := objectsReturning(ObjectResult{
		ModelSize: geometry.Size{Width: 100, Height: 100},
		Detections: []model.ObjectDetection{
			{Box: geometry.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}, Label: "person", Score: 0.9},
		},
	}, nil)
	faces := facesReturning(FaceResult{
		ModelSize: geometry.Size{Width: 50, Height: 25},
		Detections: []model.FaceDetection{
			{Box: geometry.FaceBoxFromExtents(5, 5, 15, 10), Score: 0.8},
		},
	}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, err := o.Run(context.Background(), []byte("img"), WithDisplaySize(geometry.Size{Width: 200, Height: 100}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if frame.Loading {
		t.Error("Frame should not be loading after Run")
	}
	if frame.Natural != (geometry.Size{Width: 640, Height: 480}) {
		t.Errorf("Unexpected natural size %s", frame.Natural)
	}
	if frame.Objects.Status != StatusReady || frame.Faces.Status != StatusReady {
		t.Fatalf("Expected both slots ready, got objects=%s faces=%s", frame.Objects.Status, frame.Faces.Status)
	}

	wantObjects := []model.ObjectDetection{
		{Box: geometry.BoundingBox{X: 20, Y: 10, Width: 40, Height: 20}, Label: "person", Score: 0.9},
	}
	if diff := cmp.Diff(wantObjects, frame.Objects.Items, approx); diff != "" {
		t.Errorf("Objects mismatch (-want +got):\n%s", diff)
	}

	wantFaces := []model.FaceDetection{
		{Box: geometry.FaceBox{XMin: 20, YMin: 20, XMax: 60, YMax: 40, Width: 40, Height: 20}, Score: 0.8},
	}
	if diff := cmp.Diff(wantFaces, frame.Faces.Items, approx); diff != "" {
		t.Errorf("Faces mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(frame, o.Store().Snapshot(), approx, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("Store snapshot differs from returned frame (-want +got):\n%s", diff)
	}

	waitClosed(t, decoder.images[0].closed, "image release")
}

func TestRun_DefaultDisplayFitsMaxDisplay(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 1280, Height: 720}}
	objects := objectsReturning(ObjectResult{
		ModelSize:  geometry.Size{Width: 1280, Height: 720},
		Detections: []model.ObjectDetection{{Box: geometry.BoundingBox{X: 640, Y: 360, Width: 128, Height: 72}, Label: "car"}},
	}, nil)
	faces := facesReturning(FaceResult{ModelSize: geometry.Size{Width: 300, Height: 300}}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{MaxDisplay: geometry.Size{Width: 640}})
	frame, err := o.Run(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff(geometry.Size{Width: 640, Height: 360}, frame.Display, approx); diff != "" {
		t.Errorf("Display mismatch (-want +got):\n%s", diff)
	}
	want := geometry.BoundingBox{X: 320, Y: 180, Width: 64, Height: 36}
	if diff := cmp.Diff(want, frame.Objects.Items[0].Box, approx); diff != "" {
		t.Errorf("Box mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ObjectFailureKeepsFaces(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 100, Height: 100}}
	objects := objectsReturning(ObjectResult{}, errBoom)
	faces := facesReturning(FaceResult{
		ModelSize:  geometry.Size{Width: 100, Height: 100},
		Detections: []model.FaceDetection{{Box: geometry.FaceBoxFromExtents(1, 2, 3, 4), Score: 0.7}},
	}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, err := o.Run(context.Background(), []byte("img"), WithDisplaySize(geometry.Size{Width: 200, Height: 200}))
	if err != nil {
		t.Fatalf("Detector failures must not fail the run, got %v", err)
	}

	if frame.Objects.Status != StatusFailed {
		t.Errorf("Expected objects failed, got %s", frame.Objects.Status)
	}
	if !errors.Is(frame.Objects.Err, ErrDetectionFailed) || !errors.Is(frame.Objects.Err, errBoom) {
		t.Errorf("Expected objects error wrapping ErrDetectionFailed and the cause, got %v", frame.Objects.Err)
	}
	if frame.Faces.Status != StatusReady || len(frame.Faces.Items) != 1 {
		t.Fatalf("Expected one normalized face, got %s with %d", frame.Faces.Status, len(frame.Faces.Items))
	}
	want := geometry.FaceBox{XMin: 2, YMin: 4, XMax: 6, YMax: 8, Width: 4, Height: 4}
	if diff := cmp.Diff(want, frame.Faces.Items[0].Box, approx); diff != "" {
		t.Errorf("Face mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(frame.Err(), ErrDetectionFailed) {
		t.Errorf("Frame.Err should report the object failure, got %v", frame.Err())
	}
}

func TestRun_InvalidModelSizeFailsOnlyThatDetector(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 100, Height: 100}}
	objects := objectsReturning(ObjectResult{
		ModelSize:  geometry.Size{Width: 100, Height: 100},
		Detections: []model.ObjectDetection{{Box: geometry.BoundingBox{X: 1, Y: 1, Width: 1, Height: 1}, Label: "cup"}},
	}, nil)
	faces := facesReturning(FaceResult{
		ModelSize:  geometry.Size{Width: 0, Height: 50},
		Detections: []model.FaceDetection{{Box: geometry.FaceBoxFromExtents(1, 1, 2, 2)}},
	}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, err := o.Run(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if frame.Faces.Status != StatusFailed || !errors.Is(frame.Faces.Err, geometry.ErrInvalidSize) {
		t.Errorf("Expected faces failed with ErrInvalidSize, got %s: %v", frame.Faces.Status, frame.Faces.Err)
	}
	if len(frame.Faces.Items) != 0 {
		t.Errorf("Failed slot must not carry items, got %d", len(frame.Faces.Items))
	}
	if frame.Objects.Status != StatusReady {
		t.Errorf("Expected objects ready, got %s", frame.Objects.Status)
	}
}

func TestRun_MalformedBoxFailsDetector(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 100, Height: 100}}
	objects := objectsReturning(ObjectResult{
		ModelSize:  geometry.Size{Width: 100, Height: 100},
		Detections: []model.ObjectDetection{{Box: geometry.BoundingBox{X: math.NaN(), Width: 1, Height: 1}}},
	}, nil)
	faces := facesReturning(FaceResult{ModelSize: geometry.Size{Width: 100, Height: 100}}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, _ := o.Run(context.Background(), []byte("img"))

	if !errors.Is(frame.Objects.Err, ErrDetectionFailed) || !errors.Is(frame.Objects.Err, geometry.ErrMalformedBox) {
		t.Errorf("Expected malformed detection failure, got %v", frame.Objects.Err)
	}
	if len(frame.Objects.Items) != 0 {
		t.Errorf("Malformed output must not be published, got %+v", frame.Objects.Items)
	}
}

func TestRun_EmptyIsDistinctFromFailed(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 100, Height: 100}}
	objects := objectsReturning(ObjectResult{ModelSize: geometry.Size{Width: 300, Height: 300}}, nil)
	faces := facesReturning(FaceResult{}, errBoom)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, _ := o.Run(context.Background(), []byte("img"))

	if frame.Objects.Status != StatusEmpty || frame.Objects.Err != nil {
		t.Errorf("Expected objects empty without error, got %s: %v", frame.Objects.Status, frame.Objects.Err)
	}
	if frame.Objects.Items == nil {
		t.Error("Empty slot should hold an empty, non-nil list")
	}
	if frame.Faces.Status != StatusFailed {
		t.Errorf("Expected faces failed, got %s", frame.Faces.Status)
	}
}

func TestRun_DecodeFailureRunsNoDetector(t *testing.T) {
	decoder := &fakeDecoder{err: errors.New("not an image")}
	objects := objectsReturning(ObjectResult{}, nil)
	faces := facesReturning(FaceResult{}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, err := o.Run(context.Background(), []byte("garbage"))

	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Expected ErrDecodeFailed, got %v", err)
	}
	if objects.calls.Load() != 0 || faces.calls.Load() != 0 {
		t.Errorf("Detectors must not run after a decode failure (objects=%d faces=%d)", objects.calls.Load(), faces.calls.Load())
	}

	snap := o.Store().Snapshot()
	if snap.RunID != frame.RunID || snap.Loading {
		t.Errorf("Store should hold the finished failed run, got %+v", snap)
	}
	if !errors.Is(snap.DecodeErr, ErrDecodeFailed) {
		t.Errorf("Expected DecodeErr in store, got %v", snap.DecodeErr)
	}
	if !snap.Objects.Failed() || !snap.Faces.Failed() {
		t.Error("Both slots should be marked failed")
	}
}

func TestRun_EmptyInputIsDecodeFailure(t *testing.T) {
	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	o := newTestOrchestrator(decoder, objectsReturning(ObjectResult{}, nil), facesReturning(FaceResult{}, nil), Options{})

	if _, err := o.Run(context.Background(), nil); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Expected ErrDecodeFailed, got %v", err)
	}
}

func TestRun_DetectorsRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	bothStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(bothStarted)
	}()

	// each detector only succeeds if the other one is in flight at the same time
	waitForPeer := func(ctx context.Context) error {
		started.Done()
		select {
		case <-bothStarted:
			return nil
		case <-time.After(time.Second):
			return errors.New("peer detector never started")
		}
	}

	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	objects := &fakeObjects{fn: func(ctx context.Context, _ Image, _ int) (ObjectResult, error) {
		return ObjectResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, waitForPeer(ctx)
	}}
	faces := &fakeFaces{fn: func(ctx context.Context, _ Image, _ FaceOptions) (FaceResult, error) {
		return FaceResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, waitForPeer(ctx)
	}}

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, err := o.Run(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if frame.Objects.Failed() || frame.Faces.Failed() {
		t.Fatalf("Detectors were serialized: objects=%v faces=%v", frame.Objects.Err, frame.Faces.Err)
	}
}

func TestRun_PublishesIncrementally(t *testing.T) {
	releaseFaces := make(chan struct{})
	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	objects := objectsReturning(ObjectResult{
		ModelSize:  geometry.Size{Width: 10, Height: 10},
		Detections: []model.ObjectDetection{{Box: geometry.BoundingBox{Width: 1, Height: 1}, Label: "dog"}},
	}, nil)
	faces := &fakeFaces{fn: func(ctx context.Context, _ Image, _ FaceOptions) (FaceResult, error) {
		<-releaseFaces
		return FaceResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, nil
	}}

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	rec := recordFrames(o.Store())

	done := make(chan Frame, 1)
	go func() {
		frame, _ := o.Run(context.Background(), []byte("img"))
		done <- frame
	}()

	partial := rec.next(t, func(f Frame) bool { return f.Objects.Done() })
	if partial.Faces.Done() {
		t.Error("Faces should still be pending when objects are published")
	}
	if !partial.Loading {
		t.Error("Frame should still be loading while a detector is pending")
	}
	if len(partial.Objects.Items) != 1 || partial.Objects.Items[0].Label != "dog" {
		t.Errorf("Expected the object result to be visible early, got %+v", partial.Objects.Items)
	}

	close(releaseFaces)
	final := <-done
	if final.Loading || final.Faces.Status != StatusEmpty {
		t.Errorf("Expected finished frame with empty faces, got loading=%v faces=%s", final.Loading, final.Faces.Status)
	}
}

func TestRun_SupersededRunNeverReachesStore(t *testing.T) {
	release := make(chan struct{})
	var r1Started sync.WaitGroup
	r1Started.Add(2)

	labelFor := func(img Image) string { return string(img.Bytes()) }

	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	objects := &fakeObjects{fn: func(ctx context.Context, img Image, _ int) (ObjectResult, error) {
		if labelFor(img) == "r1" {
			r1Started.Done()
			<-release // ignores ctx to act like a slow model
		}
		return ObjectResult{
			ModelSize:  geometry.Size{Width: 10, Height: 10},
			Detections: []model.ObjectDetection{{Box: geometry.BoundingBox{Width: 1, Height: 1}, Label: labelFor(img)}},
		}, nil
	}}
	faces := &fakeFaces{fn: func(ctx context.Context, img Image, _ FaceOptions) (FaceResult, error) {
		if labelFor(img) == "r1" {
			r1Started.Done()
			<-release
		}
		return FaceResult{
			ModelSize:  geometry.Size{Width: 10, Height: 10},
			Detections: []model.FaceDetection{{Box: geometry.FaceBoxFromExtents(0, 0, 1, 1)}},
		}, nil
	}}

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	rec := recordFrames(o.Store())

	r1Done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), []byte("r1"))
		r1Done <- err
	}()
	r1Started.Wait()

	frame2, err := o.Run(context.Background(), []byte("r2"))
	if err != nil {
		t.Fatalf("R2 failed: %v", err)
	}

	if err := <-r1Done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Expected R1 to report ErrSuperseded, got %v", err)
	}
	close(release)
	for _, img := range decoder.images {
		waitClosed(t, img.closed, "image release")
	}

	snap := o.Store().Snapshot()
	if snap.RunID != frame2.RunID {
		t.Fatalf("Store should hold R2, got run %s", snap.RunID)
	}
	if len(snap.Objects.Items) != 1 || snap.Objects.Items[0].Label != "r2" {
		t.Errorf("Store objects must come from R2 only, got %+v", snap.Objects.Items)
	}

	// once R2 was published, listeners must never see R1 again
	seenR2 := false
	for {
		select {
		case f := <-rec.frames:
			if f.RunID == frame2.RunID {
				seenR2 = true
			} else if seenR2 {
				t.Fatalf("Listener saw run %s after R2 began", f.RunID)
			}
			continue
		default:
		}
		break
	}
	if !seenR2 {
		t.Error("Listener never saw R2")
	}
}

func TestRun_DetectorTimeout(t *testing.T) {
	release := make(chan struct{})
	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	objects := objectsReturning(ObjectResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, nil)
	faces := &fakeFaces{fn: func(ctx context.Context, _ Image, _ FaceOptions) (FaceResult, error) {
		<-release
		return FaceResult{}, nil
	}}

	o := newTestOrchestrator(decoder, objects, faces, Options{DetectorTimeout: 20 * time.Millisecond})
	frame, err := o.Run(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !errors.Is(frame.Faces.Err, ErrDetectionFailed) || !errors.Is(frame.Faces.Err, context.DeadlineExceeded) {
		t.Errorf("Expected timed-out face detection, got %v", frame.Faces.Err)
	}
	if frame.Objects.Status != StatusEmpty {
		t.Errorf("Expected objects unaffected, got %s", frame.Objects.Status)
	}

	img := decoder.images[0]
	select {
	case <-img.closed:
		t.Fatal("Image released while the face detector was still using it")
	default:
	}
	close(release)
	waitClosed(t, img.closed, "image release")
}

func TestRun_PreservesOrderAndCapsResults(t *testing.T) {
	var raw []model.ObjectDetection
	for i := 0; i < 8; i++ {
		raw = append(raw, model.ObjectDetection{
			Box:   geometry.BoundingBox{X: float64(i), Width: 1, Height: 1},
			Label: string(rune('a' + i)),
			Score: float64(i) / 10,
		})
	}

	var gotMax int
	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	objects := &fakeObjects{fn: func(_ context.Context, _ Image, maxResults int) (ObjectResult, error) {
		gotMax = maxResults
		return ObjectResult{ModelSize: geometry.Size{Width: 10, Height: 10}, Detections: raw}, nil
	}}
	faces := facesReturning(FaceResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, nil)

	o := newTestOrchestrator(decoder, objects, faces, Options{})
	frame, _ := o.Run(context.Background(), []byte("img"))

	if gotMax != DefaultMaxResults {
		t.Errorf("Expected maxResults %d passed to detector, got %d", DefaultMaxResults, gotMax)
	}
	if len(frame.Objects.Items) != DefaultMaxResults {
		t.Fatalf("Expected %d objects, got %d", DefaultMaxResults, len(frame.Objects.Items))
	}
	for i, d := range frame.Objects.Items {
		if d.Label != raw[i].Label {
			t.Errorf("Position %d: expected %s, got %s", i, raw[i].Label, d.Label)
		}
	}
}

func TestRun_PassesFaceOptions(t *testing.T) {
	var got FaceOptions
	decoder := &fakeDecoder{size: geometry.Size{Width: 10, Height: 10}}
	faces := &fakeFaces{fn: func(_ context.Context, _ Image, opts FaceOptions) (FaceResult, error) {
		got = opts
		return FaceResult{ModelSize: geometry.Size{Width: 10, Height: 10}}, nil
	}}

	o := newTestOrchestrator(decoder, objectsReturning(ObjectResult{ModelSize: geometry.Size{Width: 1, Height: 1}}, nil), faces,
		Options{Face: FaceOptions{FlipHorizontal: true}})
	o.Run(context.Background(), []byte("img"))

	if !got.FlipHorizontal {
		t.Error("Expected FlipHorizontal to reach the face detector")
	}
}
