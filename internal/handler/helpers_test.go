package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"detectview/internal/config"
	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/model"
	"detectview/internal/pipeline"
)

var testLogger = logger.NewWriterLogger(io.Discard)

type testImage struct {
	data []byte
}

func (i testImage) Size() geometry.Size { return geometry.Size{Width: 600, Height: 400} }
func (i testImage) Bytes() []byte       { return i.data }
func (i testImage) Close() error        { return nil }

// testDecoder accepts anything except the literal "garbage".
type testDecoder struct{}

func (testDecoder) Decode(_ context.Context, data []byte) (pipeline.Image, error) {
	if string(data) == "garbage" {
		return nil, errors.New("unsupported image format")
	}
	return testImage{data: data}, nil
}

type testObjects struct{}

func (testObjects) DetectObjects(context.Context, pipeline.Image, int) (pipeline.ObjectResult, error) {
	return pipeline.ObjectResult{
		ModelSize: geometry.Size{Width: 300, Height: 300},
		Detections: []model.ObjectDetection{
			{Label: "person", Score: 0.9, Box: geometry.BoundingBox{X: 30, Y: 30, Width: 150, Height: 150}},
		},
	}, nil
}

type testFaces struct{}

func (testFaces) DetectFaces(context.Context, pipeline.Image, pipeline.FaceOptions) (pipeline.FaceResult, error) {
	return pipeline.FaceResult{ModelSize: geometry.Size{Width: 128, Height: 128}}, nil
}

func newTestOrchestrator() *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(testDecoder{}, testObjects{}, testFaces{}, pipeline.NewStore(), testLogger, pipeline.Options{})
}

func testConfig() *config.Config {
	return &config.Config{MaxUploadMB: 1, HistoryLimit: 2}
}

// multipartRequest builds a POST with a "file" field and extra form fields.
func multipartRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if file != nil {
		part, err := writer.CreateFormFile("file", "image.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, path, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
