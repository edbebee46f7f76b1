package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/model"
	"detectview/internal/pipeline"
)

// Client runs both detectors on an external inference service. Each endpoint takes the
// encoded image as a multipart "file" field and reports boxes in the model's input space.
type Client struct {
	inferenceURL string
	httpClient   *http.Client
	logger       *logger.Logger
}

func NewClient(inferenceURL string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		inferenceURL: inferenceURL,
		httpClient:   httpClient,
		logger:       logger,
	}
}

type objectResponse struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Detections []struct {
		Label  string  `json:"label"`
		Score  float64 `json:"score"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"detections"`
}

type faceResponse struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Detections []struct {
		Score float64 `json:"score"`
		XMin  float64 `json:"x_min"`
		YMin  float64 `json:"y_min"`
		XMax  float64 `json:"x_max"`
		YMax  float64 `json:"y_max"`
	} `json:"detections"`
}

// DetectObjects posts img to /objects.
func (c *Client) DetectObjects(ctx context.Context, img pipeline.Image, maxResults int) (pipeline.ObjectResult, error) {
	query := url.Values{}
	if maxResults > 0 {
		query.Set("max_results", strconv.Itoa(maxResults))
	}

	var resp objectResponse
	if err := c.predict(ctx, "/objects", query, img.Bytes(), &resp); err != nil {
		return pipeline.ObjectResult{}, err
	}

	res := pipeline.ObjectResult{
		ModelSize:  geometry.Size{Width: resp.Width, Height: resp.Height},
		Detections: make([]model.ObjectDetection, 0, len(resp.Detections)),
	}
	for _, d := range resp.Detections {
		res.Detections = append(res.Detections, model.ObjectDetection{
			Box:   geometry.BoundingBox{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
			Label: d.Label,
			Score: d.Score,
		})
	}
	return res, nil
}

// DetectFaces posts img to /faces.
func (c *Client) DetectFaces(ctx context.Context, img pipeline.Image, opts pipeline.FaceOptions) (pipeline.FaceResult, error) {
	query := url.Values{}
	query.Set("flip_horizontal", strconv.FormatBool(opts.FlipHorizontal))

	var resp faceResponse
	if err := c.predict(ctx, "/faces", query, img.Bytes(), &resp); err != nil {
		return pipeline.FaceResult{}, err
	}

	res := pipeline.FaceResult{
		ModelSize:  geometry.Size{Width: resp.Width, Height: resp.Height},
		Detections: make([]model.FaceDetection, 0, len(resp.Detections)),
	}
	for _, d := range resp.Detections {
		res.Detections = append(res.Detections, model.FaceDetection{
			Box:   geometry.FaceBoxFromExtents(d.XMin, d.YMin, d.XMax, d.YMax),
			Score: d.Score,
		})
	}
	return res, nil
}

func (c *Client) predict(ctx context.Context, path string, query url.Values, imageData []byte, out interface{}) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	target := c.inferenceURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference %s failed with status: %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckHealth reports whether the inference service is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.inferenceURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warning("Inference service unhealthy: %d", resp.StatusCode)
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
