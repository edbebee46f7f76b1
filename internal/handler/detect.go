package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"detectview/internal/config"
	"detectview/internal/dto"
	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/pipeline"
)

// AnnotateFunc draws overlays onto an encoded image rendered at display size.
type AnnotateFunc func(img []byte, display geometry.Size, overlays []pipeline.Overlay) ([]byte, error)

// DetectHandler runs one detection pass over an uploaded "file" and writes the resulting frame.
//
// Optional form fields display_width and display_height set the render size. With
// annotate=true the response is the image with the boxes drawn on it instead of JSON.
func DetectHandler(orch *pipeline.Orchestrator, annotate AnnotateFunc, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	maxUpload := int64(cfg.MaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			respondError(w, logger, "Failed to parse form", http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, logger, "No file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()

		imageData, err := io.ReadAll(file)
		if err != nil {
			respondError(w, logger, "Failed to read file", http.StatusInternalServerError)
			return
		}

		var opts []pipeline.RunOption
		display, err := parseDisplaySize(r.FormValue("display_width"), r.FormValue("display_height"))
		if err != nil {
			respondError(w, logger, err.Error(), http.StatusBadRequest)
			return
		}
		if display.Valid() {
			opts = append(opts, pipeline.WithDisplaySize(display))
		}

		wantAnnotated := r.FormValue("annotate") == "true"
		if wantAnnotated && annotate == nil {
			respondError(w, logger, "Annotation is not available", http.StatusBadRequest)
			return
		}

		frame, err := orch.Run(r.Context(), imageData, opts...)
		switch {
		case errors.Is(err, pipeline.ErrDecodeFailed):
			respondJSON(w, logger, dto.NewFrameData(frame), http.StatusUnprocessableEntity)
			return
		case errors.Is(err, pipeline.ErrSuperseded):
			respondJSON(w, logger, dto.NewFrameData(frame), http.StatusConflict)
			return
		case err != nil:
			logger.Error("Detection run failed: %v", err)
			respondError(w, logger, "Detection failed", http.StatusInternalServerError)
			return
		}

		if !wantAnnotated {
			respondJSON(w, logger, dto.NewFrameData(frame), http.StatusOK)
			return
		}

		annotated, err := annotate(imageData, frame.Display, frame.Overlays())
		if err != nil {
			logger.Error("Error annotating image: %v", err)
			respondError(w, logger, "Failed to annotate image", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Run-Id", frame.RunID.String())
		w.Write(annotated)
	}
}

// parseDisplaySize reads an optional display size. Both fields must be given together.
func parseDisplaySize(width, height string) (geometry.Size, error) {
	if width == "" && height == "" {
		return geometry.Size{}, nil
	}
	if width == "" || height == "" {
		return geometry.Size{}, fmt.Errorf("display_width and display_height must be set together")
	}

	w, errW := strconv.ParseFloat(width, 64)
	h, errH := strconv.ParseFloat(height, 64)
	size := geometry.Size{Width: w, Height: h}
	if errW != nil || errH != nil || !size.Valid() {
		return geometry.Size{}, fmt.Errorf("invalid display size %sx%s", width, height)
	}
	return size, nil
}
