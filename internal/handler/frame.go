package handler

import (
	"net/http"

	"detectview/internal/dto"
	"detectview/internal/logger"
	"detectview/internal/pipeline"
)

// FrameHandler returns the store's current frame.
func FrameHandler(store *pipeline.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		respondJSON(w, logger, dto.NewFrameData(store.Snapshot()), http.StatusOK)
	}
}
