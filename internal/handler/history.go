package handler

import (
	"net/http"
	"strconv"

	"detectview/internal/config"
	"detectview/internal/dto"
	"detectview/internal/logger"
	"detectview/internal/model"
	"detectview/internal/repository"
)

// maxHistoryLimit caps a single history page.
const maxHistoryLimit = 500

// HistoryHandler returns journaled frames, newest first, optionally filtered by label.
func HistoryHandler(cfg *config.Config, logger *logger.Logger,
	frameRepo repository.FrameRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), cfg.HistoryLimit)
		if limit <= 0 {
			limit = 50
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil || offset < 0 {
			offset = 0
		}

		if frameRepo == nil {
			// journal disabled
			respondJSON(w, logger, dto.HistoryData{Frames: []dto.HistoryFrame{}, Labels: []string{}, Limit: limit, Offset: offset}, http.StatusOK)
			return
		}

		filter := &model.FrameFilter{
			Label:  q.Get("label"),
			Limit:  limit,
			Offset: offset,
		}

		frames, err := frameRepo.GetRecent(filter)
		if err != nil {
			logger.Error("Error querying frames from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := frameRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting frames: %v", err)
			totalCount = len(frames)
		}

		labels := []string{}
		if detectionRepo != nil {
			if all, err := detectionRepo.GetAllLabels(); err != nil {
				logger.Error("Error getting labels: %v", err)
			} else if all != nil {
				labels = all
			}
		}

		data := dto.HistoryData{
			Frames: make([]dto.HistoryFrame, 0, len(frames)),
			Labels: labels,
			Total:  totalCount,
			Limit:  limit,
			Offset: offset,
		}
		for _, f := range frames {
			data.Frames = append(data.Frames, dto.NewHistoryFrame(f))
		}

		respondJSON(w, logger, data, http.StatusOK)
	}
}

// ClearHistoryHandler removes every journaled frame.
func ClearHistoryHandler(logger *logger.Logger, frameRepo repository.FrameRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if frameRepo == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := frameRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing frame journal: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		logger.Info("Frame journal cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}
