package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/service"
)

// ExtractionService is the pipeline surface the handler needs.
type ExtractionService interface {
	Extract(ctx context.Context, pageURL string) (*domain.Extraction, error)
	Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error)
	Retrieve(ctx context.Context, id domain.ExtractionID, index int) (*service.Media, error)
	Delete(ctx context.Context, id domain.ExtractionID) error
}

// ExtractionHandler handles extraction and download requests.
type ExtractionHandler struct {
	svc            ExtractionService
	logger         *slog.Logger
	extractTimeout time.Duration
}

// NewExtractionHandler creates a new extraction handler.
func NewExtractionHandler(svc ExtractionService, logger *slog.Logger) *ExtractionHandler {
	return &ExtractionHandler{
		svc:    svc,
		logger: logger,
	}
}

// SetExtractTimeout bounds a single extraction. Zero leaves it bounded only by
// the client connection.
func (h *ExtractionHandler) SetExtractTimeout(d time.Duration) {
	h.extractTimeout = d
}

// FetchRequest is the JSON request body for an extraction.
type FetchRequest struct {
	URL string `json:"url"`
}

// QualityResponse is one downloadable quality as shown to clients.
type QualityResponse struct {
	Quality string `json:"quality"`
	Size    string `json:"size"`
	Type    string `json:"type"`
	IsHLS   bool   `json:"is_hls"`
	Index   int    `json:"index"`
}

// FetchResponse is the JSON response after a successful extraction.
type FetchResponse struct {
	VideoID   string            `json:"video_id"`
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail"`
	Qualities []QualityResponse `json:"qualities"`
}

// VideoResponse is the stored view of an extraction.
type VideoResponse struct {
	VideoID   string            `json:"video_id"`
	SourceURL string            `json:"source_url"`
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail"`
	Qualities []QualityResponse `json:"qualities"`
	CreatedAt time.Time         `json:"created_at"`
}

// FetchVideo handles POST /api/fetch-video.
func (h *ExtractionHandler) FetchVideo(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if h.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.extractTimeout)
		defer cancel()
	}

	record, err := h.svc.Extract(ctx, req.URL)
	if err != nil {
		switch {
		// The pipeline reports a cancelled render as a RenderError, so the
		// deadline is checked on the context rather than the error chain.
		case errors.Is(err, context.DeadlineExceeded),
			errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil:
			h.logger.Warn("extraction timed out", "url", req.URL, "timeout", h.extractTimeout)
			h.writeError(w, http.StatusGatewayTimeout, "extraction timed out")
		case errors.Is(err, domain.ErrNoURLProvided):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNoCandidates), errors.Is(err, domain.ErrNoValidCandidates):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrRenderFailed):
			h.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			h.logger.Error("extraction failed", "url", req.URL, "error", err)
			h.writeError(w, http.StatusInternalServerError, "extraction failed")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, FetchResponse{
		VideoID:   record.ID.String(),
		Title:     record.Title,
		Thumbnail: record.Thumbnail,
		Qualities: qualityResponses(record.Qualities),
	})
}

// GetVideo handles GET /api/videos/{videoID}.
func (h *ExtractionHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if videoID == "" {
		h.writeError(w, http.StatusBadRequest, "missing video ID")
		return
	}

	record, err := h.svc.Get(r.Context(), domain.ExtractionID(videoID))
	if err != nil {
		if errors.Is(err, domain.ErrExtractionNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("get extraction failed", "video_id", videoID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get video")
		return
	}

	h.writeJSON(w, http.StatusOK, VideoResponse{
		VideoID:   record.ID.String(),
		SourceURL: record.SourceURL,
		Title:     record.Title,
		Thumbnail: record.Thumbnail,
		Qualities: qualityResponses(record.Qualities),
		CreatedAt: record.CreatedAt,
	})
}

// DeleteVideo handles DELETE /api/videos/{videoID}.
func (h *ExtractionHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if videoID == "" {
		h.writeError(w, http.StatusBadRequest, "missing video ID")
		return
	}

	if err := h.svc.Delete(r.Context(), domain.ExtractionID(videoID)); err != nil {
		if errors.Is(err, domain.ErrExtractionNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("delete extraction failed", "video_id", videoID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /api/download/{videoID}/{index}, streaming the media
// body to the client.
func (h *ExtractionHandler) Download(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrBadIndex.Error())
		return
	}

	media, err := h.svc.Retrieve(r.Context(), domain.ExtractionID(videoID), index)
	if err != nil {
		var streamErr *domain.StreamUnsupportedError
		switch {
		case errors.As(err, &streamErr):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": streamErr.Error(),
				"url":   streamErr.URL,
			})
		case errors.Is(err, domain.ErrExtractionNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrBadIndex):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrFetchFailed):
			h.writeError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Error("retrieve failed", "video_id", videoID, "index", index, "error", err)
			h.writeError(w, http.StatusInternalServerError, "download failed")
		}
		return
	}
	defer media.Body.Close()

	w.Header().Set("Content-Type", media.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", media.Filename))
	if media.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(media.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, media.Body)
	if err != nil {
		// Headers are already sent; all we can do is stop and log.
		h.logger.Warn("download interrupted",
			"video_id", videoID,
			"quality", media.Quality.Label,
			"written", written,
			"error", err,
		)
		return
	}

	h.logger.Info("download served", "video_id", videoID, "quality", media.Quality.Label, "bytes", written)
}

func qualityResponses(qualities []domain.Quality) []QualityResponse {
	out := make([]QualityResponse, 0, len(qualities))
	for i, q := range qualities {
		out = append(out, QualityResponse{
			Quality: q.Label,
			Size:    q.SizeLabel(),
			Type:    q.Type(),
			IsHLS:   q.IsStream,
			Index:   i,
		})
	}
	return out
}

func (h *ExtractionHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ExtractionHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
