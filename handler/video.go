package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
)

type VideoAPI struct {
	videoRepo storage.VideoRepository
	logger    *slog.Logger
}

func NewVideoAPI(videoRepo storage.VideoRepository, logger *slog.Logger) *VideoAPI {
	return &VideoAPI{
		videoRepo: videoRepo,
		logger:    logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && videoID == "":
		v.List(w, r)
	case r.Method == http.MethodGet:
		v.Get(w, r, model.YoutubeVideoID(videoID))
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, videoID))
	}
}

type respVideo struct {
	YoutubeID     string     `json:"youtube_id"`
	YoutubeURL    string     `json:"youtube_url"`
	ChannelID     string     `json:"channel_id"`
	Title         string     `json:"title"`
	PublishedAt   time.Time  `json:"published_at"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttempted *time.Time `json:"last_attempted_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	DigestID      string     `json:"digest_id,omitempty"`
}

func newRespVideo(rec model.ProcessingRecord) respVideo {
	resp := respVideo{
		YoutubeID:     string(rec.VideoID),
		YoutubeURL:    rec.VideoID.URL(),
		ChannelID:     string(rec.ChannelID),
		Title:         rec.Title,
		PublishedAt:   rec.PublishedAt,
		Status:        string(rec.Status),
		AttemptCount:  rec.AttemptCount,
		LastAttempted: rec.LastAttemptedAt,
		LastError:     rec.LastError,
		Summary:       rec.ResultSummary,
	}
	if rec.DigestID != nil {
		resp.DigestID = rec.DigestID.String()
	}
	return resp
}

// List returns the records with the statuses given in the status query
// parameter, or all records when there is none.
func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	statuses := []model.RecordStatus{}
	for _, s := range r.URL.Query()["status"] {
		status := model.RecordStatus(s)
		if !model.IsKnownStatus(status) {
			Error(w, http.StatusBadRequest, "invalid status", fmt.Errorf("unknown status %q", s))
			return
		}
		statuses = append(statuses, status)
	}

	records, err := v.videoRepo.FindByStatus(r.Context(), statuses...)
	if err != nil {
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list videos", err)
		return
	}

	resp := make([]respVideo, 0, len(records))
	for _, rec := range records {
		resp = append(resp, newRespVideo(rec))
	}

	JSON(w, http.StatusOK, resp)
}

func (v *VideoAPI) Get(w http.ResponseWriter, r *http.Request, videoID model.YoutubeVideoID) {
	rec, err := v.videoRepo.Get(r.Context(), videoID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		Error(w, http.StatusNotFound, "video not found", err)
		return
	case err != nil:
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not get video", err)
		return
	}

	JSON(w, http.StatusOK, newRespVideo(rec))
}

func (v *VideoAPI) returnErr(_ context.Context, w http.ResponseWriter, status int, message string, err error, details ...any) {
	v.logger.Error(message, slog.String("err", err.Error()), slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}
