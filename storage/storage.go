package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go-mod.ewintr.nl/ytdigest/model"
)

// VideoRepository is the seen video store. MarkProcessing is the only way a
// run gains the right to process a video.
type VideoRepository interface {
	Get(ctx context.Context, videoID model.YoutubeVideoID) (model.ProcessingRecord, error)
	CreatePending(ctx context.Context, video model.VideoRef, now time.Time) (model.ProcessingRecord, error)
	MarkProcessing(ctx context.Context, videoID model.YoutubeVideoID, maxAttempts int, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, videoID model.YoutubeVideoID, summary string, now time.Time) error
	MarkFailed(ctx context.Context, videoID model.YoutubeVideoID, reason string, now time.Time) error
	FindByStatus(ctx context.Context, statuses ...model.RecordStatus) ([]model.ProcessingRecord, error)
	FindRetryable(ctx context.Context, maxAttempts int) ([]model.ProcessingRecord, error)
	ResetStale(ctx context.Context, cutoff, now time.Time) (int, error)
}

type ChannelStateRepository interface {
	HighWaterMark(ctx context.Context, channelID model.YoutubeChannelID) (time.Time, bool, error)
	AdvanceHighWaterMark(ctx context.Context, channelID model.YoutubeChannelID, mark, now time.Time) error
}

type DigestClaim struct {
	ID           uuid.UUID
	VideoIDs     []model.YoutubeVideoID
	OrphanCutoff time.Time
	Now          time.Time
}

type DigestRepository interface {
	ClaimDigest(ctx context.Context, claim DigestClaim) (model.RunDigest, error)
	MarkDigestDelivered(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkDigestFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	FindDigest(ctx context.Context, id uuid.UUID) (model.Digest, error)
	ResetStaleDigests(ctx context.Context, cutoff, now time.Time) (int, error)
}

type Store interface {
	VideoRepository
	ChannelStateRepository
	DigestRepository
}

type VideoVecRepository interface {
	Save(ctx context.Context, record model.ProcessingRecord) error
}
