package model

import (
	"time"

	"github.com/google/uuid"
)

type DigestStatus string

const (
	DigestDelivering DigestStatus = "delivering"
	DigestDelivered  DigestStatus = "delivered"
	DigestFailed     DigestStatus = "failed"
	DigestMerged     DigestStatus = "merged"
)

// Digest is the stored delivery state of a RunDigest. A failed digest is
// pending delivery: the next run merges its items into its own digest.
type Digest struct {
	ID           uuid.UUID
	Status       DigestStatus
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	ClaimedAt    *time.Time
	DeliveredAt  *time.Time
	MergedInto   *uuid.UUID
}

type DigestItem struct {
	VideoID     YoutubeVideoID
	ChannelID   YoutubeChannelID
	Title       string
	PublishedAt time.Time
	Summary     string
}

func (i DigestItem) URL() string {
	return i.VideoID.URL()
}

// RunDigest is the payload handed to a DigestDispatcher.
type RunDigest struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Items     []DigestItem
}

func (d RunDigest) Empty() bool {
	return len(d.Items) == 0
}

func NewDigestItem(rec ProcessingRecord) DigestItem {
	return DigestItem{
		VideoID:     rec.VideoID,
		ChannelID:   rec.ChannelID,
		Title:       rec.Title,
		PublishedAt: rec.PublishedAt,
		Summary:     rec.ResultSummary,
	}
}
