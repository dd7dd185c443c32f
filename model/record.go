package model

import (
	"time"

	"github.com/google/uuid"
)

type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusSucceeded  RecordStatus = "succeeded"
	StatusFailed     RecordStatus = "failed"
)

// ReasonInterrupted is recorded on records that were found stuck in
// processing after a crashed or cancelled run.
const ReasonInterrupted = "interrupted"

var allowedTransitions = map[RecordStatus]map[RecordStatus]bool{
	StatusPending: {
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusSucceeded: true,
		StatusFailed:    true,
	},
	StatusFailed: {
		StatusProcessing: true,
	},
	StatusSucceeded: {},
}

func IsKnownStatus(status RecordStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to RecordStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

type ProcessingRecord struct {
	VideoID         YoutubeVideoID
	ChannelID       YoutubeChannelID
	Title           string
	PublishedAt     time.Time
	Status          RecordStatus
	AttemptCount    int
	LastAttemptedAt *time.Time
	LastError       string
	ResultSummary   string
	DigestID        *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r ProcessingRecord) Ref() VideoRef {
	return VideoRef{
		ID:          r.VideoID,
		ChannelID:   r.ChannelID,
		PublishedAt: r.PublishedAt,
		Title:       r.Title,
	}
}

// Exhausted reports whether a failed record reached the attempt cap and must
// not be retried automatically anymore.
func (r ProcessingRecord) Exhausted(maxAttempts int) bool {
	return r.Status == StatusFailed && r.AttemptCount >= maxAttempts
}
