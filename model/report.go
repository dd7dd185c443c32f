package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = "none"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

type VideoOutcome string

const (
	OutcomeSucceeded      VideoOutcome = "succeeded"
	OutcomeFailed         VideoOutcome = "failed"
	OutcomeSkippedSeen    VideoOutcome = "skipped_seen"
	OutcomeSkippedClaimed VideoOutcome = "skipped_claimed"
	OutcomeExhausted      VideoOutcome = "exhausted"
	OutcomeRejected       VideoOutcome = "rejected"
)

type VideoResult struct {
	VideoID   YoutubeVideoID   `json:"video_id"`
	ChannelID YoutubeChannelID `json:"channel_id"`
	Outcome   VideoOutcome     `json:"outcome"`
	Attempts  int              `json:"attempts,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

type RunReport struct {
	RunID            uuid.UUID      `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Channels         int            `json:"channels"`
	ChannelsNotFound []string       `json:"channels_not_found,omitempty"`
	Discovered       int            `json:"discovered"`
	Rejected         int            `json:"rejected"`
	SkippedSeen      int            `json:"skipped_seen"`
	SkippedClaimed   int            `json:"skipped_claimed"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	Exhausted        int            `json:"exhausted"`
	Recovered        int            `json:"recovered"`
	Delivery         DeliveryStatus `json:"delivery"`
	DigestID         *uuid.UUID     `json:"digest_id,omitempty"`
	DigestItems      int            `json:"digest_items"`
	DeliveryError    string         `json:"delivery_error,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Videos           []VideoResult  `json:"videos"`
}

func (r *RunReport) Add(res VideoResult) {
	r.Videos = append(r.Videos, res)
	switch res.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkippedSeen:
		r.SkippedSeen++
	case OutcomeSkippedClaimed:
		r.SkippedClaimed++
	case OutcomeExhausted:
		r.Exhausted++
	case OutcomeRejected:
		r.Rejected++
	}
}
