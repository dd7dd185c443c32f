package model

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type ChannelSourceError struct {
	Err error
}

func (e *ChannelSourceError) Error() string {
	return fmt.Sprintf("channel source unavailable: %v", e.Err)
}

func (e *ChannelSourceError) Unwrap() error { return e.Err }

type VideoSourceError struct {
	ChannelID YoutubeChannelID
	Err       error
}

func (e *VideoSourceError) Error() string {
	return fmt.Sprintf("could not list videos for channel %s: %v", e.ChannelID, e.Err)
}

func (e *VideoSourceError) Unwrap() error { return e.Err }

type ProcessingError struct {
	VideoID YoutubeVideoID
	Reason  string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not process video %s: %s", e.VideoID, e.Reason)
	}
	return fmt.Sprintf("could not process video %s: %s: %v", e.VideoID, e.Reason, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("could not deliver digest: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DuplicateKeyError and InvalidTransitionError signal that a video is already
// being handled or was handled before. They never abort a run.
type DuplicateKeyError struct {
	VideoID YoutubeVideoID
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("record for video %s already exists", e.VideoID)
}

type InvalidTransitionError struct {
	VideoID YoutubeVideoID
	From    RecordStatus
	To      RecordStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for video %s: %q -> %q", e.VideoID, e.From, e.To)
}

// Reason extracts the reason to store on a failed record.
func Reason(err error) string {
	var pErr *ProcessingError
	if errors.As(err, &pErr) {
		if pErr.Err != nil {
			return fmt.Sprintf("%s: %v", pErr.Reason, pErr.Err)
		}
		return pErr.Reason
	}
	return err.Error()
}
