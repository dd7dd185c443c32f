package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type YoutubeVideoID string

func (id YoutubeVideoID) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

// VideoRef is a video as observed on a channel during one run. It is never
// stored directly, only the ProcessingRecord created from it is.
type VideoRef struct {
	ID          YoutubeVideoID
	ChannelID   YoutubeChannelID
	PublishedAt time.Time
	Title       string
}

func (v VideoRef) Validate() error {
	switch {
	case strings.TrimSpace(string(v.ID)) == "":
		return errors.New("video has no id")
	case strings.TrimSpace(string(v.ChannelID)) == "":
		return fmt.Errorf("video %s has no channel id", v.ID)
	case v.PublishedAt.IsZero():
		return fmt.Errorf("video %s has no publish time", v.ID)
	}

	return nil
}

// Dedupe keeps the first sighting of every video id, in order. The second
// return value holds the dropped duplicates.
func Dedupe(videos []VideoRef) ([]VideoRef, []VideoRef) {
	seen := make(map[YoutubeVideoID]bool, len(videos))
	unique := make([]VideoRef, 0, len(videos))
	dupes := []VideoRef{}
	for _, v := range videos {
		if seen[v.ID] {
			dupes = append(dupes, v)
			continue
		}
		seen[v.ID] = true
		unique = append(unique, v)
	}

	return unique, dupes
}
