package process

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/api/youtube/v3"
)

// YoutubeMetadata adds description and duration from the YouTube Data API.
type YoutubeMetadata struct {
	client  *youtube.Service
	limiter *rate.Limiter
}

func NewYoutubeMetadata(client *youtube.Service, limiter *rate.Limiter) *YoutubeMetadata {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &YoutubeMetadata{
		client:  client,
		limiter: limiter,
	}
}

func (y *YoutubeMetadata) Name() string {
	return "metadata"
}

func (y *YoutubeMetadata) Do(ctx context.Context, item *Item) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return err
	}
	response, err := y.client.Videos.
		List([]string{"snippet", "contentDetails"}).
		Id(string(item.ID)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("could not fetch metadata: %w", err)
	}
	if len(response.Items) == 0 {
		return fmt.Errorf("video %s is not available", item.ID)
	}

	video := response.Items[0]
	if video.Snippet != nil {
		if item.Title == "" {
			item.Title = video.Snippet.Title
		}
		item.Description = video.Snippet.Description
	}
	if video.ContentDetails != nil {
		item.Duration = video.ContentDetails.Duration
	}

	return nil
}
