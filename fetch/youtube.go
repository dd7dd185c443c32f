package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
	"google.golang.org/api/youtube/v3"
)

const (
	maxPageResults = 50
	maxPages       = 10
)

type Youtube struct {
	Client  *youtube.Service
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	uploads map[model.YoutubeChannelID]string
}

func NewYoutube(client *youtube.Service, limiter *rate.Limiter, logger *slog.Logger) *Youtube {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Youtube{
		Client:  client,
		limiter: limiter,
		logger:  logger,
		uploads: map[model.YoutubeChannelID]string{},
	}
}

// IsChannelID reports whether s looks like a YouTube channel id rather than a
// name or handle.
func IsChannelID(s string) bool {
	return len(s) == 24 && strings.HasPrefix(s, "UC")
}

func (y *Youtube) ResolveChannel(ctx context.Context, name string) (model.ChannelRef, bool, error) {
	name = strings.TrimSpace(name)
	if err := y.limiter.Wait(ctx); err != nil {
		return model.ChannelRef{}, false, err
	}

	if IsChannelID(name) {
		response, err := y.Client.Channels.
			List([]string{"snippet", "contentDetails"}).
			Id(name).
			Context(ctx).
			Do()
		if err != nil {
			return model.ChannelRef{}, false, fmt.Errorf("could not get channel %s: %w", name, err)
		}
		if len(response.Items) == 0 {
			return model.ChannelRef{}, false, nil
		}
		item := response.Items[0]
		if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
			y.setUploads(model.YoutubeChannelID(item.Id), item.ContentDetails.RelatedPlaylists.Uploads)
		}
		title := name
		if item.Snippet != nil {
			title = item.Snippet.Title
		}
		return model.ChannelRef{ID: model.YoutubeChannelID(item.Id), Name: title}, true, nil
	}

	response, err := y.Client.Search.
		List([]string{"snippet"}).
		Q(name).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return model.ChannelRef{}, false, fmt.Errorf("could not search channel %q: %w", name, err)
	}
	if len(response.Items) == 0 || response.Items[0].Id == nil {
		return model.ChannelRef{}, false, nil
	}

	item := response.Items[0]
	ref := model.ChannelRef{ID: model.YoutubeChannelID(item.Id.ChannelId), Name: name}
	if item.Snippet != nil && item.Snippet.Title != "" {
		ref.Name = item.Snippet.Title
	}
	return ref, ref.ID != "", nil
}

func (y *Youtube) setUploads(channelID model.YoutubeChannelID, playlistID string) {
	if playlistID == "" {
		return
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	y.uploads[channelID] = playlistID
}

func (y *Youtube) uploadsPlaylist(ctx context.Context, channelID model.YoutubeChannelID) (string, error) {
	y.mu.Lock()
	playlistID, ok := y.uploads[channelID]
	y.mu.Unlock()
	if ok {
		return playlistID, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return "", err
	}
	response, err := y.Client.Channels.
		List([]string{"contentDetails"}).
		Id(string(channelID)).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(response.Items) == 0 {
		return "", fmt.Errorf("channel not found")
	}
	item := response.Items[0]
	if item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil || item.ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel has no uploads playlist")
	}
	y.setUploads(channelID, item.ContentDetails.RelatedPlaylists.Uploads)

	return item.ContentDetails.RelatedPlaylists.Uploads, nil
}

// ListRecentVideos walks the uploads playlist of the channel, newest first,
// until it reaches a video published before since.
func (y *Youtube) ListRecentVideos(ctx context.Context, channelID model.YoutubeChannelID, since time.Time) ([]model.VideoRef, error) {
	playlistID, err := y.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, &model.VideoSourceError{ChannelID: channelID, Err: err}
	}

	videos := []model.VideoRef{}
	token := ""
	older := false
	for page := 0; page < maxPages; page++ {
		if err := y.limiter.Wait(ctx); err != nil {
			return nil, &model.VideoSourceError{ChannelID: channelID, Err: err}
		}
		call := y.Client.PlaylistItems.
			List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(maxPageResults).
			Context(ctx)
		if token != "" {
			call.PageToken(token)
		}
		response, err := call.Do()
		if err != nil {
			return nil, &model.VideoSourceError{ChannelID: channelID, Err: err}
		}

		for _, item := range response.Items {
			video := playlistItemToRef(channelID, item)
			if !video.PublishedAt.IsZero() && video.PublishedAt.Before(since) {
				older = true
				continue
			}
			videos = append(videos, video)
		}

		token = response.NextPageToken
		if older || token == "" {
			break
		}
	}

	if !older && token != "" {
		y.logger.Warn("listing truncated", slog.String("channel", string(channelID)), slog.Int("pages", maxPages), slog.Int("count", len(videos)))
	}
	y.logger.Debug("listed recent videos", slog.String("channel", string(channelID)), slog.Int("count", len(videos)))
	return videos, nil
}

// playlistItemToRef leaves fields empty when the item is malformed, so that
// validation downstream rejects it.
func playlistItemToRef(channelID model.YoutubeChannelID, item *youtube.PlaylistItem) model.VideoRef {
	video := model.VideoRef{ChannelID: channelID}
	published := ""
	if item.ContentDetails != nil {
		video.ID = model.YoutubeVideoID(item.ContentDetails.VideoId)
		published = item.ContentDetails.VideoPublishedAt
	}
	if item.Snippet != nil {
		video.Title = item.Snippet.Title
		if video.ID == "" && item.Snippet.ResourceId != nil {
			video.ID = model.YoutubeVideoID(item.Snippet.ResourceId.VideoId)
		}
		if published == "" {
			published = item.Snippet.PublishedAt
		}
	}
	if t, err := time.Parse(time.RFC3339, published); err == nil {
		video.PublishedAt = t.UTC()
	}

	return video
}
