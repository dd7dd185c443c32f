package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
	"miniflux.app/client"
)

const maxFeedEntries = 100

type MinifluxInfo struct {
	Endpoint string
	ApiKey   string
}

// Miniflux uses the YouTube channel feeds subscribed to in a Miniflux
// instance both as channel registry and as video source.
type Miniflux struct {
	client *client.Client
	logger *slog.Logger

	mu    sync.Mutex
	feeds map[model.YoutubeChannelID]int64
}

func NewMiniflux(mflInfo MinifluxInfo, logger *slog.Logger) *Miniflux {
	return &Miniflux{
		client: client.New(mflInfo.Endpoint, mflInfo.ApiKey),
		logger: logger,
		feeds:  map[model.YoutubeChannelID]int64{},
	}
}

func (m *Miniflux) ListChannels(_ context.Context) ([]model.ChannelRef, error) {
	feeds, err := m.client.Feeds()
	if err != nil {
		return nil, &model.ChannelSourceError{Err: err}
	}

	channels := []model.ChannelRef{}
	ids := map[model.YoutubeChannelID]int64{}
	for _, feed := range feeds {
		channelID := ChannelIDFromFeedURL(feed.FeedURL)
		if channelID == "" {
			continue
		}
		ids[channelID] = feed.ID
		channels = append(channels, model.ChannelRef{ID: channelID, Name: feed.Title})
	}

	m.mu.Lock()
	m.feeds = ids
	m.mu.Unlock()

	return channels, nil
}

func (m *Miniflux) ListRecentVideos(ctx context.Context, channelID model.YoutubeChannelID, since time.Time) ([]model.VideoRef, error) {
	m.mu.Lock()
	feedID, ok := m.feeds[channelID]
	m.mu.Unlock()
	if !ok {
		if _, err := m.ListChannels(ctx); err != nil {
			return nil, &model.VideoSourceError{ChannelID: channelID, Err: err}
		}
		m.mu.Lock()
		feedID, ok = m.feeds[channelID]
		m.mu.Unlock()
		if !ok {
			return nil, &model.VideoSourceError{ChannelID: channelID, Err: fmt.Errorf("no miniflux feed for channel")}
		}
	}

	result, err := m.client.FeedEntries(feedID, &client.Filter{
		After:     since.Unix(),
		Order:     "published_at",
		Direction: "desc",
		Limit:     maxFeedEntries,
	})
	if err != nil {
		return nil, &model.VideoSourceError{ChannelID: channelID, Err: err}
	}

	videos := make([]model.VideoRef, 0, len(result.Entries))
	for _, entry := range result.Entries {
		videos = append(videos, model.VideoRef{
			ID:          VideoIDFromURL(entry.URL),
			ChannelID:   channelID,
			PublishedAt: entry.Date.UTC(),
			Title:       entry.Title,
		})
	}

	return videos, nil
}

func ChannelIDFromFeedURL(feedURL string) model.YoutubeChannelID {
	u, err := url.Parse(feedURL)
	if err != nil || !strings.HasSuffix(u.Hostname(), "youtube.com") {
		return ""
	}
	return model.YoutubeChannelID(u.Query().Get("channel_id"))
}

func VideoIDFromURL(videoURL string) model.YoutubeVideoID {
	u, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	if u.Hostname() == "youtu.be" {
		return model.YoutubeVideoID(strings.TrimPrefix(u.Path, "/"))
	}
	if id := u.Query().Get("v"); id != "" {
		return model.YoutubeVideoID(id)
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		return model.YoutubeVideoID(strings.TrimPrefix(u.Path, "/shorts/"))
	}
	return ""
}
