package fetch

import (
	"context"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
)

// ChannelRegistry lists the channels to monitor. An unavailable registry
// returns a *model.ChannelSourceError and must never return a partial list.
type ChannelRegistry interface {
	ListChannels(ctx context.Context) ([]model.ChannelRef, error)
}

// VideoSource lists videos published on a channel since a point in time.
// Failures are returned as *model.VideoSourceError.
type VideoSource interface {
	ListRecentVideos(ctx context.Context, channelID model.YoutubeChannelID, since time.Time) ([]model.VideoRef, error)
}

// UnresolvedLister is implemented by registries that track channels by name.
// Unresolved returns the names the last ListChannels call could not find.
type UnresolvedLister interface {
	Unresolved() []string
}

type ChannelResolver interface {
	ResolveChannel(ctx context.Context, name string) (model.ChannelRef, bool, error)
}
