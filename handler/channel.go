package handler

import (
	"fmt"
	"net/http"
	"time"

	"go-mod.ewintr.nl/ytdigest/fetch"
	"golang.org/x/exp/slog"
)

type ChannelAPI struct {
	registry fetch.ChannelRegistry
	resolver fetch.ChannelResolver
	lookback time.Duration
	logger   *slog.Logger
}

// NewChannelAPI serves the tracked channels. resolver may be nil when the
// channel source cannot look up channels by name.
func NewChannelAPI(registry fetch.ChannelRegistry, resolver fetch.ChannelResolver, lookback time.Duration, logger *slog.Logger) *ChannelAPI {
	return &ChannelAPI{
		registry: registry,
		resolver: resolver,
		lookback: lookback,
		logger:   logger,
	}
}

type respChannel struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

type respChannelList struct {
	Channels      []respChannel `json:"channels"`
	LookbackHours int           `json:"lookback_hours"`
	NotFound      []string      `json:"not_found,omitempty"`
}

func (c *ChannelAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	head, tail := ShiftPath(r.URL.Path)
	name, _ := ShiftPath(tail)

	switch {
	case r.Method == http.MethodGet && head == "":
		c.List(w, r)
	case r.Method == http.MethodPost && head == "resolve" && name != "" && c.resolver != nil:
		c.Resolve(w, r, name)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the channel api", r.Method, head))
	}
}

func (c *ChannelAPI) List(w http.ResponseWriter, r *http.Request) {
	channels, err := c.registry.ListChannels(r.Context())
	if err != nil {
		c.logger.Error("could not list channels", slog.String("err", err.Error()))
		Error(w, http.StatusBadGateway, "could not list channels", err)
		return
	}

	resp := respChannelList{
		Channels:      make([]respChannel, 0, len(channels)),
		LookbackHours: int(c.lookback / time.Hour),
	}
	for _, ch := range channels {
		resp.Channels = append(resp.Channels, respChannel{ChannelID: string(ch.ID), Name: ch.Name})
	}
	if lister, ok := c.registry.(fetch.UnresolvedLister); ok {
		resp.NotFound = lister.Unresolved()
	}

	JSON(w, http.StatusOK, resp)
}

// Resolve looks up a channel by name, handle or id without tracking it.
func (c *ChannelAPI) Resolve(w http.ResponseWriter, r *http.Request, name string) {
	ref, found, err := c.resolver.ResolveChannel(r.Context(), name)
	if err != nil {
		c.logger.Error("could not resolve channel", slog.String("name", name), slog.String("err", err.Error()))
		Error(w, http.StatusBadGateway, "could not resolve channel", err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "channel not found", fmt.Errorf("no channel matches %q", name))
		return
	}

	JSON(w, http.StatusOK, respChannel{ChannelID: string(ref.ID), Name: ref.Name})
}
