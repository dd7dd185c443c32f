package fetch

import (
	"context"
	"strings"
	"sync"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
)

// ConfigRegistry serves the channels configured by name, handle or id.
// Resolved channels are remembered for the lifetime of the process.
type ConfigRegistry struct {
	names    []string
	resolver ChannelResolver
	logger   *slog.Logger

	mu         sync.Mutex
	resolved   map[string]model.ChannelRef
	unresolved []string
}

func NewConfigRegistry(names []string, resolver ChannelResolver, logger *slog.Logger) *ConfigRegistry {
	return &ConfigRegistry{
		names:    names,
		resolver: resolver,
		logger:   logger,
		resolved: map[string]model.ChannelRef{},
	}
}

// ParseChannelList splits a comma separated list, dropping empty entries.
func ParseChannelList(raw string) []string {
	names := []string{}
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (r *ConfigRegistry) Names() []string {
	return r.names
}

// Unresolved returns the names that did not resolve to a channel during the
// last ListChannels call.
func (r *ConfigRegistry) Unresolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.unresolved...)
}

// ListChannels fails as a whole when the resolver is unavailable. A name that
// resolves to no channel is a configuration problem, it is left out and
// reported through Unresolved.
func (r *ConfigRegistry) ListChannels(ctx context.Context) ([]model.ChannelRef, error) {
	channels := make([]model.ChannelRef, 0, len(r.names))
	unresolved := []string{}
	for _, name := range r.names {
		r.mu.Lock()
		ref, ok := r.resolved[name]
		r.mu.Unlock()
		if ok {
			channels = append(channels, ref)
			continue
		}

		ref, found, err := r.resolver.ResolveChannel(ctx, name)
		if err != nil {
			return nil, &model.ChannelSourceError{Err: err}
		}
		if !found {
			r.logger.Warn("channel not found", slog.String("name", name))
			unresolved = append(unresolved, name)
			continue
		}
		if err := ref.Validate(); err != nil {
			r.logger.Warn("invalid channel", slog.String("name", name), slog.String("err", err.Error()))
			unresolved = append(unresolved, name)
			continue
		}

		r.mu.Lock()
		r.resolved[name] = ref
		r.mu.Unlock()
		r.logger.Info("resolved channel", slog.String("name", name), slog.String("channelid", string(ref.ID)))
		channels = append(channels, ref)
	}

	r.mu.Lock()
	r.unresolved = unresolved
	r.mu.Unlock()

	return channels, nil
}
