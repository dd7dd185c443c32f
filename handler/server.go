package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"time"

	"go-mod.ewintr.nl/ytdigest/fetch"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
)

type Server struct {
	apis   map[string]http.Handler
	logger *slog.Logger
}

// NewServer serves the video, channel and run apis. lookback is the discovery
// window reported with the tracked channels.
func NewServer(videoRepo storage.VideoRepository, registry fetch.ChannelRegistry, resolver fetch.ChannelResolver, lookback time.Duration, runner Runner, logger *slog.Logger) *Server {
	return &Server{
		apis: map[string]http.Handler{
			"video":   NewVideoAPI(videoRepo, logger),
			"channel": NewChannelAPI(registry, resolver, lookback, logger),
			"run":     NewRunAPI(runner, logger),
		},
		logger: logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	originalPath := r.URL.Path
	rec := httptest.NewRecorder() // records the response to be able to mix writing headers and content

	rec.Header().Set("Content-Type", "application/json")

	// route to api
	head, tail := ShiftPath(r.URL.Path)
	if len(head) == 0 {
		Index(rec)
		returnResponse(w, rec)
		return
	}
	api, ok := s.apis[head]
	if !ok {
		Error(rec, http.StatusNotFound, "Not found", fmt.Errorf("%s is not a valid path", r.URL.Path))
	} else {
		r.URL.Path = tail
		api.ServeHTTP(rec, r)
	}

	returnResponse(w, rec)
	s.logger.Info("request served", slog.String("method", r.Method), slog.String("path", originalPath), slog.Int("status", rec.Code))
}

func returnResponse(w http.ResponseWriter, rec *httptest.ResponseRecorder) {
	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	w.Write(rec.Body.Bytes())
}

// ShiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash and
// tail will always be a rooted path without trailing slash.
// See https://blog.merovius.de/posts/2017-06-18-how-not-to-use-an-http-router/
func ShiftPath(p string) (string, string) {
	p = path.Clean("/" + p)

	i := strings.Index(p[1:], "/") + 1
	if i <= 0 {
		return p[1:], "/"
	}
	return p[1:i], p[i:]
}
