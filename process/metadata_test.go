package process

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func newTestMetadata(t *testing.T, body string) *YoutubeMetadata {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	svc, err := youtube.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewYoutubeMetadata(svc, nil)
}

func TestYoutubeMetadata(t *testing.T) {
	meta := newTestMetadata(t, `{"items":[{"id":"v1","snippet":{"title":"Other title","description":"All about it"},"contentDetails":{"duration":"PT12M3S"}}]}`)
	item := NewItem(testVideo())

	require.NoError(t, meta.Do(context.Background(), item))
	assert.Equal(t, "A video", item.Title, "title from the listing is kept")
	assert.Equal(t, "All about it", item.Description)
	assert.Equal(t, "PT12M3S", item.Duration)
}

func TestYoutubeMetadataUnavailable(t *testing.T) {
	meta := newTestMetadata(t, `{"items":[]}`)

	assert.Error(t, meta.Do(context.Background(), NewItem(testVideo())))
}
