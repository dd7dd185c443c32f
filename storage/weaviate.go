package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate/entities/models"
	"go-mod.ewintr.nl/ytdigest/model"
)

const (
	className = "VideoSummary"
)

// Weaviate keeps a searchable copy of every succeeded summary.
type Weaviate struct {
	client *weaviate.Client
}

// NewWeaviate connects over https unless host is prefixed with http://.
func NewWeaviate(host, weaviateApiKey, openaiApiKey string) (*Weaviate, error) {
	scheme := "https"
	if strings.HasPrefix(host, "http://") {
		scheme = "http"
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")

	config := weaviate.Config{
		Scheme:     scheme,
		Host:       host,
		AuthConfig: auth.ApiKey{Value: weaviateApiKey},
		Headers: map[string]string{
			"X-OpenAI-Api-Key": openaiApiKey,
		},
	}

	c, err := weaviate.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Weaviate{client: c}, nil
}

// EnsureSchema creates the class when it does not exist yet.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	dump, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return err
	}
	for _, class := range dump.Classes {
		if class.Class == className {
			return nil
		}
	}

	return w.createClass(ctx)
}

func (w *Weaviate) createClass(ctx context.Context) error {
	classObj := &models.Class{
		Class:      className,
		Vectorizer: "text2vec-openai",
		ModuleConfig: map[string]any{
			"text2vec-openai": map[string]any{
				"model":        "ada",
				"modelVersion": "002",
				"type":         "text",
			},
		},
	}

	return w.client.Schema().ClassCreator().WithClass(classObj).Do(ctx)
}

// ObjectID derives a stable object id from the video id, so saving the same
// video twice updates one object.
func ObjectID(videoID model.YoutubeVideoID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(videoID.URL()))
}

func (w *Weaviate) Save(ctx context.Context, record model.ProcessingRecord) error {
	vID := ObjectID(record.VideoID).String()
	props := map[string]any{
		"youtubeId":        string(record.VideoID),
		"youtubeChannelId": string(record.ChannelID),
		"title":            record.Title,
		"publishedAt":      formatTime(record.PublishedAt),
		"summary":          record.ResultSummary,
	}

	// check it already exists
	exists, err := w.client.Data().
		Checker().
		WithID(vID).
		WithClassName(className).
		Do(ctx)
	if err != nil {
		return err
	}

	if exists {
		return w.client.Data().
			Updater().
			WithID(vID).
			WithClassName(className).
			WithProperties(props).
			Do(ctx)
	}

	_, err = w.client.Data().
		Creator().
		WithClassName(className).
		WithID(vID).
		WithProperties(props).
		Do(ctx)

	return err
}
