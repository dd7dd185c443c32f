package process

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

const (
	DefaultWatchURL = "https://www.youtube.com"

	maxPageBytes = 8 << 20
)

var errNoCaptions = errors.New("video has no caption tracks")

// Transcript reads the caption track of a video from its watch page. It is
// best effort: when no transcript can be found the summary falls back to title
// and description, so Do never fails.
type Transcript struct {
	client    *http.Client
	baseURL   string
	languages []string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewTranscript(client *http.Client, baseURL string, limiter *rate.Limiter, logger *slog.Logger) *Transcript {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultWatchURL
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Transcript{
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		languages: []string{"en"},
		limiter:   limiter,
		logger:    logger,
	}
}

func (t *Transcript) Name() string {
	return "transcript"
}

func (t *Transcript) Do(ctx context.Context, item *Item) error {
	text, err := t.Fetch(ctx, string(item.ID))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn("no transcript, using description", slog.String("video", string(item.ID)), slog.String("err", err.Error()))
		return nil
	}
	item.Transcript = text

	return nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func (t *Transcript) Fetch(ctx context.Context, videoID string) (string, error) {
	page, err := t.get(ctx, fmt.Sprintf("%s/watch?v=%s", t.baseURL, videoID))
	if err != nil {
		return "", fmt.Errorf("could not fetch watch page: %w", err)
	}
	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return "", err
	}
	track := pickTrack(tracks, t.languages)

	body, err := t.get(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("could not fetch captions: %w", err)
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("could not parse captions: %w", err)
	}

	lines := make([]string, 0, len(tt.Texts))
	for _, text := range tt.Texts {
		line := strings.Join(strings.Fields(html.UnescapeString(text.Value)), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", errors.New("caption track is empty")
	}

	return strings.Join(lines, " "), nil
}

func (t *Transcript) get(ctx context.Context, url string) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// parseCaptionTracks finds the caption track list in the player response
// embedded in one of the scripts of the watch page.
func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("could not parse watch page: %w", err)
	}
	script := ""
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, marker) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, errNoCaptions
	}

	var tracks []captionTrack
	dec := json.NewDecoder(strings.NewReader(script[strings.Index(script, marker)+len(marker):]))
	if err := dec.Decode(&tracks); err != nil {
		return nil, fmt.Errorf("could not parse caption tracks: %w", err)
	}
	valid := tracks[:0]
	for _, track := range tracks {
		if track.BaseURL != "" {
			valid = append(valid, track)
		}
	}
	if len(valid) == 0 {
		return nil, errNoCaptions
	}

	return valid, nil
}

// pickTrack prefers manual captions in a preferred language, then generated
// ones, then whatever comes first.
func pickTrack(tracks []captionTrack, languages []string) captionTrack {
	for _, asr := range []bool{false, true} {
		for _, lang := range languages {
			for _, track := range tracks {
				if strings.HasPrefix(track.LanguageCode, lang) && (track.Kind == "asr") == asr {
					return track
				}
			}
		}
	}

	return tracks[0]
}
