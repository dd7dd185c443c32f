package deliver

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"text/template"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
)

const textDigest = `YouTube digest for {{ .Date }}, {{ .Count }} new video{{ if ne .Count 1 }}s{{ end }}
{{ range .Channels }}
== {{ .ChannelID }} ==
{{ range .Items }}
{{ .Title }}
{{ .URL }}
Published {{ .PublishedAt.Format "2006-01-02 15:04" }} UTC

{{ .Summary }}
{{ end }}{{ end }}`

const htmlDigest = `<html><body>
<h1>YouTube digest for {{ .Date }}</h1>
<p>{{ .Count }} new video{{ if ne .Count 1 }}s{{ end }}</p>
{{ range .Channels }}<h2>{{ .ChannelID }}</h2>
{{ range .Items }}<h3><a href="{{ .URL }}">{{ .Title }}</a></h3>
<p><small>Published {{ .PublishedAt.Format "2006-01-02 15:04" }} UTC</small></p>
<p>{{ .Summary }}</p>
{{ end }}{{ end }}</body></html>`

var (
	textTmpl = template.Must(template.New("digest").Parse(textDigest))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("digest").Parse(htmlDigest))
)

type channelSection struct {
	ChannelID model.YoutubeChannelID
	Items     []model.DigestItem
}

type digestView struct {
	Date     string
	Count    int
	Channels []channelSection
}

// newView groups the items per channel, channels in order of first
// appearance, videos newest first.
func newView(digest model.RunDigest) digestView {
	view := digestView{
		Date:  digest.CreatedAt.UTC().Format("2006-01-02"),
		Count: len(digest.Items),
	}
	index := map[model.YoutubeChannelID]int{}
	for _, item := range digest.Items {
		i, ok := index[item.ChannelID]
		if !ok {
			i = len(view.Channels)
			index[item.ChannelID] = i
			view.Channels = append(view.Channels, channelSection{ChannelID: item.ChannelID})
		}
		view.Channels[i].Items = append(view.Channels[i].Items, item)
	}
	for _, section := range view.Channels {
		items := section.Items
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		})
	}

	return view
}

func Subject(digest model.RunDigest) string {
	n := len(digest.Items)
	noun := "videos"
	if n == 1 {
		noun = "video"
	}
	return fmt.Sprintf("YouTube digest %s: %d new %s", digest.CreatedAt.UTC().Format(time.DateOnly), n, noun)
}

func RenderText(digest model.RunDigest) (string, error) {
	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, newView(digest)); err != nil {
		return "", fmt.Errorf("could not render digest: %w", err)
	}
	return buf.String(), nil
}

func RenderHTML(digest model.RunDigest) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, newView(digest)); err != nil {
		return "", fmt.Errorf("could not render digest: %w", err)
	}
	return buf.String(), nil
}
