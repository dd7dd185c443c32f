package process

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = openai.GPT3Dot5Turbo

	maxSourceChars = 12000
)

const summarizePrompt = `You are a helpful assistant writing a daily digest of new YouTube videos. Summarize the video the user describes in three to five sentences.
Focus on what the video is about and its main points. Do not add introductory sentences like "This video is about" or "Summary of...".
`

type OpenAIInfo struct {
	ApiKey  string
	BaseURL string
	Model   string
}

func NewOpenAIClient(info OpenAIInfo) *openai.Client {
	config := openai.DefaultConfig(info.ApiKey)
	if info.BaseURL != "" {
		config.BaseURL = info.BaseURL
	}
	return openai.NewClientWithConfig(config)
}

type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

func NewOpenAISummarizer(client *openai.Client, model string) *OpenAISummarizer {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAISummarizer{
		client: client,
		model:  model,
	}
}

func (sum *OpenAISummarizer) Name() string {
	return "summary"
}

func (sum *OpenAISummarizer) Do(ctx context.Context, item *Item) error {
	source := truncate(item.Source(), maxSourceChars)
	if source == "" {
		return fmt.Errorf("nothing to summarize")
	}

	resp, err := sum.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: sum.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: summarizePrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf("Title: %s\n\n%s", item.Title, source),
				},
			},
		})
	if err != nil {
		return fmt.Errorf("failed to fetch summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no summary returned")
	}

	item.Summary = strings.TrimSpace(resp.Choices[len(resp.Choices)-1].Message.Content)

	return nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// cut at the start of the rune that crosses max
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
