package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"speech-to-pdf/internal/models"
)

// OpenAI transcribes through the audio transcriptions endpoint with the
// verbose JSON format so duration, language and segments come back.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(config)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audioPath, language, model string) (models.Transcript, error) {
	if model == "" {
		model = openai.Whisper1
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return models.Transcript{}, fmt.Errorf("openai http %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return models.Transcript{}, fmt.Errorf("openai request failed: %w", err)
	}

	t := models.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Duration: resp.Duration,
		Language: language,
		Model:    model,
	}
	if t.Language == "" {
		t.Language = resp.Language
	}
	for _, s := range resp.Segments {
		t.Segments = append(t.Segments, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return t, nil
}
