package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"speech-to-pdf/internal/models"
)

// Deepgram calls the prerecorded /v1/listen endpoint with the raw audio body.
type Deepgram struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewDeepgram(apiKey, baseURL string, client *http.Client) *Deepgram {
	if client == nil {
		client = &http.Client{}
	}
	return &Deepgram{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
			Speaker    *int    `json:"speaker"`
		} `json:"utterances"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, audioPath, language, model string) (models.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return models.Transcript{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return models.Transcript{}, err
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	params.Set("paragraphs", "true")
	params.Set("utterances", "true")
	params.Set("diarize", "true")
	if language != "" {
		params.Set("language", language)
	} else {
		params.Set("detect_language", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/listen?"+params.Encode(), f)
	if err != nil {
		return models.Transcript{}, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", audioContentType(audioPath))

	resp, err := d.client.Do(req)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("deepgram response read failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return models.Transcript{}, fmt.Errorf("deepgram http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dr deepgramResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return models.Transcript{}, fmt.Errorf("deepgram unexpected response: %w", err)
	}
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return models.Transcript{}, fmt.Errorf("deepgram returned no transcript")
	}

	channel := dr.Results.Channels[0]
	t := models.Transcript{
		Text:     channel.Alternatives[0].Transcript,
		Duration: dr.Metadata.Duration,
		Language: language,
		Model:    model,
		Raw:      body,
	}
	if t.Language == "" {
		t.Language = channel.DetectedLanguage
	}
	for _, u := range dr.Results.Utterances {
		t.Segments = append(t.Segments, models.Segment{Start: u.Start, End: u.End, Text: u.Transcript, Speaker: u.Speaker})
	}
	return t, nil
}

var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
}

func audioContentType(path string) string {
	if ct, ok := audioTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
