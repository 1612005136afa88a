package models

import "encoding/json"

// Segment is one timed stretch of recognized speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker *int    `json:"speaker,omitempty"`
}

// Transcript is the provider-neutral result of a transcription call.
type Transcript struct {
	Title    string          `json:"title"`
	Text     string          `json:"text"`
	Duration float64         `json:"duration"`
	Language string          `json:"language,omitempty"`
	Model    string          `json:"model"`
	Segments []Segment       `json:"segments"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
