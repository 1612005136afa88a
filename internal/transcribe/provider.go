package transcribe

import (
	"context"
	"strings"

	"speech-to-pdf/internal/models"
)

// Provider is one speech-to-text backend. An empty language asks the provider
// to detect it.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audioPath, language, model string) (models.Transcript, error)
}

// NormalizeLanguage maps the "auto" form value and blanks to detection.
func NormalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if strings.EqualFold(language, "auto") {
		return ""
	}
	return language
}
