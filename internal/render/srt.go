package render

import (
	"io"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
	"speech-to-pdf/internal/models"
)

const maxCueLine = 42

// Subtitles converts timed segments into subtitle cues.
func Subtitles(t models.Transcript) *astisub.Subtitles {
	subtitles := astisub.NewSubtitles()
	for _, s := range t.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End <= s.Start {
			continue
		}
		item := &astisub.Item{
			StartAt: seconds(s.Start),
			EndAt:   seconds(s.End),
		}
		for _, line := range Wrap(text, maxCueLine) {
			item.Lines = append(item.Lines, astisub.Line{Items: []astisub.LineItem{{Text: line}}})
		}
		subtitles.Items = append(subtitles.Items, item)
	}
	return subtitles
}

// WriteSRT writes the SubRip rendition of the segments. Transcripts without
// timing produce an empty file.
func WriteSRT(w io.Writer, t models.Transcript) error {
	subtitles := Subtitles(t)
	if len(subtitles.Items) == 0 {
		return nil
	}
	return subtitles.WriteToSRT(w)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}
