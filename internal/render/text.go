package render

import (
	"fmt"
	"io"
	"strings"

	"speech-to-pdf/internal/models"
)

const paragraphGap = 2.0 // seconds of silence that start a new paragraph

// Paragraph is a run of segments rendered as one block.
type Paragraph struct {
	Start   float64
	Speaker *int
	Text    string
}

// Paragraphs groups segments on speaker changes and pauses. A transcript
// without segments becomes a single paragraph of its text.
func Paragraphs(t models.Transcript) []Paragraph {
	if len(t.Segments) == 0 {
		if text := strings.TrimSpace(t.Text); text != "" {
			return []Paragraph{{Text: text}}
		}
		return nil
	}
	var out []Paragraph
	var b strings.Builder
	var cur Paragraph
	lastEnd := 0.0
	flush := func() {
		if b.Len() > 0 {
			cur.Text = b.String()
			out = append(out, cur)
		}
		b.Reset()
	}
	for _, s := range t.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if b.Len() == 0 || !sameSpeaker(cur.Speaker, s.Speaker) || s.Start-lastEnd > paragraphGap {
			flush()
			cur = Paragraph{Start: s.Start, Speaker: s.Speaker}
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		lastEnd = s.End
	}
	flush()
	return out
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Heading returns the prefix printed before a paragraph: its timestamp and,
// when diarized, the speaker.
func (p Paragraph) Heading() string {
	h := "[" + Clock(p.Start) + "]"
	if p.Speaker != nil {
		h += fmt.Sprintf(" Speaker %d:", *p.Speaker+1)
	}
	return h
}

// Clock formats seconds as HH:MM:SS.
func Clock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// Summary is the metadata line under the title.
func Summary(t models.Transcript) string {
	parts := []string{"Duration " + Clock(t.Duration)}
	if t.Language != "" {
		parts = append(parts, "Language "+t.Language)
	}
	if t.Model != "" {
		parts = append(parts, "Model "+t.Model)
	}
	return strings.Join(parts, " | ")
}

// WriteText writes the plain-text transcript.
func WriteText(w io.Writer, t models.Transcript) error {
	var b strings.Builder
	b.WriteString(t.Title)
	b.WriteString("\n")
	b.WriteString(Summary(t))
	b.WriteString("\n\n")
	for _, p := range Paragraphs(t) {
		b.WriteString(p.Heading())
		b.WriteString(" ")
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Wrap breaks text into lines of at most width runes, splitting on spaces.
// Words longer than width are hard-split.
func Wrap(text string, width int) []string {
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(line) == 0:
			line = append(line, w...)
		case len(line)+1+len(w) <= width:
			line = append(append(line, ' '), w...)
		default:
			lines = append(lines, string(line))
			line = append([]rune(nil), w...)
		}
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}
