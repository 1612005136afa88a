package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
	"speech-to-pdf/internal/models"
)

// A4 portrait in points.
const (
	pageWidth    = 595.0
	pageHeight   = 842.0
	marginX      = 56.0
	marginTop    = 64.0
	marginBottom = 64.0
	bodySize     = 11
	bodyLeading  = 15.0
	titleSize    = 18
	wrapWidth    = 88
)

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  pdfFont    `json:"font"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

// pdfLayout is the document description consumed by pdfcpu's create command.
type pdfLayout struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfLine struct {
	text string
	font pdfFont
	gap  float64
}

// paginate places the transcript as positioned text lines on A4 pages.
func paginate(t models.Transcript) pdfLayout {
	regular := pdfFont{Name: "Helvetica", Size: bodySize}
	bold := pdfFont{Name: "Helvetica-Bold", Size: bodySize}

	lines := []pdfLine{
		{text: t.Title, font: pdfFont{Name: "Helvetica-Bold", Size: titleSize}, gap: titleSize + 6},
		{text: Summary(t), font: pdfFont{Name: "Helvetica-Oblique", Size: 9}, gap: bodyLeading * 2},
	}
	for _, p := range Paragraphs(t) {
		lines = append(lines, pdfLine{text: p.Heading(), font: bold, gap: bodyLeading})
		for _, l := range Wrap(p.Text, wrapWidth) {
			lines = append(lines, pdfLine{text: l, font: regular, gap: bodyLeading})
		}
		lines[len(lines)-1].gap += bodyLeading / 2
	}

	layout := pdfLayout{Paper: "A4P", Origin: "LowerLeft", Pages: map[string]pdfPage{}}
	page := 1
	y := pageHeight - marginTop
	current := pdfPage{}
	for _, l := range lines {
		if y < marginBottom {
			layout.Pages[strconv.Itoa(page)] = current
			page++
			current = pdfPage{}
			y = pageHeight - marginTop
		}
		current.Content.Text = append(current.Content.Text, pdfText{Value: l.text, Pos: [2]float64{marginX, y}, Font: l.font})
		y -= l.gap
	}
	layout.Pages[strconv.Itoa(page)] = current
	return layout
}

// PDFUnencodable returns up to limit distinct characters of t that the
// standard PDF fonts (WinAnsi encoded) cannot show.
func PDFUnencodable(t models.Transcript, limit int) []rune {
	var bad []rune
	seen := map[rune]bool{}
	for _, page := range paginate(t).Pages {
		for _, text := range page.Content.Text {
			for _, r := range text.Value {
				if seen[r] {
					continue
				}
				seen[r] = true
				if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
					bad = append(bad, r)
					if len(bad) == limit {
						return bad
					}
				}
			}
		}
	}
	return bad
}

// WritePDF renders the transcript with pdfcpu's standard fonts.
func WritePDF(w io.Writer, t models.Transcript) error {
	spec, err := json.Marshal(paginate(t))
	if err != nil {
		return err
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Create(nil, bytes.NewReader(spec), w, conf); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
