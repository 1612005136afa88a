package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/render"
	"speech-to-pdf/internal/storage"
)

// Request names the audio to transcribe and where the artifacts go. The
// docs are written next to OutputBase; the PDF lands in the adapter's PDF
// directory under the same base name.
type Request struct {
	AudioPath   string
	OutputBase  string
	DisplayName string
	Language    string
	Model       string
}

type Result struct {
	JSONPath  string
	TXTPath   string
	DOCXPath  string
	PDFPath   string
	SRTPath   string
	Duration  float64
	ModelUsed string
	Language  string
}

// ConversionResult maps the adapter result onto the job columns.
func (r Result) ConversionResult() models.ConversionResult {
	return models.ConversionResult{
		JSONPath:  r.JSONPath,
		TxtPath:   r.TXTPath,
		DocxPath:  r.DOCXPath,
		PdfPath:   r.PDFPath,
		SrtPath:   r.SRTPath,
		Duration:  r.Duration,
		Language:  r.Language,
		ModelUsed: r.ModelUsed,
	}
}

type writerFunc func(io.Writer, models.Transcript) error

// Adapter runs a provider and renders every artifact of the transcript.
type Adapter struct {
	provider Provider
	pdfDir   string
	logger   *zap.Logger

	writePDF writerFunc
}

func NewAdapter(provider Provider, pdfDir string, logger *zap.Logger) *Adapter {
	return &Adapter{provider: provider, pdfDir: pdfDir, logger: logger, writePDF: render.WritePDF}
}

func (a *Adapter) Transcribe(ctx context.Context, req Request) (Result, error) {
	language := NormalizeLanguage(req.Language)
	start := time.Now()
	transcript, err := a.provider.Transcribe(ctx, req.AudioPath, language, req.Model)
	if err != nil {
		return Result{}, err
	}
	transcript.Title = req.DisplayName
	if transcript.Model == "" {
		transcript.Model = req.Model
	}
	a.logger.Info("transcription finished",
		zap.String("provider", a.provider.Name()),
		zap.String("audio", req.AudioPath),
		zap.Float64("duration", transcript.Duration),
		zap.String("language", transcript.Language),
		zap.Duration("elapsed", time.Since(start)))

	if bad := render.PDFUnencodable(transcript, 8); len(bad) > 0 {
		a.logger.Warn("transcript has characters the pdf fonts cannot show",
			zap.String("audio", req.AudioPath),
			zap.String("language", transcript.Language),
			zap.String("sample", string(bad)))
	}

	res := Result{
		JSONPath:  req.OutputBase + ".json",
		TXTPath:   req.OutputBase + ".txt",
		DOCXPath:  req.OutputBase + ".docx",
		SRTPath:   req.OutputBase + ".srt",
		PDFPath:   filepath.Join(a.pdfDir, filepath.Base(req.OutputBase)+".pdf"),
		Duration:  transcript.Duration,
		ModelUsed: transcript.Model,
		Language:  transcript.Language,
	}
	artifacts := map[string]writerFunc{
		res.JSONPath: writeJSON,
		res.TXTPath:  render.WriteText,
		res.DOCXPath: render.WriteDOCX,
		res.SRTPath:  render.WriteSRT,
		res.PDFPath:  a.writePDF,
	}

	g, gctx := errgroup.WithContext(ctx)
	for path, write := range artifacts {
		path, write := path, write
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writeFile(path, transcript, write)
		})
	}
	if err := g.Wait(); err != nil {
		storage.RemoveAll(a.logger, res.JSONPath, res.TXTPath, res.DOCXPath, res.SRTPath, res.PDFPath)
		return Result{}, err
	}
	return res, nil
}

func writeJSON(w io.Writer, t models.Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// writeFile renders into a temp file and renames it into place so a reader
// never sees a partial artifact.
func writeFile(path string, t models.Transcript, write writerFunc) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
