package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	AudioDir = "audio"
	DocsDir  = "docs"
	PDFDir   = "pdfs"
)

// Layout maps generated file ids to paths under the upload root:
// audio/<id><ext>, docs/<id>.{json,txt,docx,srt} and pdfs/<id>.pdf.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// EnsureDirs creates the artifact directories.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{AudioDir, DocsDir, PDFDir} {
		if err := os.MkdirAll(filepath.Join(l.Root, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return nil
}

// NewFileID returns the id every artifact of one upload is named after.
func NewFileID() string {
	return uuid.NewString()
}

func (l Layout) AudioPath(fileID, ext string) string {
	return filepath.Join(l.Root, AudioDir, fileID+ext)
}

// OutputBase is the extension-less docs/<id> path the renderers append to.
func (l Layout) OutputBase(fileID string) string {
	return filepath.Join(l.Root, DocsDir, fileID)
}

func (l Layout) PDFDir() string {
	return filepath.Join(l.Root, PDFDir)
}

// SaveAudio streams r into audio/<id><ext>. At most limit bytes are accepted;
// a larger body removes the partial file and returns ErrTooLarge.
func (l Layout) SaveAudio(r io.Reader, fileID, ext string, limit int64) (string, int64, error) {
	path := l.AudioPath(fileID, ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create audio file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

var ErrTooLarge = errors.New("file too large")

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RemoveAll deletes paths, logging failures. Missing files are not errors.
func RemoveAll(logger *zap.Logger, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove artifact", zap.String("path", p), zap.Error(err))
		}
	}
}
