package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/metrics"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/storage"
	"speech-to-pdf/pkg/tasks"
)

// MultipartOverhead is the slack allowed on top of the file size limit when
// checking a request's declared Content-Length.
const MultipartOverhead = 64 << 10

const maxFieldSize = 4 << 10

// ArtifactKind names a downloadable artifact.
type ArtifactKind string

const (
	KindDOCX ArtifactKind = "docx"
	KindPDF  ArtifactKind = "pdf"
	KindTXT  ArtifactKind = "txt"
	KindSRT  ArtifactKind = "srt"
)

var contentTypes = map[ArtifactKind]string{
	KindDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	KindPDF:  "application/pdf",
	KindTXT:  "text/plain; charset=utf-8",
	KindSRT:  "application/x-subrip",
}

// Artifact is a resolved download.
type Artifact struct {
	Path        string
	Filename    string
	ContentType string
}

type Options struct {
	MaxFileSize int64
	Model       string
	TaskTimeout time.Duration
}

// Service is the request-side half of the conversion lifecycle: admission,
// submission and owner-or-admin access to jobs.
type Service struct {
	db      *sqlx.DB
	layout  storage.Layout
	tasks   tasks.TaskEnqueuer
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(conn *sqlx.DB, layout storage.Layout, enqueuer tasks.TaskEnqueuer, opts Options, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{db: conn, layout: layout, tasks: enqueuer, opts: opts, metrics: m, logger: logger}
}

// Upload admits and stores one multipart upload and submits the job.
// Admission runs credits, then extension, then size, and nothing is written
// before all three pass.
func (s *Service) Upload(ctx context.Context, user models.User, mr *multipart.Reader, declared int64) (models.Conversion, error) {
	if err := CheckCredits(user); err != nil {
		s.metrics.Upload("no_credits")
		return models.Conversion{}, err
	}

	var (
		stored      bool
		fileID      string
		audioPath   string
		original    string
		displayName string
		language    string
	)
	cleanup := func() {
		if stored {
			storage.RemoveAll(s.logger, audioPath)
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			return models.Conversion{}, s.readError(err)
		}
		switch part.FormName() {
		case "file":
			if stored {
				part.Close()
				cleanup()
				return models.Conversion{}, apperror.Validation("Only one file per upload", nil)
			}
			ext, err := CheckExtension(part.FileName())
			if err != nil {
				s.metrics.Upload("bad_type")
				return models.Conversion{}, err
			}
			if err := CheckSize(declared, s.opts.MaxFileSize+MultipartOverhead); err != nil {
				s.metrics.Upload("too_large")
				return models.Conversion{}, err
			}
			original = part.FileName()
			fileID = storage.NewFileID()
			audioPath, _, err = s.layout.SaveAudio(part, fileID, ext, s.opts.MaxFileSize)
			if errors.Is(err, storage.ErrTooLarge) {
				s.metrics.Upload("too_large")
				return models.Conversion{}, errTooLarge()
			}
			if err != nil {
				return models.Conversion{}, s.readError(err)
			}
			stored = true
		case "display_name":
			if displayName, err = readField(part); err != nil {
				cleanup()
				return models.Conversion{}, err
			}
		case "language":
			if language, err = readField(part); err != nil {
				cleanup()
				return models.Conversion{}, err
			}
		}
		part.Close()
	}
	if !stored {
		return models.Conversion{}, apperror.Validation("No file uploaded", map[string]string{"file": "required"})
	}
	if displayName == "" {
		displayName = original
	}

	c, err := s.Submit(ctx, models.Conversion{
		UserID:           user.ID,
		OriginalFilename: original,
		DisplayName:      displayName,
		AudioPath:        &audioPath,
		Language:         optional(language),
		ModelUsed:        optional(s.opts.Model),
	})
	if err != nil {
		cleanup()
		return models.Conversion{}, err
	}
	s.metrics.Upload("accepted")
	s.logger.Info("conversion submitted",
		zap.Int64("conversion_id", c.ID), zap.Int64("user_id", user.ID),
		zap.String("file_id", fileID), zap.String("filename", original))
	return c, nil
}

// Submit records a pending job and queues exactly one processing task for it.
// When the queue is unreachable the record is removed again so no job stays
// pending without a task.
func (s *Service) Submit(ctx context.Context, c models.Conversion) (models.Conversion, error) {
	created, err := db.CreateConversion(ctx, s.db, c)
	if err != nil {
		return models.Conversion{}, err
	}
	task, err := tasks.NewProcessConversionTask(created.ID, s.opts.TaskTimeout)
	if err == nil {
		_, err = s.tasks.EnqueueContext(ctx, task)
	}
	if err != nil {
		s.logger.Error("failed to enqueue conversion", zap.Int64("conversion_id", created.ID), zap.Error(err))
		if delErr := db.DeleteConversion(context.WithoutCancel(ctx), s.db, created.ID); delErr != nil {
			s.logger.Error("failed to remove unqueued conversion", zap.Int64("conversion_id", created.ID), zap.Error(delErr))
		}
		return models.Conversion{}, apperror.Internal("Could not queue the conversion, please retry", err)
	}
	return created, nil
}

// Authorize loads job id for user, applying the owner-or-admin rule.
func (s *Service) Authorize(ctx context.Context, user models.User, id int64) (models.Conversion, error) {
	c, err := db.GetConversion(ctx, s.db, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.Conversion{}, apperror.NotFound("Conversion")
	}
	if err != nil {
		return models.Conversion{}, err
	}
	if !CanAccess(user, c) {
		return models.Conversion{}, apperror.Forbidden("Access denied")
	}
	return c, nil
}

// List pages through the jobs user may see. Admins see every job and may
// search owners by username or email; the search is ignored for others.
func (s *Service) List(ctx context.Context, user models.User, skip, limit int, search string) ([]models.ConversionWithOwner, int, error) {
	filter := db.ConversionFilter{Offset: skip, Limit: limit}
	if user.IsAdmin {
		filter.Search = search
	} else {
		filter.OwnerID = user.ID
	}
	return db.ListConversions(ctx, s.db, filter)
}

func (s *Service) Rename(ctx context.Context, user models.User, id int64, patch models.ConversionPatch) (models.Conversion, error) {
	name := strings.TrimSpace(patch.DisplayName.Value)
	if !patch.DisplayName.Set || name == "" {
		return models.Conversion{}, apperror.Validation("display_name is required", map[string]string{"display_name": "required"})
	}
	if _, err := s.Authorize(ctx, user, id); err != nil {
		return models.Conversion{}, err
	}
	if err := db.UpdateDisplayName(ctx, s.db, id, name); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return models.Conversion{}, apperror.NotFound("Conversion")
		}
		return models.Conversion{}, err
	}
	return s.Authorize(ctx, user, id)
}

// Delete removes the record first, then its files best-effort.
func (s *Service) Delete(ctx context.Context, user models.User, id int64) error {
	c, err := s.Authorize(ctx, user, id)
	if err != nil {
		return err
	}
	if err := db.DeleteConversion(ctx, s.db, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperror.NotFound("Conversion")
		}
		return err
	}
	storage.RemoveAll(s.logger, c.ArtifactPaths()...)
	s.logger.Info("conversion deleted", zap.Int64("conversion_id", id), zap.Int64("deleted_by", user.ID))
	return nil
}

// Download resolves the artifact of kind for job id.
func (s *Service) Download(ctx context.Context, user models.User, id int64, kind ArtifactKind) (Artifact, error) {
	contentType, ok := contentTypes[kind]
	if !ok {
		return Artifact{}, apperror.Validation("Invalid file type", map[string]string{"type": "docx|pdf|txt|srt"})
	}
	c, err := s.Authorize(ctx, user, id)
	if err != nil {
		return Artifact{}, err
	}
	path := artifactPath(c, kind)
	if !storage.Exists(path) {
		return Artifact{}, apperror.NotFound(strings.ToUpper(string(kind)) + " file")
	}
	return Artifact{Path: path, Filename: c.DisplayName + "." + string(kind), ContentType: contentType}, nil
}

// Available reports whether the artifact of kind is on disk.
func Available(c models.Conversion, kind ArtifactKind) bool {
	return storage.Exists(artifactPath(c, kind))
}

func artifactPath(c models.Conversion, kind ArtifactKind) string {
	var p *string
	switch kind {
	case KindDOCX:
		p = c.DocxPath
	case KindPDF:
		p = c.PdfPath
	case KindTXT:
		p = c.TxtPath
	case KindSRT:
		p = c.SrtPath
	}
	if p == nil {
		return ""
	}
	return *p
}

func (s *Service) readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.metrics.Upload("too_large")
		return errTooLarge()
	}
	return apperror.Validation(fmt.Sprintf("Malformed upload: %v", err), nil)
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", apperror.Validation("Malformed upload", nil)
	}
	if len(b) > maxFieldSize {
		return "", apperror.Validation(part.FormName()+" is too long", map[string]string{part.FormName(): "max"})
	}
	return strings.TrimSpace(string(b)), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
