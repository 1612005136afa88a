package conversion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/metrics"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/notify"
	"speech-to-pdf/internal/storage"
	"speech-to-pdf/internal/transcribe"
)

// StaleMessage is recorded on jobs the reaper fails.
const StaleMessage = "conversion timed out"

// Transcriber produces the artifacts of one job. *transcribe.Adapter
// implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error)
}

// Orchestrator drives a dequeued job through processing to a terminal state
// and debits the owner on success.
type Orchestrator struct {
	db             *sqlx.DB
	layout         storage.Layout
	transcriber    Transcriber
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	logger         *zap.Logger
	creditsWarning float64
	staleAfter     time.Duration
	now            func() time.Time
}

type OrchestratorOptions struct {
	CreditsWarning float64
	StaleAfter     time.Duration
}

func NewOrchestrator(conn *sqlx.DB, layout storage.Layout, transcriber Transcriber, notifier notify.Notifier, m *metrics.Metrics, opts OrchestratorOptions, logger *zap.Logger) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Orchestrator{
		db:             conn,
		layout:         layout,
		transcriber:    transcriber,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		creditsWarning: opts.CreditsWarning,
		staleAfter:     opts.StaleAfter,
		now:            time.Now,
	}
}

// Process runs job id. Adapter failures are recorded on the job and are not
// returned; an error means the job could not be driven at all.
func (o *Orchestrator) Process(ctx context.Context, id int64) error {
	logger := o.logger.With(zap.Int64("conversion_id", id))

	job, err := db.GetConversion(ctx, o.db, id)
	if errors.Is(err, db.ErrNotFound) {
		logger.Warn("conversion vanished before processing")
		return nil
	}
	if err != nil {
		err = fmt.Errorf("failed to load conversion %d: %w", id, err)
		o.abandon(ctx, id, err)
		return err
	}
	if err := db.MarkProcessing(ctx, o.db, id); err != nil {
		if errors.Is(err, db.ErrTransition) {
			logger.Info("conversion already picked up", zap.String("status", string(job.Status)))
			return nil
		}
		o.abandon(ctx, id, err)
		return err
	}
	owner, err := db.GetUserByID(ctx, o.db, job.UserID)
	if err != nil {
		o.fail(ctx, job, models.User{}, fmt.Errorf("owner lookup: %w", err), time.Now())
		return nil
	}

	start := time.Now()
	req, err := o.request(job)
	if err != nil {
		o.fail(ctx, job, owner, err, start)
		return nil
	}
	logger.Info("conversion started", zap.String("audio", req.AudioPath), zap.String("language", req.Language))

	res, err := o.transcriber.Transcribe(ctx, req)
	if err == nil {
		err = verify(res)
	}
	if err != nil {
		o.fail(ctx, job, owner, err, start)
		return nil
	}

	var debited, balance float64
	txCtx := context.WithoutCancel(ctx)
	err = db.WithTx(txCtx, o.db, func(tx *sqlx.Tx) error {
		if err := db.MarkCompleted(txCtx, tx, id, res.ConversionResult()); err != nil {
			return err
		}
		if res.Duration <= 0 {
			balance = owner.Credits
			return nil
		}
		// the owner's admin flag is read at commit, not from the snapshot above
		debited = res.Duration / 60
		left, err := db.DebitCredits(txCtx, tx, owner.ID, debited)
		if errors.Is(err, db.ErrNotFound) {
			debited, balance = 0, owner.Credits
			return nil
		}
		balance = left
		return err
	})
	if err != nil {
		storage.RemoveAll(logger, res.JSONPath, res.TXTPath, res.DOCXPath, res.PDFPath, res.SRTPath)
		o.fail(ctx, job, owner, fmt.Errorf("failed to record result: %w", err), start)
		return nil
	}

	elapsed := time.Since(start)
	o.metrics.ConversionFinished(string(models.StatusCompleted), elapsed, res.Duration)
	o.metrics.CreditsDebited(debited)
	logger.Info("conversion completed",
		zap.Float64("duration", res.Duration),
		zap.Float64("debited_minutes", debited),
		zap.Float64("balance", balance),
		zap.Duration("elapsed", elapsed))

	o.notify(logger, "completed", o.notifier.ConversionCompleted(ctx, owner.Email, job.DisplayName, res.Duration/60))
	if debited > 0 && balance < o.creditsWarning {
		o.notify(logger, "low_credits", o.notifier.LowCredits(ctx, owner.Email, balance))
	}
	return nil
}

// FailStale fails every pending or processing job that has not moved for
// longer than the configured stale window and returns how many were failed.
func (o *Orchestrator) FailStale(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-o.staleAfter)
	stale, err := db.ListStaleConversions(ctx, o.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale conversions: %w", err)
	}
	failed := 0
	for _, job := range stale {
		mark := db.MarkFailed
		if job.Status == models.StatusPending {
			mark = db.MarkAbandoned
		}
		err := mark(ctx, o.db, job.ID, StaleMessage)
		if errors.Is(err, db.ErrTransition) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
		o.metrics.ConversionFinished(string(models.StatusFailed), o.now().Sub(job.UpdatedAt), 0)
		o.logger.Warn("stale conversion failed", zap.Int64("conversion_id", job.ID), zap.Time("updated_at", job.UpdatedAt))
	}
	return failed, nil
}

func (o *Orchestrator) request(job models.Conversion) (transcribe.Request, error) {
	if job.AudioPath == nil || *job.AudioPath == "" {
		return transcribe.Request{}, errors.New("conversion has no audio file")
	}
	audio := *job.AudioPath
	fileID := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	req := transcribe.Request{
		AudioPath:   audio,
		OutputBase:  o.layout.OutputBase(fileID),
		DisplayName: job.DisplayName,
	}
	if job.Language != nil {
		req.Language = *job.Language
	}
	if job.ModelUsed != nil {
		req.Model = *job.ModelUsed
	}
	return req, nil
}

// fail records cause on the job. It runs detached from ctx so an expired
// task deadline still lands in the job record.
func (o *Orchestrator) fail(ctx context.Context, job models.Conversion, owner models.User, cause error, start time.Time) {
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With(zap.Int64("conversion_id", job.ID))
	if err := db.MarkFailed(ctx, o.db, job.ID, cause.Error()); err != nil {
		logger.Error("failed to mark conversion failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	o.metrics.ConversionFinished(string(models.StatusFailed), time.Since(start), 0)
	logger.Error("conversion failed", zap.Error(cause))
	if owner.Email != "" {
		o.notify(logger, "failed", o.notifier.ConversionFailed(ctx, owner.Email, job.DisplayName, cause.Error()))
	}
}

// abandon tries to fail a job that could not be moved to processing. When the
// store is down this fails too and the job is left to FailStale.
func (o *Orchestrator) abandon(ctx context.Context, id int64, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With(zap.Int64("conversion_id", id))
	if err := db.MarkAbandoned(ctx, o.db, id, cause.Error()); err != nil {
		logger.Error("failed to mark conversion failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	o.metrics.ConversionFinished(string(models.StatusFailed), 0, 0)
	logger.Error("conversion could not be started", zap.Error(cause))
}

func (o *Orchestrator) notify(logger *zap.Logger, kind string, err error) {
	if err != nil {
		logger.Warn("notification not sent", zap.String("kind", kind), zap.Error(err))
	}
}

func verify(res transcribe.Result) error {
	for _, p := range []string{res.JSONPath, res.TXTPath, res.DOCXPath, res.PDFPath} {
		if !storage.Exists(p) {
			return fmt.Errorf("artifact %s was not written", filepath.Base(p))
		}
	}
	return nil
}
