package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"speech-to-pdf/internal/models"
)

// ErrTransition is returned when a conditional status update finds the job in
// another state than expected (or gone).
var ErrTransition = errors.New("conversion is not in the expected state")

const conversionColumns = "id, user_id, original_filename, display_name, audio_path, json_path, txt_path, docx_path, pdf_path, srt_path, duration, language, model_used, status, error_message, created_at, updated_at"

// ConversionFilter scopes ListConversions. OwnerID 0 lists every owner.
type ConversionFilter struct {
	OwnerID int64
	Search  string
	Offset  int
	Limit   int
}

// CreateConversion inserts a pending job.
func CreateConversion(ctx context.Context, q Queryer, c models.Conversion) (models.Conversion, error) {
	now := time.Now().UTC()
	query := q.Rebind(`
		INSERT INTO conversions (user_id, original_filename, display_name, audio_path, language, model_used, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + conversionColumns)
	created := models.Conversion{}
	err := q.GetContext(ctx, &created, query,
		c.UserID, c.OriginalFilename, c.DisplayName, c.AudioPath, c.Language, c.ModelUsed, models.StatusPending, now, now)
	if err != nil {
		return models.Conversion{}, fmt.Errorf("failed to insert conversion for user %d: %w", c.UserID, err)
	}
	return created, nil
}

func GetConversion(ctx context.Context, q Queryer, id int64) (models.Conversion, error) {
	conversion := models.Conversion{}
	err := q.GetContext(ctx, &conversion, q.Rebind("SELECT "+conversionColumns+" FROM conversions WHERE id = ?"), id)
	return conversion, notFound(err)
}

// ListConversions returns one page of jobs, newest first, with the owning
// account joined in, and the total number of matching jobs.
func ListConversions(ctx context.Context, q Queryer, f ConversionFilter) ([]models.ConversionWithOwner, int, error) {
	var where []string
	var args []interface{}
	if f.OwnerID != 0 {
		where = append(where, "c.user_id = ?")
		args = append(args, f.OwnerID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := likePattern(term)
		where = append(where, `(LOWER(u.username) LIKE ? ESCAPE '\' OR LOWER(u.email) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	from := " FROM conversions c JOIN users u ON u.id = c.user_id"
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*)"+from), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversions: %w", err)
	}

	query := "SELECT " + prefixed("c", conversionColumns) +
		", u.username AS owner_username, u.email AS owner_email, u.credits AS owner_credits" +
		from + " ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?"
	rows := []models.ConversionWithOwner{}
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list conversions: %w", err)
	}
	return rows, total, nil
}

// ListConversionsByUser returns every job of one owner, used when the owner is
// deleted and the artifacts have to go with it.
func ListConversionsByUser(ctx context.Context, q Queryer, userID int64) ([]models.Conversion, error) {
	conversions := []models.Conversion{}
	query := q.Rebind("SELECT " + conversionColumns + " FROM conversions WHERE user_id = ?")
	err := q.SelectContext(ctx, &conversions, query, userID)
	return conversions, err
}

// ListStaleConversions returns non-terminal jobs that have not moved since
// before cutoff.
func ListStaleConversions(ctx context.Context, q Queryer, cutoff time.Time) ([]models.Conversion, error) {
	conversions := []models.Conversion{}
	query := q.Rebind("SELECT " + conversionColumns + " FROM conversions WHERE status IN (?, ?) AND updated_at < ? ORDER BY id")
	err := q.SelectContext(ctx, &conversions, query, models.StatusPending, models.StatusProcessing, cutoff.UTC())
	return conversions, err
}

func UpdateDisplayName(ctx context.Context, q Queryer, id int64, name string) error {
	query := q.Rebind("UPDATE conversions SET display_name = ?, updated_at = ? WHERE id = ?")
	res, err := q.ExecContext(ctx, query, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversion %d: %w", id, err)
	}
	return expectRow(res)
}

func DeleteConversion(ctx context.Context, q Queryer, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind("DELETE FROM conversions WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversion %d: %w", id, err)
	}
	return expectRow(res)
}

// MarkProcessing moves a pending job to processing.
func MarkProcessing(ctx context.Context, q Queryer, id int64) error {
	return transition(ctx, q, id, models.StatusPending, models.StatusProcessing, "")
}

// MarkCompleted moves a processing job to completed and records its artifacts.
func MarkCompleted(ctx context.Context, q Queryer, id int64, r models.ConversionResult) error {
	query := q.Rebind(`
		UPDATE conversions
		SET status = ?, json_path = ?, txt_path = ?, docx_path = ?, pdf_path = ?, srt_path = ?,
			duration = ?, language = ?, model_used = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := q.ExecContext(ctx, query,
		models.StatusCompleted, r.JSONPath, r.TxtPath, r.DocxPath, r.PdfPath, nullable(r.SrtPath),
		r.Duration, nullable(r.Language), r.ModelUsed, time.Now().UTC(),
		id, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete conversion %d: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return ErrTransition
	}
	return nil
}

// MarkFailed moves a processing job to failed with message.
func MarkFailed(ctx context.Context, q Queryer, id int64, message string) error {
	return transition(ctx, q, id, models.StatusProcessing, models.StatusFailed, message)
}

// MarkAbandoned fails a job that never left pending.
func MarkAbandoned(ctx context.Context, q Queryer, id int64, message string) error {
	return transition(ctx, q, id, models.StatusPending, models.StatusFailed, message)
}

func transition(ctx context.Context, q Queryer, id int64, from, to models.ConversionStatus, message string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s: %w", from, to, ErrTransition)
	}
	query := q.Rebind("UPDATE conversions SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?")
	res, err := q.ExecContext(ctx, query, to, nullable(message), time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to move conversion %d to %s: %w", id, to, err)
	}
	if err := expectRow(res); err != nil {
		return ErrTransition
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
