package models

import "time"

// ConversionStatus is the lifecycle state of a conversion job.
type ConversionStatus string

const (
	StatusPending    ConversionStatus = "pending"
	StatusProcessing ConversionStatus = "processing"
	StatusCompleted  ConversionStatus = "completed"
	StatusFailed     ConversionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ConversionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the job state machine:
// pending -> processing -> completed | failed. A pending job that could never be
// dispatched may also go straight to failed.
func CanTransition(from, to ConversionStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Conversion is one upload and the artifacts generated from it.
type Conversion struct {
	ID               int64            `db:"id"`
	UserID           int64            `db:"user_id"`
	OriginalFilename string           `db:"original_filename"`
	DisplayName      string           `db:"display_name"`
	AudioPath        *string          `db:"audio_path"`
	JSONPath         *string          `db:"json_path"`
	TxtPath          *string          `db:"txt_path"`
	DocxPath         *string          `db:"docx_path"`
	PdfPath          *string          `db:"pdf_path"`
	SrtPath          *string          `db:"srt_path"`
	Duration         *float64         `db:"duration"`
	Language         *string          `db:"language"`
	ModelUsed        *string          `db:"model_used"`
	Status           ConversionStatus `db:"status"`
	ErrorMessage     *string          `db:"error_message"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

// ArtifactPaths returns every file path recorded on the job, audio included.
func (c *Conversion) ArtifactPaths() []string {
	var paths []string
	for _, p := range []*string{c.AudioPath, c.JSONPath, c.TxtPath, c.DocxPath, c.PdfPath, c.SrtPath} {
		if p != nil && *p != "" {
			paths = append(paths, *p)
		}
	}
	return paths
}

// ConversionWithOwner is a listing row joined with the owning account.
type ConversionWithOwner struct {
	Conversion
	OwnerUsername string  `db:"owner_username"`
	OwnerEmail    string  `db:"owner_email"`
	OwnerCredits  float64 `db:"owner_credits"`
}

// ConversionResult holds everything written when a job completes.
type ConversionResult struct {
	JSONPath  string
	TxtPath   string
	DocxPath  string
	PdfPath   string
	SrtPath   string
	Duration  float64
	Language  string
	ModelUsed string
}

// ConversionPatch lists the user-editable fields of a job.
type ConversionPatch struct {
	DisplayName Field[string] `json:"display_name"`
}
