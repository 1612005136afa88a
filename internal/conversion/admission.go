package conversion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/models"
)

// AllowedExtensions lists the accepted audio and video containers.
var AllowedExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".aac", ".ogg", ".opus", ".webm", ".mp4", ".mkv", ".mov"}

// CheckCredits rejects non-admin accounts without a positive balance.
func CheckCredits(u models.User) error {
	if u.HasCredits() {
		return nil
	}
	return apperror.New(apperror.KindInsufficientCredits, "Insufficient credits. Please contact administrator to add more credits.")
}

// CheckExtension returns the lower-cased extension of the client filename when
// it is on the allow-list.
func CheckExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !lo.Contains(AllowedExtensions, ext) {
		if ext == "" {
			ext = "(none)"
		}
		return "", apperror.Validation(fmt.Sprintf("File type %s not supported", ext), map[string]string{"file": "extension"})
	}
	return ext, nil
}

// CheckSize rejects sizes over limit. Unknown sizes (negative) pass.
func CheckSize(size, limit int64) error {
	if size > limit {
		return errTooLarge()
	}
	return nil
}

func errTooLarge() error {
	return apperror.New(apperror.KindTooLarge, "File too large")
}

// CanAccess is the single access rule for a job: its owner or any admin.
func CanAccess(u models.User, c models.Conversion) bool {
	return u.IsAdmin || c.UserID == u.ID
}
