package images

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shelfkeeper/library-server/internal/errors"
)

// Upload is an image file as received from a caller.
type Upload struct {
	Filename string
	Data     []byte
}

// UploadRules limits what may be stored as a category image.
type UploadRules struct {
	MaxSize           int64    // bytes
	AllowedExtensions []string // lower-case, dot-prefixed
}

// Check returns a VALIDATION error listing every rule the upload breaks.
func (r UploadRules) Check(u Upload) error {
	details := make(map[string]string)
	var messages []string

	if len(u.Data) == 0 {
		details["image"] = "is required"
		messages = append(messages, "image is required")
	} else if int64(len(u.Data)) > r.MaxSize {
		msg := fmt.Sprintf("must not exceed %d bytes", r.MaxSize)
		details["image"] = msg
		messages = append(messages, "image "+msg)
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	if !slices.Contains(r.AllowedExtensions, ext) {
		msg := "must be one of: " + strings.Join(r.AllowedExtensions, " ")
		details["image_type"] = msg
		messages = append(messages, "image_type "+msg)
	}

	if len(messages) == 0 {
		return nil
	}
	return errors.ValidationWithDetails(strings.Join(messages, ", "), details)
}
