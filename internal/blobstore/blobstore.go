// Package blobstore names uploaded files and stores them on local disk.
// The S3 backend lives in package s3storage and shares Object and ObjectName.
package blobstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when a blob key does not exist.
var ErrNotFound = errors.New("blob not found")

// Object describes a stored blob.
type Object struct {
	// Key identifies the blob inside its store.
	Key string
	// URL is the retrieval path or absolute URL recorded as the note's filePath.
	URL     string
	Size    int64
	ModTime time.Time
}

const maxBaseLen = 80

// ObjectName builds a timestamp-prefixed, filesystem and URL safe name for an
// uploaded file: "<unix millis>-<sanitized base><ext>". Two uploads of the same
// file name in the same millisecond collide; stores handle that best-effort.
func ObjectName(original string, now time.Time) string {
	original = filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.Trim(sanitize(strings.TrimSuffix(original, filepath.Ext(original))), ".")
	if base == "" {
		base = "file"
	}
	if runes := []rune(base); len(runes) > maxBaseLen {
		base = string(runes[:maxBaseLen])
	}
	if ext = sanitize(strings.TrimPrefix(ext, ".")); ext != "" {
		ext = "." + ext
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), base, ext)
}

// sanitize keeps letters, digits, dot, dash and underscore; spaces become
// dashes.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	return b.String()
}
