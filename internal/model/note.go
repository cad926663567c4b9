// Package model contains the Note entity shared across packages.
package model

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Note holds metadata about an uploaded study-material file.
type Note struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	// FilePath is the retrieval path (disk) or URL (object store).
	FilePath string `json:"filePath"`
	// StorageKey identifies the blob in its store; kept out of JSON so clients
	// never build paths from it.
	StorageKey string `json:"-"`
	FileType   string `json:"fileType"`
	FileSize   int64  `json:"fileSize"`

	Year        int    `json:"year"`
	Semester    int    `json:"semester"`
	Subject     string `json:"subject"`
	Description string `json:"description"`

	UploadedBy      string    `json:"uploadedBy"`
	UploadedByEmail string    `json:"uploadedByEmail"`
	UploadedAt      time.Time `json:"uploadedAt"`

	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

// AnonymousUploader is recorded when no display name is supplied.
const AnonymousUploader = "Anonymous"

// LikedByEmail reports whether email currently likes the note.
func (n *Note) LikedByEmail(email string) bool {
	for _, e := range n.LikedBy {
		if e == email {
			return true
		}
	}
	return false
}

// ToggleLike flips email's like and keeps Likes equal to len(LikedBy).
// It returns true when the toggle added a like.
func (n *Note) ToggleLike(email string) bool {
	if n.LikedByEmail(email) {
		kept := make([]string, 0, len(n.LikedBy))
		for _, e := range n.LikedBy {
			if e != email {
				kept = append(kept, e)
			}
		}
		n.LikedBy = kept
		n.Likes = len(kept)
		return false
	}
	n.LikedBy = append(n.LikedBy, email)
	n.Likes = len(n.LikedBy)
	return true
}

// Clone returns a deep copy so callers can't alias LikedBy.
func (n *Note) Clone() *Note {
	c := *n
	c.LikedBy = make([]string, len(n.LikedBy))
	copy(c.LikedBy, n.LikedBy)
	return &c
}

// Year bounds.
const (
	MinYear = 1
	MaxYear = 4
)

// SemestersForYear returns the two semesters taught in year: 2y-1 and 2y.
// Out of range years have no semesters.
func SemestersForYear(year int) []int {
	if year < MinYear || year > MaxYear {
		return nil
	}
	return []int{2*year - 1, 2 * year}
}

// ValidSemester reports whether semester belongs to year.
func ValidSemester(year, semester int) bool {
	for _, s := range SemestersForYear(year) {
		if s == semester {
			return true
		}
	}
	return false
}

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// AllowedExtension reports whether name ends with one of allowed.
func AllowedExtension(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// ContentTypeFor guesses a MIME type from the extension for parts that came
// without a Content-Type header.
func ContentTypeFor(name string) string {
	switch Extension(name) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// IsPDF reports whether the note holds a PDF document.
func (n *Note) IsPDF() bool {
	return strings.HasPrefix(n.FileType, "application/pdf") || Extension(n.FileName) == ".pdf"
}

// ErrNotFound is returned by note stores when no note has the requested id.
var ErrNotFound = errors.New("note not found")
