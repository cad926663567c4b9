// Package feed holds the client-side view logic: filtering the fetched feed
// and checking an upload before it is sent.
package feed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

// Filter narrows a feed. Zero values match everything.
type Filter struct {
	Year     int
	Semester int
	// Subject matches as a case-insensitive substring.
	Subject string
}

// Match reports whether n passes the filter.
func (f Filter) Match(n *model.Note) bool {
	if f.Year != 0 && n.Year != f.Year {
		return false
	}
	if f.Semester != 0 && n.Semester != f.Semester {
		return false
	}
	if s := strings.TrimSpace(f.Subject); s != "" && !strings.Contains(strings.ToLower(n.Subject), strings.ToLower(s)) {
		return false
	}
	return true
}

// Apply returns the notes matching f, keeping the feed's order.
func Apply(notes []*model.Note, f Filter) []*model.Note {
	out := make([]*model.Note, 0, len(notes))
	for _, n := range notes {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// SemesterOptions lists the semesters selectable for year.
func SemesterOptions(year int) []int {
	return model.SemestersForYear(year)
}

// ErrUnsupportedType is returned for files outside the extension allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrTooLarge is returned for files over the size limit.
var ErrTooLarge = errors.New("file too large")

// CheckFile validates one file before upload.
func CheckFile(name string, size int64, allowed []string, maxSize int64) error {
	if !model.AllowedExtension(name, allowed) {
		return fmt.Errorf("%s: %w (allowed: %s)", name, ErrUnsupportedType, strings.Join(allowed, ", "))
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%s: %w (%d bytes, limit %d)", name, ErrTooLarge, size, maxSize)
	}
	return nil
}

// CheckClassification validates the year, semester and subject of an upload.
func CheckClassification(year, semester int, subject string) error {
	if year < model.MinYear || year > model.MaxYear {
		return fmt.Errorf("year must be between %d and %d", model.MinYear, model.MaxYear)
	}
	if !model.ValidSemester(year, semester) {
		return fmt.Errorf("semester must be one of %v for year %d", SemesterOptions(year), year)
	}
	if strings.TrimSpace(subject) == "" {
		return errors.New("subject is required")
	}
	return nil
}
