// Package notes implements the note operations behind the HTTP API: upload,
// feed, like toggling, owner deletion, download, preview and the orphan blob
// sweep. Callers pass identities that were already verified by the session
// layer.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/NoteDrop/internal/blobstore"
	"github.com/dharsanguruparan/NoteDrop/internal/model"
	"github.com/dharsanguruparan/NoteDrop/internal/preview"
)

var (
	// ErrNotFound is returned for unknown note ids.
	ErrNotFound = model.ErrNotFound
	// ErrForbidden is returned when the caller does not own the note.
	ErrForbidden = errors.New("you can only delete your own uploads")
	// ErrNoFiles is returned for an upload without file parts.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrFileTooLarge is returned when a file exceeds the per-file limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedPreview is returned when previewing a non-PDF note.
	ErrUnsupportedPreview = errors.New("preview is only available for PDF notes")
	// ErrPreviewTooLarge is returned when a PDF is too big to extract in memory.
	ErrPreviewTooLarge = errors.New("file too large to preview")
	// ErrLocalStore is returned by Sweep when the note store lives only in this
	// process. Another process may hold the records that reference the blobs.
	ErrLocalStore = errors.New("orphan sweep needs a shared note store")
	// ErrUploadFailed wraps a storage failure in the middle of an upload batch.
	ErrUploadFailed = errors.New("upload failed")
)

// ValidationError reports a bad upload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store persists note records. Both the Postgres repository and the in-memory
// store satisfy it.
type Store interface {
	Create(ctx context.Context, note *model.Note) error
	List(ctx context.Context) ([]*model.Note, error)
	Get(ctx context.Context, id string) (*model.Note, error)
	ToggleLike(ctx context.Context, id, email string) (*model.Note, error)
	DeleteOwned(ctx context.Context, id, ownerEmail string) error
	StorageKeys(ctx context.Context) (map[string]struct{}, error)
}

// BlobStore persists file content.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (blobstore.Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]blobstore.Object, error)
}

// Presigner is implemented by blob stores that can hand out direct download
// URLs.
type Presigner interface {
	PresignDownload(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
}

// Options tunes a Service.
type Options struct {
	AllowedExtensions []string
	MaxFileSize       int64
	MaxFiles          int
	SignedURLTTL      time.Duration
	PreviewMaxPages   int
	// PreviewMaxBytes caps how much of a PDF Preview reads into memory.
	PreviewMaxBytes   int64
	// LocalStore marks an in-process store that other processes cannot see.
	// Sweep refuses to run against it.
	LocalStore        bool
}

const defaultPreviewMaxBytes = 20 << 20

// Service coordinates the record store and the blob store.
type Service struct {
	store   Store
	blobs   BlobStore
	cache   *preview.Cache
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	newUUID func() string

	stampMu   sync.Mutex
	lastStamp time.Time
}

// NewService wires a Service. cache may be nil to disable preview caching.
func NewService(store Store, blobs BlobStore, cache *preview.Cache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		blobs:   blobs,
		cache:   cache,
		opts:    opts,
		logger:  logger.With(slog.String("component", "notes")),
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadRequest carries the classification shared by every file in a batch.
// Email is the verified uploader.
type UploadRequest struct {
	Year        int
	Semester    int
	Subject     string
	Description string
	UploadedBy  string
	Email       string
	Files       []UploadFile
}

func (s *Service) validate(req *UploadRequest) error {
	if len(req.Files) == 0 {
		return ErrNoFiles
	}
	if s.opts.MaxFiles > 0 && len(req.Files) > s.opts.MaxFiles {
		return invalid("file", "at most %d files per upload", s.opts.MaxFiles)
	}
	if req.Year < model.MinYear || req.Year > model.MaxYear {
		return invalid("year", "must be between %d and %d", model.MinYear, model.MaxYear)
	}
	if !model.ValidSemester(req.Year, req.Semester) {
		return invalid("semester", "must be one of %v for year %d", model.SemestersForYear(req.Year), req.Year)
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return invalid("subject", "is required")
	}
	if req.Email == "" {
		return invalid("uploadedByEmail", "is required")
	}
	for _, f := range req.Files {
		if !model.AllowedExtension(f.Name, s.opts.AllowedExtensions) {
			return invalid("file", "%q: only %s files are allowed", f.Name, strings.Join(s.opts.AllowedExtensions, ", "))
		}
		if s.opts.MaxFileSize > 0 && f.Size > s.opts.MaxFileSize {
			return fmt.Errorf("%q: %w", f.Name, ErrFileTooLarge)
		}
	}
	return nil
}

// Upload stores each file and then its record, in order. The whole request is
// validated before anything is written. A storage failure stops the batch:
// notes created before it are kept and returned alongside an error wrapping
// ErrUploadFailed.
func (s *Service) Upload(ctx context.Context, req UploadRequest) ([]*model.Note, error) {
	if err := s.validate(&req); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	uploader := strings.TrimSpace(req.UploadedBy)
	if uploader == "" {
		uploader = model.AnonymousUploader
	}

	created := make([]*model.Note, 0, len(req.Files))
	for _, f := range req.Files {
		note, err := s.storeFile(ctx, req, uploader, f)
		if err != nil {
			uploadsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("upload failed",
				slog.String("file", f.Name),
				slog.Int("stored", len(created)),
				slog.String("error", err.Error()),
			)
			return created, fmt.Errorf("%w: %s: %v", ErrUploadFailed, f.Name, err)
		}
		uploadsTotal.WithLabelValues("stored").Inc()
		created = append(created, note)
	}
	s.logger.Info("notes uploaded",
		slog.Int("count", len(created)),
		slog.String("email", req.Email),
	)
	return created, nil
}

// uploadTime never goes backwards, even if the wall clock does.
func (s *Service) uploadTime() time.Time {
	now := s.now().UTC()
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

func (s *Service) storeFile(ctx context.Context, req UploadRequest, uploader string, f UploadFile) (*model.Note, error) {
	now := s.uploadTime()
	contentType := f.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = model.ContentTypeFor(f.Name)
	}
	obj, err := s.blobs.Put(ctx, blobstore.ObjectName(f.Name, now), f.Content, f.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	note := &model.Note{
		ID:              s.newUUID(),
		FileName:        f.Name,
		FilePath:        obj.URL,
		StorageKey:      obj.Key,
		FileType:        contentType,
		FileSize:        obj.Size,
		Year:            req.Year,
		Semester:        req.Semester,
		Subject:         req.Subject,
		Description:     strings.TrimSpace(req.Description),
		UploadedBy:      uploader,
		UploadedByEmail: req.Email,
		UploadedAt:      now,
		LikedBy:         []string{},
	}
	// The blob stays behind if this fails; the sweep reclaims it.
	if err := s.store.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return note, nil
}

// Feed returns every note, newest first.
func (s *Service) Feed(ctx context.Context) ([]*model.Note, error) {
	notes, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// Get returns one note.
func (s *Service) Get(ctx context.Context, id string) (*model.Note, error) {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	return note, nil
}

// ToggleLike adds email's like if absent, otherwise removes it.
func (s *Service) ToggleLike(ctx context.Context, id, email string) (*model.Note, error) {
	note, err := s.store.ToggleLike(ctx, id, email)
	if err != nil {
		return nil, fmt.Errorf("toggle like on %s: %w", id, err)
	}
	action := "unliked"
	if note.LikedByEmail(email) {
		action = "liked"
	}
	likesToggledTotal.WithLabelValues(action).Inc()
	return note, nil
}

// Delete removes a note owned by email. The blob is removed first on a best
// effort basis; a blob failure is logged and the record is still deleted.
func (s *Service) Delete(ctx context.Context, id, email string) error {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get note %s: %w", id, err)
	}
	if note.UploadedByEmail != email {
		return ErrForbidden
	}
	if err := s.blobs.Delete(ctx, note.StorageKey); err != nil {
		blobDeleteFailuresTotal.Inc()
		s.logger.Warn("blob delete failed",
			slog.String("note_id", id),
			slog.String("key", note.StorageKey),
			slog.String("error", err.Error()),
		)
	}
	if err := s.store.DeleteOwned(ctx, id, email); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if s.cache != nil {
		s.cache.Evict(id)
	}
	deletesTotal.Inc()
	s.logger.Info("note deleted", slog.String("note_id", id))
	return nil
}

// Download describes how to hand a note's file to the client: either a
// RedirectURL or a Body the caller must close.
type Download struct {
	Note        *model.Note
	RedirectURL string
	Body        io.ReadCloser
}

// Download resolves a note's file.
func (s *Service) Download(ctx context.Context, id string) (*Download, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, ok := s.blobs.(Presigner); ok {
		url, err := p.PresignDownload(ctx, note.StorageKey, note.FileName, s.opts.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", id, err)
		}
		return &Download{Note: note, RedirectURL: url}, nil
	}
	body, err := s.blobs.Open(ctx, note.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open blob for %s: %w", id, err)
	}
	return &Download{Note: note, Body: body}, nil
}

// Preview returns the extracted text of a PDF note.
func (s *Service) Preview(ctx context.Context, id string) (preview.Result, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return preview.Result{}, err
	}
	if !note.IsPDF() {
		return preview.Result{}, ErrUnsupportedPreview
	}
	if s.cache != nil {
		if res, ok := s.cache.Get(id); ok {
			return res, nil
		}
	}
	limit := s.opts.PreviewMaxBytes
	if limit <= 0 {
		limit = defaultPreviewMaxBytes
	}
	if note.FileSize > limit {
		return preview.Result{}, fmt.Errorf("%s: %w", id, ErrPreviewTooLarge)
	}
	body, err := s.blobs.Open(ctx, note.StorageKey)
	if err != nil {
		return preview.Result{}, fmt.Errorf("open blob for %s: %w", id, err)
	}
	defer body.Close()
	res, err := preview.ExtractFromReader(body, limit, s.opts.PreviewMaxPages)
	if err != nil {
		if errors.Is(err, preview.ErrTooLarge) {
			return preview.Result{}, fmt.Errorf("%s: %w", id, ErrPreviewTooLarge)
		}
		return preview.Result{}, fmt.Errorf("extract %s: %w", id, err)
	}
	if s.cache != nil {
		s.cache.Set(id, res)
	}
	return res, nil
}
