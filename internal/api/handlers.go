package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/NoteDrop/internal/blobstore"
	"github.com/dharsanguruparan/NoteDrop/internal/model"
	"github.com/dharsanguruparan/NoteDrop/internal/notes"
	"github.com/dharsanguruparan/NoteDrop/internal/session"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temp files.
const multipartMemory = 32 << 20

type sessionRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// identityRequest is the optional body of like and delete. When Email is set
// it must match the session.
type identityRequest struct {
	Email string `json:"email"`
}

type uploadResponse struct {
	Success bool          `json:"success"`
	Notes   []*model.Note `json:"notes"`
}

type likeResponse struct {
	Success bool     `json:"success"`
	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type previewResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Pages     int    `json:"pages"`
	Truncated bool   `json:"truncated"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, expires, err := s.sessions.Issue(session.Principal{Name: req.Name, Email: req.Email})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: expires.UTC()})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	list, err := s.notes.Feed(r.Context())
	if err != nil {
		s.internalError(w, "list notes", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondUploadError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		respondUploadError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		respondUploadError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if claimed := r.FormValue("uploadedByEmail"); claimed != "" && !sameEmail(claimed, principal.Email) {
		respondUploadError(w, http.StatusForbidden, "uploadedByEmail does not match the session")
		return
	}

	files := make([]notes.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.internalError(w, "open multipart file", err)
			return
		}
		defer f.Close()
		files = append(files, notes.UploadFile{
			Name:        fh.Filename,
			ContentType: partContentType(fh),
			Size:        fh.Size,
			Content:     f,
		})
	}

	uploadedBy := r.FormValue("uploadedBy")
	if strings.TrimSpace(uploadedBy) == "" {
		uploadedBy = principal.Name
	}
	created, err := s.notes.Upload(r.Context(), notes.UploadRequest{
		Year:        formInt(r, "year"),
		Semester:    formInt(r, "semester"),
		Subject:     r.FormValue("subject"),
		Description: r.FormValue("description"),
		UploadedBy:  uploadedBy,
		Email:       principal.Email,
		Files:       files,
	})
	if err != nil {
		var verr *notes.ValidationError
		switch {
		case errors.Is(err, notes.ErrNoFiles):
			respondUploadError(w, http.StatusBadRequest, "No files uploaded")
		case errors.As(err, &verr):
			respondUploadError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, notes.ErrFileTooLarge):
			respondUploadError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			// Notes stored before the failure stay; the client refetches the feed.
			respondUploadError(w, http.StatusInternalServerError, "Upload failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, uploadResponse{Success: true, Notes: created})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	email, ok := s.actingEmail(w, r)
	if !ok {
		return
	}
	note, err := s.notes.ToggleLike(r.Context(), chi.URLParam(r, "id"), email)
	if err != nil {
		s.noteError(w, "toggle like", err)
		return
	}
	respondJSON(w, http.StatusOK, likeResponse{Success: true, Likes: note.Likes, LikedBy: note.LikedBy})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	email, ok := s.actingEmail(w, r)
	if !ok {
		return
	}
	if err := s.notes.Delete(r.Context(), chi.URLParam(r, "id"), email); err != nil {
		s.noteError(w, "delete note", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Note deleted successfully"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := s.notes.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.noteError(w, "download note", err)
		return
	}
	if dl.RedirectURL != "" {
		http.Redirect(w, r, dl.RedirectURL, http.StatusFound)
		return
	}
	defer dl.Body.Close()
	w.Header().Set("Content-Type", dl.Note.FileType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Note.FileName}))
	if dl.Note.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Note.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		s.logger.Warn("download interrupted", slog.String("note_id", dl.Note.ID), slog.String("error", err.Error()))
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.notes.Preview(r.Context(), id)
	if err != nil {
		s.noteError(w, "preview note", err)
		return
	}
	respondJSON(w, http.StatusOK, previewResponse{ID: id, Text: res.Text, Pages: res.Pages, Truncated: res.Truncated})
}

// actingEmail returns the session email after checking that an email sent in
// the body, if any, agrees with it.
func (s *Server) actingEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal := principalFrom(r.Context())
	var req identityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Email != "" && !sameEmail(req.Email, principal.Email) {
		respondError(w, http.StatusForbidden, "email does not match the session")
		return "", false
	}
	return principal.Email, true
}

// noteError maps service errors for single-note routes.
func (s *Server) noteError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		respondError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, notes.ErrForbidden):
		respondError(w, http.StatusForbidden, "You can only delete your own uploads")
	case errors.Is(err, notes.ErrUnsupportedPreview):
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, notes.ErrPreviewTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "File too large to preview")
	case errors.Is(err, blobstore.ErrNotFound):
		// The record outlived its blob.
		s.logger.Warn(op+": stored file missing", slog.String("error", err.Error()))
		respondError(w, http.StatusNotFound, "File not found")
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", slog.String("error", err.Error()))
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

func sameEmail(a, b string) bool {
	norm, err := session.NormalizeEmail(a)
	return err == nil && norm == b
}

func formInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.FormValue(key)))
	if err != nil {
		return 0
	}
	return v
}

func partContentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mime.FormatMediaType(mediaType, params)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("encode response", slog.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondUploadError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}
