// Package client is a typed HTTP client for the NoteDrop API, used by the
// notedrop CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client talks to one NoteDrop server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. A nil httpClient uses a client with a generous timeout
// suited to uploads.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, http: httpClient}
}

// Session is a minted session token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login asks the server for a session token.
func (c *Client) Login(ctx context.Context, name, email string) (Session, error) {
	var out Session
	err := c.doJSON(ctx, http.MethodPost, "/session", map[string]string{"name": name, "email": email}, &out)
	return out, err
}

// Feed returns all notes, newest first.
func (c *Client) Feed(ctx context.Context) ([]*model.Note, error) {
	var out []*model.Note
	err := c.doJSON(ctx, http.MethodGet, "/notes", nil, &out)
	return out, err
}

// LikeResult is the state after a like toggle.
type LikeResult struct {
	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

// ToggleLike likes or unlikes a note as the session user.
func (c *Client) ToggleLike(ctx context.Context, id string) (LikeResult, error) {
	var out LikeResult
	err := c.doJSON(ctx, http.MethodPost, "/notes/"+id+"/like", nil, &out)
	return out, err
}

// Delete removes a note the session user owns.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/notes/"+id, nil, nil)
}

// Preview is the extracted text of a PDF note.
type Preview struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Pages     int    `json:"pages"`
	Truncated bool   `json:"truncated"`
}

// Preview fetches a PDF note's text.
func (c *Client) Preview(ctx context.Context, id string) (Preview, error) {
	var out Preview
	err := c.doJSON(ctx, http.MethodGet, "/notes/"+id+"/preview", nil, &out)
	return out, err
}

// Download writes a note's file to w and returns the server-suggested file
// name. Redirects to presigned URLs are followed.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/notes/"+id+"/download", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", readAPIError(resp)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download %s: %w", id, err)
	}
	return name, nil
}

// UploadParams describes an upload batch from local files.
type UploadParams struct {
	Year        int
	Semester    int
	Subject     string
	Description string
	UploadedBy  string
	Paths       []string
}

// Upload streams the files at p.Paths as one multipart request.
func (c *Client) Upload(ctx context.Context, p UploadParams) ([]*model.Note, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, p))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		Notes []*model.Note `json:"notes"`
	}
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

func writeUploadBody(mw *multipart.Writer, p UploadParams) error {
	fields := [][2]string{
		{"year", strconv.Itoa(p.Year)},
		{"semester", strconv.Itoa(p.Semester)},
		{"subject", p.Subject},
		{"description", p.Description},
		{"uploadedBy", p.UploadedBy},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	for _, path := range p.Paths {
		if err := writeFilePart(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	name := filepath.Base(path)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": name}))
	h.Set("Content-Type", model.ContentTypeFor(name))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
