package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/NoteDrop/internal/api"
	"github.com/dharsanguruparan/NoteDrop/internal/blobstore"
	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/notes"
	"github.com/dharsanguruparan/NoteDrop/internal/session"
	"github.com/dharsanguruparan/NoteDrop/internal/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		BlobBackend:       config.BlobBackendDisk,
		UploadDir:         t.TempDir(),
		AllowedExtensions: []string{".pdf", ".docx"},
		MaxFileSize:       1 << 20,
		MaxFiles:          3,
		SessionIssuer:     true,
	}
	disk, err := blobstore.NewDisk(cfg.UploadDir, "/uploads")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := notes.NewService(storage.NewMemoryStore(), disk, nil, notes.Options{
		AllowedExtensions: cfg.AllowedExtensions,
		MaxFileSize:       cfg.MaxFileSize,
		MaxFiles:          cfg.MaxFiles,
	}, logger)
	srv := api.New(cfg, svc, session.NewIssuer([]byte("k"), time.Hour), logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientRoundTrip(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	sess, err := New(ts.URL, "", nil).Login(ctx, "Ana", "ana@uni.edu")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	c := New(ts.URL, sess.Token, nil)

	path := filepath.Join(t.TempDir(), "week1.docx")
	require.NoError(t, os.WriteFile(path, []byte("docx"), 0o600))
	created, err := c.Upload(ctx, UploadParams{Year: 1, Semester: 2, Subject: "Physics", Paths: []string{path}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Ana", created[0].UploadedBy)

	feed, err := c.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	like, err := c.ToggleLike(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, like.Likes)

	var buf bytes.Buffer
	name, err := c.Download(ctx, created[0].ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, "week1.docx", name)
	assert.Equal(t, "docx", buf.String())

	_, err = c.Preview(ctx, created[0].ID)
	assert.True(t, IsStatus(err, http.StatusUnsupportedMediaType), "got %v", err)

	require.NoError(t, c.Delete(ctx, created[0].ID))
	err = c.Delete(ctx, created[0].ID)
	assert.True(t, IsStatus(err, http.StatusNotFound), "got %v", err)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	_, err := New(ts.URL, "", nil).ToggleLike(ctx, "x")
	assert.True(t, IsStatus(err, http.StatusUnauthorized), "got %v", err)

	path := filepath.Join(t.TempDir(), "virus.exe")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	sess, err := New(ts.URL, "", nil).Login(ctx, "Ana", "ana@uni.edu")
	require.NoError(t, err)
	_, err = New(ts.URL, sess.Token, nil).Upload(ctx, UploadParams{Year: 1, Semester: 1, Subject: "x", Paths: []string{path}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "only")
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, st.Server)

	st.Token = "tok"
	st.Email = "ana@uni.edu"
	require.NoError(t, st.Save(path))

	again, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, st, again)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
