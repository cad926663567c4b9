package notes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/NoteDrop/internal/blobstore"
	"github.com/dharsanguruparan/NoteDrop/internal/model"
	"github.com/dharsanguruparan/NoteDrop/internal/preview"
	"github.com/dharsanguruparan/NoteDrop/internal/storage"
)

const (
	alice = "alice@uni.edu"
	bob   = "bob@uni.edu"
)

func testOptions() Options {
	return Options{
		AllowedExtensions: []string{".jpg", ".jpeg", ".pdf", ".docx"},
		MaxFileSize:       1 << 20,
		MaxFiles:          5,
		SignedURLTTL:      time.Minute,
		PreviewMaxPages:   5,
	}
}

type fixture struct {
	svc   *Service
	store *storage.MemoryStore
	disk  *blobstore.Disk
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	disk, err := blobstore.NewDisk(dir, "/uploads")
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	svc := NewService(store, disk, preview.NewCache(8, time.Minute), testOptions(), nil)
	return &fixture{svc: svc, store: store, disk: disk, dir: dir}
}

func file(name, content string) UploadFile {
	return UploadFile{Name: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func request(email string, files ...UploadFile) UploadRequest {
	return UploadRequest{Year: 2, Semester: 3, Subject: "Data Structures", UploadedBy: "Alice", Email: email, Files: files}
}

func TestUploadCreatesOneNotePerFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "pdf"), file("b.docx", "docx")))
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, n := range created {
		assert.Equal(t, alice, n.UploadedByEmail)
		assert.Equal(t, "Alice", n.UploadedBy)
		assert.Equal(t, 0, n.Likes)
		assert.Empty(t, n.LikedBy)
		assert.True(t, strings.HasPrefix(n.FilePath, "/uploads/"))
		_, statErr := os.Stat(filepath.Join(f.dir, n.StorageKey))
		assert.NoError(t, statErr)
	}
	assert.Equal(t, "application/pdf", created[0].FileType)

	feed, err := f.svc.Feed(ctx)
	require.NoError(t, err)
	assert.Len(t, feed, 2)
}

func TestUploadDefaultsUploaderToAnonymous(t *testing.T) {
	f := newFixture(t)
	req := request(alice, file("a.pdf", "x"))
	req.UploadedBy = "  "
	created, err := f.svc.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.AnonymousUploader, created[0].UploadedBy)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, request(alice))
	assert.ErrorIs(t, err, ErrNoFiles)

	cases := map[string]func(*UploadRequest){
		"year":     func(r *UploadRequest) { r.Year = 5 },
		"semester": func(r *UploadRequest) { r.Semester = 5 },
		"subject":  func(r *UploadRequest) { r.Subject = " " },
		"file":     func(r *UploadRequest) { r.Files = []UploadFile{file("virus.exe", "x")} },
	}
	for field, mutate := range cases {
		req := request(alice, file("a.pdf", "x"))
		mutate(&req)
		_, err := f.svc.Upload(ctx, req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	big := UploadFile{Name: "big.pdf", Size: 2 << 20, Content: strings.NewReader("")}
	_, err = f.svc.Upload(ctx, request(alice, big))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	feed, err := f.svc.Feed(ctx)
	require.NoError(t, err)
	assert.Empty(t, feed, "rejected uploads must not write anything")
	blobs, err := f.disk.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

type failingBlobs struct {
	BlobStore
	failOn int
	puts   int
}

func (b *failingBlobs) Put(ctx context.Context, name string, r io.Reader, size int64, ct string) (blobstore.Object, error) {
	b.puts++
	if b.puts == b.failOn {
		return blobstore.Object{}, errors.New("disk full")
	}
	return b.BlobStore.Put(ctx, name, r, size, ct)
}

func TestUploadPartialFailureKeepsEarlierNotes(t *testing.T) {
	f := newFixture(t)
	blobs := &failingBlobs{BlobStore: f.disk, failOn: 2}
	svc := NewService(f.store, blobs, nil, testOptions(), nil)

	created, err := svc.Upload(context.Background(), request(alice, file("a.pdf", "1"), file("b.pdf", "2"), file("c.pdf", "3")))
	require.ErrorIs(t, err, ErrUploadFailed)
	require.Len(t, created, 1)

	feed, err := svc.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "a.pdf", feed[0].FileName)
}

func TestFeedNewestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	for _, name := range []string{"first.pdf", "second.pdf", "third.pdf"} {
		_, err := f.svc.Upload(context.Background(), request(alice, file(name, "x")))
		require.NoError(t, err)
	}
	feed, err := f.svc.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "third.pdf", feed[0].FileName)
	assert.Equal(t, "first.pdf", feed[2].FileName)
}

func TestUploadTimeSurvivesClockStepBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f.svc.now = func() time.Time { return clock }

	_, err := f.svc.Upload(ctx, request(alice, file("before.pdf", "x")))
	require.NoError(t, err)
	clock = base.Add(-time.Hour)
	_, err = f.svc.Upload(ctx, request(alice, file("after.pdf", "x")))
	require.NoError(t, err)

	feed, err := f.svc.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "after.pdf", feed[0].FileName)
	assert.False(t, feed[0].UploadedAt.Before(feed[1].UploadedAt), "timestamps must not decrease")
}

func TestToggleLikeIsInvolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "x")))
	require.NoError(t, err)
	id := created[0].ID

	n, err := f.svc.ToggleLike(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n.Likes)
	assert.Equal(t, []string{bob}, n.LikedBy)

	n, err = f.svc.ToggleLike(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, n.Likes)
	assert.Empty(t, n.LikedBy)

	_, err = f.svc.ToggleLike(ctx, "missing", bob)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentLikesAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "x")))
	require.NoError(t, err)
	id := created[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ToggleLike(ctx, id, fmt.Sprintf("user%d@uni.edu", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 20, n.Likes)
	assert.Len(t, n.LikedBy, 20)
}

func TestDeleteOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "x")))
	require.NoError(t, err)
	note := created[0]

	err = f.svc.Delete(ctx, note.ID, bob)
	require.ErrorIs(t, err, ErrForbidden)
	_, statErr := os.Stat(filepath.Join(f.dir, note.StorageKey))
	require.NoError(t, statErr, "forbidden delete must not touch the blob")

	require.NoError(t, f.svc.Delete(ctx, note.ID, alice))
	_, statErr = os.Stat(filepath.Join(f.dir, note.StorageKey))
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, f.svc.Delete(ctx, note.ID, alice), ErrNotFound)
}

type brokenDelete struct{ BlobStore }

func (brokenDelete) Delete(context.Context, string) error { return errors.New("permission denied") }

func TestDeleteSurvivesBlobFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, brokenDelete{f.disk}, nil, testOptions(), nil)
	ctx := context.Background()
	created, err := svc.Upload(ctx, request(alice, file("a.pdf", "x")))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created[0].ID, alice))
	_, err = svc.Get(ctx, created[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadStreamsFromDisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "hello")))
	require.NoError(t, err)

	dl, err := f.svc.Download(ctx, created[0].ID)
	require.NoError(t, err)
	require.NotNil(t, dl.Body)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Empty(t, dl.RedirectURL)
}

type presigningBlobs struct{ BlobStore }

func (presigningBlobs) PresignDownload(_ context.Context, key, filename string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://s3.example/%s?name=%s&ttl=%s", key, filename, ttl), nil
}

func TestDownloadRedirectsWhenPresignable(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, presigningBlobs{f.disk}, nil, testOptions(), nil)
	ctx := context.Background()
	created, err := svc.Upload(ctx, request(alice, file("a.pdf", "x")))
	require.NoError(t, err)

	dl, err := svc.Download(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Nil(t, dl.Body)
	assert.Contains(t, dl.RedirectURL, created[0].StorageKey)
}

func TestPreviewRejectsNonPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("photo.jpg", "jpeg")))
	require.NoError(t, err)
	_, err = f.svc.Preview(ctx, created[0].ID)
	assert.ErrorIs(t, err, ErrUnsupportedPreview)
}

func TestPreviewRefusesFilesOverByteCap(t *testing.T) {
	dir := t.TempDir()
	disk, err := blobstore.NewDisk(dir, "/uploads")
	require.NoError(t, err)
	opts := testOptions()
	opts.PreviewMaxBytes = 8
	svc := NewService(storage.NewMemoryStore(), disk, nil, opts, nil)
	ctx := context.Background()

	created, err := svc.Upload(ctx, request(alice, file("big.pdf", "more than eight bytes")))
	require.NoError(t, err)
	_, err = svc.Preview(ctx, created[0].ID)
	assert.ErrorIs(t, err, ErrPreviewTooLarge)
}

func TestPreviewServedFromCacheUntilDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "not really a pdf")))
	require.NoError(t, err)
	id := created[0].ID

	_, err = f.svc.Preview(ctx, id)
	require.Error(t, err, "garbage content cannot be extracted")

	f.svc.cache.Set(id, preview.Result{Text: "cached", Pages: 1})
	res, err := f.svc.Preview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cached", res.Text)

	require.NoError(t, f.svc.Delete(ctx, id, alice))
	_, ok := f.svc.cache.Get(id)
	assert.False(t, ok)
}

func TestSweepRemovesOnlyOldOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("kept.pdf", "x")))
	require.NoError(t, err)

	_, err = f.disk.Put(ctx, "old-orphan.pdf", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)
	_, err = f.disk.Put(ctx, "fresh-orphan.pdf", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, "old-orphan.pdf"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, created[0].StorageKey), old, old))

	report, err := f.svc.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 3, Orphans: 1, Deleted: 1}, report)

	blobs, err := f.disk.List(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(blobs))
	for _, b := range blobs {
		keys = append(keys, b.Key)
	}
	assert.ElementsMatch(t, []string{created[0].StorageKey, "fresh-orphan.pdf"}, keys)
}

func TestSweepRefusesProcessLocalStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Upload(ctx, request(alice, file("a.pdf", "pdf")))
	require.NoError(t, err)

	// A second process on the same upload dir with its own empty store.
	opts := testOptions()
	opts.LocalStore = true
	other := NewService(storage.NewMemoryStore(), f.disk, nil, opts, nil)
	other.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	report, err := other.Sweep(ctx, time.Hour)
	require.ErrorIs(t, err, ErrLocalStore)
	assert.Equal(t, SweepReport{}, report)

	dl, err := f.svc.Download(ctx, created[0].ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(body))
}
