package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dharsanguruparan/NoteDrop/internal/database"
	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

// setupRepository starts Postgres in a container, migrates it and returns a
// repository over a fresh pool. Set TEST_INTEGRATION to run.
func setupRepository(t *testing.T) *NoteRepository {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("notedrop_test"),
		postgres.WithUsername("notedrop"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := database.Migrate(dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewNoteRepository(pool)
}

func newNote(owner string, semester int, at time.Time) *model.Note {
	id := uuid.NewString()
	return &model.Note{
		ID:              id,
		FileName:        "lecture.pdf",
		FilePath:        "/uploads/" + id,
		StorageKey:      id,
		FileType:        "application/pdf",
		FileSize:        42,
		Year:            (semester + 1) / 2,
		Semester:        semester,
		Subject:         "Algorithms",
		UploadedBy:      "Ada",
		UploadedByEmail: owner,
		UploadedAt:      at,
	}
}

func TestNoteRepositoryLifecycle(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := newNote("ada@example.com", 1, base)
	second := newNote("bob@example.com", 3, base.Add(time.Second))
	tie := newNote("bob@example.com", 3, base.Add(time.Second))
	// Written last with an older timestamp, as after a clock step back.
	stepped := newNote("ada@example.com", 1, base.Add(-time.Hour))
	for _, n := range []*model.Note{first, second, tie, stepped} {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	notes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 4 {
		t.Fatalf("expected 4 notes, got %d", len(notes))
	}
	want := []string{stepped.ID, tie.ID, second.ID, first.ID}
	for i := range want {
		if notes[i].ID != want[i] {
			t.Fatalf("feed not in reverse insertion order at %d: got %s want %s", i, notes[i].ID, want[i])
		}
	}

	liked, err := repo.ToggleLike(ctx, first.ID, "x@example.com")
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if liked.Likes != 1 || len(liked.LikedBy) != 1 {
		t.Fatalf("expected one like, got %d %v", liked.Likes, liked.LikedBy)
	}
	unliked, err := repo.ToggleLike(ctx, first.ID, "x@example.com")
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if unliked.Likes != 0 || len(unliked.LikedBy) != 0 {
		t.Fatalf("expected no likes, got %d %v", unliked.Likes, unliked.LikedBy)
	}

	if _, err := repo.ToggleLike(ctx, "missing", "x@example.com"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.DeleteOwned(ctx, first.ID, "bob@example.com"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("non-owner delete should not match, got %v", err)
	}
	if err := repo.DeleteOwned(ctx, first.ID, "ada@example.com"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := repo.Get(ctx, first.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("deleted note still readable: %v", err)
	}

	keys, err := repo.StorageKeys(ctx)
	if err != nil {
		t.Fatalf("storage keys: %v", err)
	}
	if _, ok := keys[second.StorageKey]; !ok || len(keys) != 3 {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestNoteRepositoryConcurrentLikes(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	note := newNote("ada@example.com", 2, time.Now().UTC())
	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("create: %v", err)
	}

	const likers = 20
	var wg sync.WaitGroup
	for i := 0; i < likers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.ToggleLike(ctx, note.ID, uuid.NewString()+"@example.com"); err != nil {
				t.Errorf("toggle %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.Get(ctx, note.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Likes != likers || len(got.LikedBy) != likers {
		t.Fatalf("lost update: likes=%d likedBy=%d", got.Likes, len(got.LikedBy))
	}
}
