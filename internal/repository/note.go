package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NoteRepository wraps all SQL touching the notes table.
type NoteRepository struct {
	db DBTX
}

// NewNoteRepository constructs a repository.
func NewNoteRepository(db DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

const noteColumns = `id, file_name, file_path, storage_key, file_type, file_size, year, semester,
	subject, description, uploaded_by, uploaded_by_email, uploaded_at, likes, liked_by`

// Create inserts note. UploadedAt is assigned by the caller.
func (r *NoteRepository) Create(ctx context.Context, note *model.Note) error {
	if note.LikedBy == nil {
		note.LikedBy = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, note.ID, note.FileName, note.FilePath, note.StorageKey, note.FileType, note.FileSize,
		note.Year, note.Semester, note.Subject, note.Description, note.UploadedBy,
		note.UploadedByEmail, note.UploadedAt, note.Likes, note.LikedBy)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// List returns every note, newest first. Insertion order decides, so a wall
// clock step between uploads cannot reorder the feed.
func (r *NoteRepository) List(ctx context.Context) ([]*model.Note, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// Get returns a note by id.
func (r *NoteRepository) Get(ctx context.Context, id string) (*model.Note, error) {
	row := r.db.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, id)
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select note: %w", err)
	}
	return note, nil
}

// ToggleLike adds or removes email from liked_by in one statement. The row
// lock taken by UPDATE serializes concurrent toggles on the same note, and
// every CASE reads the same (current) row version.
func (r *NoteRepository) ToggleLike(ctx context.Context, id, email string) (*model.Note, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE notes
		SET liked_by = CASE
				WHEN $2 = ANY(liked_by) THEN array_remove(liked_by, $2)
				ELSE array_append(liked_by, $2)
			END,
			likes = CASE
				WHEN $2 = ANY(liked_by) THEN likes - 1
				ELSE likes + 1
			END
		WHERE id = $1
		RETURNING `+noteColumns, id, email)
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("toggle like: %w", err)
	}
	return note, nil
}

// DeleteOwned removes the note only if ownerEmail still owns it.
func (r *NoteRepository) DeleteOwned(ctx context.Context, id, ownerEmail string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notes WHERE id=$1 AND uploaded_by_email=$2`, id, ownerEmail)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// StorageKeys returns the set of blob keys referenced by any note.
func (r *NoteRepository) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT storage_key FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("select storage keys: %w", err)
	}
	defer rows.Close()
	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan storage key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func scanNote(row pgx.Row) (*model.Note, error) {
	var note model.Note
	err := row.Scan(&note.ID, &note.FileName, &note.FilePath, &note.StorageKey, &note.FileType,
		&note.FileSize, &note.Year, &note.Semester, &note.Subject, &note.Description,
		&note.UploadedBy, &note.UploadedByEmail, &note.UploadedAt, &note.Likes, &note.LikedBy)
	if err != nil {
		return nil, err
	}
	if note.LikedBy == nil {
		note.LikedBy = []string{}
	}
	note.UploadedAt = note.UploadedAt.UTC()
	return &note, nil
}
