// Package store provides the persistence layer abstraction for the kotoba
// diary service.
//
// The [Store] interface is implemented twice, mirroring the two backends the
// service can run against:
//
//   - [github.com/kotoba-app/kotoba/pkg/store/surrealdb.SurrealStore]: the
//     primary backend, using native SurrealQL through the official SDK with
//     the surrealcbor codec. Diary data is spread over per-namespace tables
//     (see [Namespace]) so each user's notes live in their own collections.
//   - [github.com/kotoba-app/kotoba/pkg/store/postgres.PostgresStore]: a
//     relational backend using GORM, scoping rows by namespace columns
//     instead of dynamic tables.
//
// Semantics shared by all implementations:
//
//   - Get methods return nil without error for missing records; callers use
//     the nil value, not the error, to detect absence.
//   - ListLines and GetFileChunks return their results already sorted in
//     ascending LineID / SequenceIndex order.
//   - UpsertLine is insert-or-replace keyed on LineID: CreatedAt is fixed at
//     first write, UpdatedAt refreshed on every write. Concurrent writers of
//     the same line race under last-write-wins; there is no versioning.
//   - CreateNote is idempotent upsert-by-note-id: re-creating refreshes
//     UpdatedAt and preserves CreatedAt and the tag set.
//   - DeleteNote drops the index entry and the note's line collection. Blob
//     chunks for the note are only removed by an explicit DeleteFiles call.
package store

import (
	"context"
	"errors"

	"github.com/kotoba-app/kotoba/pkg/models"
)

// ErrNoteNotFound is returned by tag operations against a note that has no
// index entry.
var ErrNoteNotFound = errors.New("note not found")

// Store is the complete persistence interface of the diary service.
type Store interface {
	// Line operations.

	// UpsertLine inserts or fully replaces the line with line.LineID in the
	// namespace's line collection.
	UpsertLine(ctx context.Context, ns Namespace, line *models.Line) error

	// ListLines returns all lines of the namespace's note in ascending
	// LineID order. Returns an empty slice for unknown notes.
	ListLines(ctx context.Context, ns Namespace) ([]*models.Line, error)

	// ClearLines deletes every line of the namespace's note without touching
	// the note index entry.
	ClearLines(ctx context.Context, ns Namespace) error

	// Blob operations (the object store adapter).

	// PutFile persists the blob as metadata plus ordered chunks and returns
	// the generated file id.
	PutFile(ctx context.Context, ns Namespace, blob *models.Blob) (models.FileID, error)

	// GetFileMeta returns the blob's metadata, or nil when absent.
	GetFileMeta(ctx context.Context, ns Namespace, id models.FileID) (*models.FileMeta, error)

	// GetFileChunks returns the blob's chunks in ascending SequenceIndex
	// order. Chunk payloads are returned as stored, without normalization.
	GetFileChunks(ctx context.Context, ns Namespace, id models.FileID) ([]*models.FileChunk, error)

	// DeleteFiles removes all blob metadata and chunks stored under the
	// namespace. Invoked explicitly; note deletion does not imply it.
	DeleteFiles(ctx context.Context, ns Namespace) error

	// Note index operations.

	// CreateNote upserts the note's index entry.
	CreateNote(ctx context.Context, ns Namespace) error

	// DeleteNote removes the index entry and drops the line collection.
	DeleteNote(ctx context.Context, ns Namespace) error

	// ListNotes returns the user's note ids sorted ascending.
	ListNotes(ctx context.Context, ns Namespace) ([]string, error)

	// NoteExists reports whether the note has an index entry.
	NoteExists(ctx context.Context, ns Namespace) (bool, error)

	// GetTags returns the note's tag set. ErrNoteNotFound when the note has
	// no index entry.
	GetTags(ctx context.Context, ns Namespace) ([]string, error)

	// SetTags replaces the note's tag set. ErrNoteNotFound when the note has
	// no index entry.
	SetTags(ctx context.Context, ns Namespace, tags []string) error

	// Account operations. Credentials are global, not namespaced.

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, username string) (*models.Account, error)

	// Migrate initializes the backend schema. Idempotent.
	Migrate(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
