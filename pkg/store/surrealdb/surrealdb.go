// Package surrealdb provides the SurrealDB implementation of the
// [github.com/kotoba-app/kotoba/pkg/store.Store] interface using native
// SurrealQL.
//
// # Implementation strategy
//
// Diary data is spread over per-namespace tables derived from the sanitized
// user and note ids (see [store.Namespace]): lines in note_<user>_<note>,
// the note index in note_list_<user>, blob metadata and chunks in
// files_<user>_<note> and chunks_<user>_<note>. SurrealDB creates tables on
// first insert, so namespacing costs nothing up front.
//
// Because table names vary per request they are passed through
// type::table($tb) as a query parameter, never interpolated into SurrealQL
// text. Record fields likewise always travel as $params.
//
// # CBOR marshaling
//
// The connection is configured with the surrealcbor codec so time.Time and
// typed ids round-trip in the format SurrealDB stores internally. Chunk
// payloads are written as raw CBOR byte strings; reads keep the payload
// untyped because legacy rows may carry base64 strings or nested objects
// instead (pkg/content normalizes them).
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// ChunkSize is the maximum payload size of a stored blob chunk.
const ChunkSize = 255 * 1024

const accountsTable = "accounts"

// SurrealStore implements store.Store against a SurrealDB endpoint.
type SurrealStore struct {
	db *surrealdb.DB
}

var _ store.Store = (*SurrealStore)(nil)

// NewSurrealStore connects to SurrealDB over WebSocket with the surrealcbor
// codec, authenticates when credentials are given, and selects the
// namespace/database pair.
func NewSurrealStore(ctx context.Context, wsURL, namespace, database, username, password string) (*SurrealStore, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// surrealcbor keeps time.Time and record ids in the format SurrealDB
	// expects; the default codec does not.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &SurrealStore{db: db}, nil
}

// Migrate defines the unique username index on the accounts table. Diary
// tables are schemaless and created on first insert.
func (s *SurrealStore) Migrate(ctx context.Context) error {
	q := "DEFINE INDEX IF NOT EXISTS uniq_username ON TABLE accounts COLUMNS username UNIQUE"
	if _, err := surrealdb.Query[any](ctx, s.db, q, nil); err != nil {
		return fmt.Errorf("failed to define accounts index: %w", err)
	}
	return nil
}

func (s *SurrealStore) Close() error {
	return s.db.Close(context.Background())
}

// handleNotFound maps the SDK's empty-result errors to nil so callers can
// treat absence as a nil value.
func handleNotFound(err error) error {
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "Expected a single or multiple results but got 0") ||
			strings.Contains(errStr, "cannot unmarshal array into Go value") {
			return nil
		}
	}
	return err
}

func first[T any](result *[]surrealdb.QueryResult[[]T]) *T {
	if result != nil && len(*result) > 0 && len((*result)[0].Result) > 0 {
		return &(*result)[0].Result[0]
	}
	return nil
}

// Line operations

func (s *SurrealStore) UpsertLine(ctx context.Context, ns store.Namespace, line *models.Line) error {
	now := time.Now()

	// Keep the original created_at when replacing an existing line.
	q := "SELECT * FROM type::table($tb) WHERE line_id = $line_id"
	params := map[string]any{
		"tb":      ns.LineTable(),
		"line_id": line.LineID,
	}
	result, err := surrealdb.Query[[]models.Line](ctx, s.db, q, params)
	if err != nil {
		return fmt.Errorf("failed to look up line %d: %w", line.LineID, err)
	}

	line.UpdatedAt = now
	if existing := first(result); existing != nil {
		line.CreatedAt = existing.CreatedAt
		delQ := "DELETE type::table($tb) WHERE line_id = $line_id"
		if _, err := surrealdb.Query[any](ctx, s.db, delQ, params); err != nil {
			return fmt.Errorf("failed to replace line %d: %w", line.LineID, err)
		}
	} else {
		line.CreatedAt = now
	}

	createQ := "CREATE type::table($tb) CONTENT $content"
	createParams := map[string]any{
		"tb":      ns.LineTable(),
		"content": line,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, createQ, createParams); err != nil {
		return fmt.Errorf("failed to create line %d: %w", line.LineID, err)
	}
	return nil
}

func (s *SurrealStore) ListLines(ctx context.Context, ns store.Namespace) ([]*models.Line, error) {
	q := "SELECT * FROM type::table($tb) ORDER BY line_id ASC"
	params := map[string]any{"tb": ns.LineTable()}
	result, err := surrealdb.Query[[]models.Line](ctx, s.db, q, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}

	var lines []*models.Line
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			lines = append(lines, &(*result)[0].Result[i])
		}
	}
	return lines, nil
}

func (s *SurrealStore) ClearLines(ctx context.Context, ns store.Namespace) error {
	q := "DELETE type::table($tb)"
	params := map[string]any{"tb": ns.LineTable()}
	if _, err := surrealdb.Query[any](ctx, s.db, q, params); err != nil {
		return fmt.Errorf("failed to clear lines: %w", err)
	}
	return nil
}

// Blob operations

func (s *SurrealStore) PutFile(ctx context.Context, ns store.Namespace, blob *models.Blob) (models.FileID, error) {
	id := models.NewFileID()

	meta := &models.FileMeta{
		FileID:      id,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        int64(len(blob.Data)),
		LineID:      blob.LineID,
		UploadDate:  time.Now(),
	}
	metaQ := "CREATE type::table($tb) CONTENT $content"
	metaParams := map[string]any{
		"tb":      ns.FileTable(),
		"content": meta,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, metaQ, metaParams); err != nil {
		return models.FileID{}, fmt.Errorf("failed to store file metadata: %w", err)
	}

	for i := 0; i*ChunkSize < len(blob.Data); i++ {
		end := (i + 1) * ChunkSize
		if end > len(blob.Data) {
			end = len(blob.Data)
		}
		chunk := &models.FileChunk{
			FileID:        id,
			SequenceIndex: i,
			Payload:       blob.Data[i*ChunkSize : end],
		}
		chunkQ := "CREATE type::table($tb) CONTENT $content"
		chunkParams := map[string]any{
			"tb":      ns.ChunkTable(),
			"content": chunk,
		}
		if _, err := surrealdb.Query[any](ctx, s.db, chunkQ, chunkParams); err != nil {
			return models.FileID{}, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
	}

	return id, nil
}

func (s *SurrealStore) GetFileMeta(ctx context.Context, ns store.Namespace, id models.FileID) (*models.FileMeta, error) {
	q := "SELECT * FROM type::table($tb) WHERE file_id = $file_id"
	params := map[string]any{
		"tb":      ns.FileTable(),
		"file_id": id.String(),
	}
	result, err := surrealdb.Query[[]models.FileMeta](ctx, s.db, q, params)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	return first(result), nil
}

func (s *SurrealStore) GetFileChunks(ctx context.Context, ns store.Namespace, id models.FileID) ([]*models.FileChunk, error) {
	q := "SELECT * FROM type::table($tb) WHERE file_id = $file_id ORDER BY sequence_index ASC"
	params := map[string]any{
		"tb":      ns.ChunkTable(),
		"file_id": id.String(),
	}
	result, err := surrealdb.Query[[]models.FileChunk](ctx, s.db, q, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get file chunks: %w", err)
	}

	var chunks []*models.FileChunk
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			chunks = append(chunks, &(*result)[0].Result[i])
		}
	}
	return chunks, nil
}

func (s *SurrealStore) DeleteFiles(ctx context.Context, ns store.Namespace) error {
	for _, tb := range []string{ns.FileTable(), ns.ChunkTable()} {
		q := "DELETE type::table($tb)"
		if _, err := surrealdb.Query[any](ctx, s.db, q, map[string]any{"tb": tb}); err != nil {
			return fmt.Errorf("failed to delete files from %s: %w", tb, err)
		}
	}
	return nil
}

// Note index operations

func (s *SurrealStore) CreateNote(ctx context.Context, ns store.Namespace) error {
	now := time.Now()

	q := "SELECT * FROM type::table($tb) WHERE note_id = $note_id"
	params := map[string]any{
		"tb":      ns.IndexTable(),
		"note_id": ns.Note(),
	}
	result, err := surrealdb.Query[[]models.NoteMeta](ctx, s.db, q, params)
	if err != nil {
		return fmt.Errorf("failed to look up note: %w", err)
	}

	if first(result) != nil {
		updQ := "UPDATE type::table($tb) SET updated_at = $now WHERE note_id = $note_id"
		updParams := map[string]any{
			"tb":      ns.IndexTable(),
			"note_id": ns.Note(),
			"now":     now,
		}
		if _, err := surrealdb.Query[any](ctx, s.db, updQ, updParams); err != nil {
			return fmt.Errorf("failed to touch note: %w", err)
		}
		return nil
	}

	meta := &models.NoteMeta{
		NoteID:    ns.Note(),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	createQ := "CREATE type::table($tb) CONTENT $content"
	createParams := map[string]any{
		"tb":      ns.IndexTable(),
		"content": meta,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, createQ, createParams); err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (s *SurrealStore) DeleteNote(ctx context.Context, ns store.Namespace) error {
	q := "DELETE type::table($tb) WHERE note_id = $note_id"
	params := map[string]any{
		"tb":      ns.IndexTable(),
		"note_id": ns.Note(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, q, params); err != nil {
		return fmt.Errorf("failed to delete note index entry: %w", err)
	}

	linesQ := "DELETE type::table($tb)"
	if _, err := surrealdb.Query[any](ctx, s.db, linesQ, map[string]any{"tb": ns.LineTable()}); err != nil {
		return fmt.Errorf("failed to delete note lines: %w", err)
	}
	return nil
}

func (s *SurrealStore) ListNotes(ctx context.Context, ns store.Namespace) ([]string, error) {
	q := "SELECT note_id FROM type::table($tb) ORDER BY note_id ASC"
	params := map[string]any{"tb": ns.IndexTable()}
	result, err := surrealdb.Query[[]struct {
		NoteID string `json:"note_id"`
	}](ctx, s.db, q, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	var ids []string
	if result != nil && len(*result) > 0 {
		for _, record := range (*result)[0].Result {
			ids = append(ids, record.NoteID)
		}
	}
	return ids, nil
}

func (s *SurrealStore) NoteExists(ctx context.Context, ns store.Namespace) (bool, error) {
	meta, err := s.getNoteMeta(ctx, ns)
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

func (s *SurrealStore) GetTags(ctx context.Context, ns store.Namespace) ([]string, error) {
	meta, err := s.getNoteMeta(ctx, ns)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, store.ErrNoteNotFound
	}
	if meta.Tags == nil {
		return []string{}, nil
	}
	return meta.Tags, nil
}

func (s *SurrealStore) SetTags(ctx context.Context, ns store.Namespace, tags []string) error {
	meta, err := s.getNoteMeta(ctx, ns)
	if err != nil {
		return err
	}
	if meta == nil {
		return store.ErrNoteNotFound
	}

	q := "UPDATE type::table($tb) SET tags = $tags, updated_at = $now WHERE note_id = $note_id"
	params := map[string]any{
		"tb":      ns.IndexTable(),
		"note_id": ns.Note(),
		"tags":    tags,
		"now":     time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, q, params); err != nil {
		return fmt.Errorf("failed to set tags: %w", err)
	}
	return nil
}

func (s *SurrealStore) getNoteMeta(ctx context.Context, ns store.Namespace) (*models.NoteMeta, error) {
	q := "SELECT * FROM type::table($tb) WHERE note_id = $note_id"
	params := map[string]any{
		"tb":      ns.IndexTable(),
		"note_id": ns.Note(),
	}
	result, err := surrealdb.Query[[]models.NoteMeta](ctx, s.db, q, params)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get note metadata: %w", err)
	}
	return first(result), nil
}

// Account operations

func (s *SurrealStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	type accountRecord struct {
		Username     string    `json:"username"`
		PasswordHash string    `json:"password_hash"`
		CreatedAt    time.Time `json:"created_at"`
	}
	record := &accountRecord{
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	}
	_, err := surrealdb.Create[accountRecord](ctx, s.db, accountsTable, record)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	q := "SELECT * FROM type::table($tb) WHERE username = $username"
	params := map[string]any{
		"tb":       accountsTable,
		"username": username,
	}
	result, err := surrealdb.Query[[]struct {
		Username     string    `json:"username"`
		PasswordHash string    `json:"password_hash"`
		CreatedAt    time.Time `json:"created_at"`
	}](ctx, s.db, q, params)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	record := first(result)
	if record == nil {
		return nil, nil
	}
	return &models.Account{
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		CreatedAt:    record.CreatedAt,
	}, nil
}
