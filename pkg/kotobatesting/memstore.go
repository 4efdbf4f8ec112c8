// Package kotobatesting provides in-memory test doubles for the service:
// a [MemStore] implementing the full store interface and fake AI
// collaborators with scripted responses. Handler and reassembly tests run
// against these instead of live SurrealDB or OpenAI endpoints.
package kotobatesting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// MemStore is a map-backed store.Store. All methods are safe for concurrent
// use. Keys mirror the namespace scheme of the real backends: lines, files
// and chunks are held per (user, note), the note index per user.
type MemStore struct {
	mu sync.RWMutex

	lines    map[string]map[int]*models.Line           // noteKey -> line_id
	notes    map[string]map[string]*models.NoteMeta    // userKey -> note_id
	files    map[string]map[string]*models.FileMeta    // noteKey -> file_id
	chunks   map[string]map[string][]*models.FileChunk // noteKey -> file_id
	accounts map[string]*models.Account
}

var _ store.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		lines:    map[string]map[int]*models.Line{},
		notes:    map[string]map[string]*models.NoteMeta{},
		files:    map[string]map[string]*models.FileMeta{},
		chunks:   map[string]map[string][]*models.FileChunk{},
		accounts: map[string]*models.Account{},
	}
}

func noteKey(ns store.Namespace) string {
	return ns.UserKey() + "/" + ns.NoteKey()
}

func (m *MemStore) UpsertLine(ctx context.Context, ns store.Namespace, line *models.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := noteKey(ns)
	if m.lines[key] == nil {
		m.lines[key] = map[int]*models.Line{}
	}

	now := time.Now()
	cp := *line
	cp.UpdatedAt = now
	if existing, ok := m.lines[key][line.LineID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	m.lines[key][line.LineID] = &cp
	*line = cp
	return nil
}

func (m *MemStore) ListLines(ctx context.Context, ns store.Namespace) ([]*models.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines []*models.Line
	for _, l := range m.lines[noteKey(ns)] {
		cp := *l
		lines = append(lines, &cp)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineID < lines[j].LineID })
	return lines, nil
}

func (m *MemStore) ClearLines(ctx context.Context, ns store.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, noteKey(ns))
	return nil
}

func (m *MemStore) PutFile(ctx context.Context, ns store.Namespace, blob *models.Blob) (models.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := noteKey(ns)
	id := models.NewFileID()
	if m.files[key] == nil {
		m.files[key] = map[string]*models.FileMeta{}
		m.chunks[key] = map[string][]*models.FileChunk{}
	}
	m.files[key][id.String()] = &models.FileMeta{
		FileID:      id,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        int64(len(blob.Data)),
		LineID:      blob.LineID,
		UploadDate:  time.Now(),
	}
	data := append([]byte(nil), blob.Data...)
	m.chunks[key][id.String()] = []*models.FileChunk{
		{FileID: id, SequenceIndex: 0, Payload: data},
	}
	return id, nil
}

// PutChunks installs pre-built chunk rows for a file, bypassing PutFile's
// single-chunk write. Tests use it to exercise multi-chunk ordering and
// legacy payload shapes.
func (m *MemStore) PutChunks(ns store.Namespace, meta *models.FileMeta, chunks []*models.FileChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := noteKey(ns)
	if m.files[key] == nil {
		m.files[key] = map[string]*models.FileMeta{}
		m.chunks[key] = map[string][]*models.FileChunk{}
	}
	id := chunks[0].FileID
	if meta != nil {
		m.files[key][id.String()] = meta
	}
	m.chunks[key][id.String()] = chunks
}

func (m *MemStore) GetFileMeta(ctx context.Context, ns store.Namespace, id models.FileID) (*models.FileMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.files[noteKey(ns)][id.String()]
	if !ok {
		return nil, nil
	}
	cp := *meta
	return &cp, nil
}

func (m *MemStore) GetFileChunks(ctx context.Context, ns store.Namespace, id models.FileID) ([]*models.FileChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := append([]*models.FileChunk(nil), m.chunks[noteKey(ns)][id.String()]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].SequenceIndex < chunks[j].SequenceIndex })
	return chunks, nil
}

func (m *MemStore) DeleteFiles(ctx context.Context, ns store.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, noteKey(ns))
	delete(m.chunks, noteKey(ns))
	return nil
}

func (m *MemStore) CreateNote(ctx context.Context, ns store.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.notes[ns.UserKey()] == nil {
		m.notes[ns.UserKey()] = map[string]*models.NoteMeta{}
	}
	now := time.Now()
	if existing, ok := m.notes[ns.UserKey()][ns.Note()]; ok {
		existing.UpdatedAt = now
		return nil
	}
	m.notes[ns.UserKey()][ns.Note()] = &models.NoteMeta{
		NoteID:    ns.Note(),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemStore) DeleteNote(ctx context.Context, ns store.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notes[ns.UserKey()], ns.Note())
	delete(m.lines, noteKey(ns))
	return nil
}

func (m *MemStore) ListNotes(ctx context.Context, ns store.Namespace) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id := range m.notes[ns.UserKey()] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemStore) NoteExists(ctx context.Context, ns store.Namespace) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notes[ns.UserKey()][ns.Note()]
	return ok, nil
}

func (m *MemStore) GetTags(ctx context.Context, ns store.Namespace) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.notes[ns.UserKey()][ns.Note()]
	if !ok {
		return nil, store.ErrNoteNotFound
	}
	return append([]string(nil), meta.Tags...), nil
}

func (m *MemStore) SetTags(ctx context.Context, ns store.Namespace, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.notes[ns.UserKey()][ns.Note()]
	if !ok {
		return store.ErrNoteNotFound
	}
	meta.Tags = append([]string(nil), tags...)
	meta.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) CreateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.Username]; ok {
		return fmt.Errorf("account %q already exists", account.Username)
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	cp := *account
	m.accounts[account.Username] = &cp
	return nil
}

func (m *MemStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[username]
	if !ok {
		return nil, nil
	}
	cp := *account
	return &cp, nil
}

func (m *MemStore) Migrate(ctx context.Context) error { return nil }

func (m *MemStore) Close() error { return nil }
