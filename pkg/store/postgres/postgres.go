// Package postgres provides the PostgreSQL implementation of the
// [github.com/kotoba-app/kotoba/pkg/store.Store] interface using GORM.
//
// Where the SurrealDB backend spreads a namespace over dynamic tables, the
// relational backend keeps five fixed tables and scopes rows with sanitized
// user/note key columns. The two layouts are behaviorally equivalent; the
// key columns carry exactly the values the SurrealDB table names are built
// from.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// Row types. Domain structs stay free of GORM concerns; the mapping lives
// here.

type lineRow struct {
	ID          uint   `gorm:"primaryKey"`
	UserKey     string `gorm:"index:idx_lines_scope,unique,priority:1;size:512"`
	NoteKey     string `gorm:"index:idx_lines_scope,unique,priority:2;size:512"`
	LineID      int    `gorm:"index:idx_lines_scope,unique,priority:3"`
	Type        string `gorm:"size:32"`
	Text        string
	AudioFileID *models.FileID
	ImageFileID *models.FileID
	VideoFileID *models.FileID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (lineRow) TableName() string { return "lines" }

type noteRow struct {
	ID        uint   `gorm:"primaryKey"`
	UserKey   string `gorm:"index:idx_notes_scope,unique,priority:1;size:512"`
	NoteID    string `gorm:"index:idx_notes_scope,unique,priority:2;size:512"`
	Tags      string // JSON-encoded []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (noteRow) TableName() string { return "notes" }

type fileRow struct {
	ID          uint          `gorm:"primaryKey"`
	UserKey     string        `gorm:"index:idx_files_scope;size:512"`
	NoteKey     string        `gorm:"index:idx_files_scope;size:512"`
	FileID      models.FileID `gorm:"uniqueIndex;size:36"`
	Filename    string
	ContentType string `gorm:"size:255"`
	Size        int64
	LineID      int
	UploadDate  time.Time
}

func (fileRow) TableName() string { return "files" }

type chunkRow struct {
	ID            uint          `gorm:"primaryKey"`
	UserKey       string        `gorm:"index:idx_chunks_scope;size:512"`
	NoteKey       string        `gorm:"index:idx_chunks_scope;size:512"`
	FileID        models.FileID `gorm:"index:idx_chunks_file,priority:1;size:36"`
	SequenceIndex int           `gorm:"index:idx_chunks_file,priority:2"`
	Payload       []byte
}

func (chunkRow) TableName() string { return "chunks" }

type accountRow struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:255"`
	PasswordHash string
	CreatedAt    time.Time
}

func (accountRow) TableName() string { return "accounts" }

// ChunkSize matches the SurrealDB backend's chunk split.
const ChunkSize = 255 * 1024

// PostgresStore implements store.Store on PostgreSQL via GORM.
type PostgresStore struct {
	db *gorm.DB
}

var _ store.Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&lineRow{}, &noteRow{}, &fileRow{}, &chunkRow{}, &accountRow{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Line operations

func (s *PostgresStore) UpsertLine(ctx context.Context, ns store.Namespace, line *models.Line) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing lineRow
		err := tx.Where("user_key = ? AND note_key = ? AND line_id = ?",
			ns.UserKey(), ns.NoteKey(), line.LineID).First(&existing).Error

		row := lineRow{
			UserKey:     ns.UserKey(),
			NoteKey:     ns.NoteKey(),
			LineID:      line.LineID,
			Type:        line.Type,
			Text:        line.Text,
			AudioFileID: line.AudioFileID,
			ImageFileID: line.ImageFileID,
			VideoFileID: line.VideoFileID,
			UpdatedAt:   now,
		}

		switch {
		case err == nil:
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("failed to replace line %d: %w", line.LineID, err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			row.CreatedAt = now
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create line %d: %w", line.LineID, err)
			}
		default:
			return fmt.Errorf("failed to look up line %d: %w", line.LineID, err)
		}

		line.CreatedAt = row.CreatedAt
		line.UpdatedAt = row.UpdatedAt
		return nil
	})
}

func (s *PostgresStore) ListLines(ctx context.Context, ns store.Namespace) ([]*models.Line, error) {
	var rows []lineRow
	err := s.db.WithContext(ctx).
		Where("user_key = ? AND note_key = ?", ns.UserKey(), ns.NoteKey()).
		Order("line_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}

	lines := make([]*models.Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, &models.Line{
			LineID:      row.LineID,
			Type:        row.Type,
			Text:        row.Text,
			AudioFileID: row.AudioFileID,
			ImageFileID: row.ImageFileID,
			VideoFileID: row.VideoFileID,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return lines, nil
}

func (s *PostgresStore) ClearLines(ctx context.Context, ns store.Namespace) error {
	err := s.db.WithContext(ctx).
		Where("user_key = ? AND note_key = ?", ns.UserKey(), ns.NoteKey()).
		Delete(&lineRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear lines: %w", err)
	}
	return nil
}

// Blob operations

func (s *PostgresStore) PutFile(ctx context.Context, ns store.Namespace, blob *models.Blob) (models.FileID, error) {
	id := models.NewFileID()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta := fileRow{
			UserKey:     ns.UserKey(),
			NoteKey:     ns.NoteKey(),
			FileID:      id,
			Filename:    blob.Filename,
			ContentType: blob.ContentType,
			Size:        int64(len(blob.Data)),
			LineID:      blob.LineID,
			UploadDate:  time.Now(),
		}
		if err := tx.Create(&meta).Error; err != nil {
			return fmt.Errorf("failed to store file metadata: %w", err)
		}

		for i := 0; i*ChunkSize < len(blob.Data); i++ {
			end := (i + 1) * ChunkSize
			if end > len(blob.Data) {
				end = len(blob.Data)
			}
			chunk := chunkRow{
				UserKey:       ns.UserKey(),
				NoteKey:       ns.NoteKey(),
				FileID:        id,
				SequenceIndex: i,
				Payload:       blob.Data[i*ChunkSize : end],
			}
			if err := tx.Create(&chunk).Error; err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return models.FileID{}, err
	}
	return id, nil
}

func (s *PostgresStore) GetFileMeta(ctx context.Context, ns store.Namespace, id models.FileID) (*models.FileMeta, error) {
	var row fileRow
	err := s.db.WithContext(ctx).
		Where("user_key = ? AND note_key = ? AND file_id = ?", ns.UserKey(), ns.NoteKey(), id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	return &models.FileMeta{
		FileID:      row.FileID,
		Filename:    row.Filename,
		ContentType: row.ContentType,
		Size:        row.Size,
		LineID:      row.LineID,
		UploadDate:  row.UploadDate,
	}, nil
}

func (s *PostgresStore) GetFileChunks(ctx context.Context, ns store.Namespace, id models.FileID) ([]*models.FileChunk, error) {
	var rows []chunkRow
	err := s.db.WithContext(ctx).
		Where("user_key = ? AND note_key = ? AND file_id = ?", ns.UserKey(), ns.NoteKey(), id).
		Order("sequence_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get file chunks: %w", err)
	}

	chunks := make([]*models.FileChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, &models.FileChunk{
			FileID:        row.FileID,
			SequenceIndex: row.SequenceIndex,
			Payload:       row.Payload,
		})
	}
	return chunks, nil
}

func (s *PostgresStore) DeleteFiles(ctx context.Context, ns store.Namespace) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_key = ? AND note_key = ?", ns.UserKey(), ns.NoteKey()).
			Delete(&chunkRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if err := tx.Where("user_key = ? AND note_key = ?", ns.UserKey(), ns.NoteKey()).
			Delete(&fileRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete file metadata: %w", err)
		}
		return nil
	})
}

// Note index operations

func (s *PostgresStore) CreateNote(ctx context.Context, ns store.Namespace) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing noteRow
		err := tx.Where("user_key = ? AND note_id = ?", ns.UserKey(), ns.Note()).
			First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("updated_at", now).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := noteRow{
				UserKey:   ns.UserKey(),
				NoteID:    ns.Note(),
				Tags:      "[]",
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create note: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("failed to look up note: %w", err)
		}
	})
}

func (s *PostgresStore) DeleteNote(ctx context.Context, ns store.Namespace) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_key = ? AND note_id = ?", ns.UserKey(), ns.Note()).
			Delete(&noteRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete note index entry: %w", err)
		}
		if err := tx.Where("user_key = ? AND note_key = ?", ns.UserKey(), ns.NoteKey()).
			Delete(&lineRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete note lines: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListNotes(ctx context.Context, ns store.Namespace) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&noteRow{}).
		Where("user_key = ?", ns.UserKey()).
		Order("note_id ASC").
		Pluck("note_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) NoteExists(ctx context.Context, ns store.Namespace) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&noteRow{}).
		Where("user_key = ? AND note_id = ?", ns.UserKey(), ns.Note()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check note: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) GetTags(ctx context.Context, ns store.Namespace) ([]string, error) {
	var row noteRow
	err := s.db.WithContext(ctx).
		Where("user_key = ? AND note_id = ?", ns.UserKey(), ns.Note()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return decodeTags(row.Tags)
}

func (s *PostgresStore) SetTags(ctx context.Context, ns store.Namespace, tags []string) error {
	encoded, err := encodeTags(tags)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&noteRow{}).
		Where("user_key = ? AND note_id = ?", ns.UserKey(), ns.Note()).
		Updates(map[string]any{"tags": encoded, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to set tags: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNoteNotFound
	}
	return nil
}

// Tags are stored as a JSON text column; PostgreSQL array types would tie
// the schema to one driver, and the tag sets are tiny.

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(encoded), nil
}

func decodeTags(encoded string) ([]string, error) {
	if encoded == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// Account operations

func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	row := accountRow{
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &models.Account{
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}
