// Package models defines the domain entities of the kotoba diary service.
//
// A diary is organized as user -> note -> line. A [Note] is identified by a
// caller-chosen string id (typically a date such as "20250831") and holds an
// ordered collection of [Line] records plus a mutable tag set tracked by a
// [NoteMeta] index entry. Media attached to a line is stored out of band as a
// chunked [Blob] and referenced from the line by a [FileID].
//
// All entities carry json tags for the HTTP surface and are marshaled to
// SurrealDB through the surrealcbor codec, which honors the same tags. The
// PostgreSQL store maps them onto its own row types.
package models

import "time"

// Line types with first-class media handling. The type field is declared by
// the caller and is not validated against which payload fields are populated:
// a line may carry text and a media reference at the same time.
const (
	LineTypeText  = "text"
	LineTypeAudio = "audio"
	LineTypeImage = "image"
	LineTypeVideo = "video"
)

// Line is one ordered entry within a note. Lines are keyed by LineID, which
// is assigned by the caller; re-sending a LineID replaces the previous line.
type Line struct {
	LineID      int       `json:"line_id"`
	Type        string    `json:"type"`
	Text        string    `json:"text,omitempty"`
	AudioFileID *FileID   `json:"audio_file_id,omitempty"`
	ImageFileID *FileID   `json:"image_file_id,omitempty"`
	VideoFileID *FileID   `json:"video_file_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MediaFileID returns the blob reference matching the line's declared type,
// or nil when the line does not reference media of that kind.
func (l *Line) MediaFileID(kind MediaKind) *FileID {
	switch kind {
	case MediaAudio:
		return l.AudioFileID
	case MediaImage:
		return l.ImageFileID
	case MediaVideo:
		return l.VideoFileID
	}
	return nil
}

// NoteMeta is the per-user index entry for one note. Entries are unique on
// NoteID; re-creating a note refreshes UpdatedAt and preserves CreatedAt.
type NoteMeta struct {
	NoteID    string    `json:"note_id"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blob is an opaque binary payload handed to the store for chunked
// persistence. The store splits Data into ordered chunks and returns a FileID.
type Blob struct {
	Filename    string
	ContentType string
	LineID      int
	Data        []byte
}

// FileMeta describes a stored blob without its payload.
type FileMeta struct {
	FileID      FileID    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	LineID      int       `json:"line_id"`
	UploadDate  time.Time `json:"upload_date"`
}

// FileChunk is one ordered fragment of a blob. Reconstruction concatenates
// payloads in ascending SequenceIndex order. Payload is kept as an untyped
// value because stored chunks are not uniform: raw bytes, base64 strings and
// nested base64-carrying objects all occur in the wild. See pkg/content for
// the normalization rules.
type FileChunk struct {
	FileID        FileID `json:"file_id"`
	SequenceIndex int    `json:"sequence_index"`
	Payload       any    `json:"payload"`
}

// Account is a login credential record. Credentials live in a fixed table
// separate from all note data; PasswordHash is a bcrypt hash, never the
// cleartext password.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// MediaKind identifies one of the media payload slots a line can carry.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// DefaultFilename returns the filename used when blob metadata is missing.
func (k MediaKind) DefaultFilename() string {
	switch k {
	case MediaAudio:
		return "audio.wav"
	case MediaImage:
		return "image.jpg"
	case MediaVideo:
		return "video.mp4"
	}
	return "file.bin"
}

// DefaultContentType returns the content type used when blob metadata is
// missing.
func (k MediaKind) DefaultContentType() string {
	switch k {
	case MediaAudio:
		return "audio/wav"
	case MediaImage:
		return "image/jpeg"
	case MediaVideo:
		return "video/mp4"
	}
	return "application/octet-stream"
}

// MediaPayload is reassembled media embedded in a content item. Data is the
// base64 encoding of the concatenated chunk payloads so the item survives a
// JSON round trip. SkippedChunks counts chunks whose payload could not be
// normalized; a non-zero value flags a partial reassembly.
type MediaPayload struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	Data          string `json:"data"`
	SkippedChunks int    `json:"skipped_chunks,omitempty"`
}

// ContentItem is one reassembled line of a note.
type ContentItem struct {
	LineID    int           `json:"line_id"`
	Type      string        `json:"type"`
	Text      string        `json:"text,omitempty"`
	Audio     *MediaPayload `json:"audio,omitempty"`
	Image     *MediaPayload `json:"image,omitempty"`
	Video     *MediaPayload `json:"video,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NoteContent is the unified read model for one note: every line in strictly
// ascending LineID order with media reassembled inline.
type NoteContent struct {
	UserID        string        `json:"user_id"`
	NoteID        string        `json:"note_id"`
	Items         []ContentItem `json:"items"`
	TotalItems    int           `json:"total_items"`
	SkippedChunks int           `json:"skipped_chunks,omitempty"`
	RetrievedAt   time.Time     `json:"retrieved_at"`
}

// CalendarEvent is one dated entry mined from a note's text.
type CalendarEvent struct {
	Time  string `json:"time"` // YYYYMMDD
	Event string `json:"event"`
}
