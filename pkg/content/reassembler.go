// Package content rebuilds a note into a single self-contained read model.
//
// A note is stored in pieces: ordered line records plus, for media lines,
// chunked blobs in separate tables. The [Reassembler] stitches them back
// together into a [models.NoteContent] whose items appear in strictly
// ascending line order and whose media is inlined as base64, so one response
// carries everything a client needs to render the note.
//
// Reassembly is tolerant of damage: a chunk whose payload cannot be decoded
// is skipped with a warning rather than failing the whole note, and the
// skipped count is surfaced on the affected item and at the top level so
// partial results are visible to the caller.
package content

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// Reassembler builds unified note content from a Store.
type Reassembler struct {
	store store.Store
	log   zerolog.Logger
}

func NewReassembler(s store.Store, log zerolog.Logger) *Reassembler {
	return &Reassembler{store: s, log: log}
}

// NoteContent returns the note's full content with media reassembled inline.
// A failure to read the line collection is returned as an error; media-level
// damage degrades to skipped chunks instead.
func (r *Reassembler) NoteContent(ctx context.Context, user, note string) (*models.NoteContent, error) {
	ns := store.NewNoteNamespace(user, note)

	lines, err := r.store.ListLines(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to read lines of note %s: %w", note, err)
	}

	// The store returns lines sorted, but ascending order is part of this
	// method's contract, so sort again here.
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineID < lines[j].LineID })

	out := &models.NoteContent{
		UserID:      user,
		NoteID:      note,
		Items:       make([]models.ContentItem, 0, len(lines)),
		RetrievedAt: time.Now(),
	}

	for _, line := range lines {
		item := models.ContentItem{
			LineID:    line.LineID,
			Type:      line.Type,
			Text:      line.Text,
			CreatedAt: line.CreatedAt,
			UpdatedAt: line.UpdatedAt,
		}

		if kind, ok := mediaKindOf(line.Type); ok {
			if fileID := line.MediaFileID(kind); fileID != nil {
				payload := r.reassembleMedia(ctx, ns, kind, *fileID)
				out.SkippedChunks += payload.SkippedChunks
				switch kind {
				case models.MediaAudio:
					item.Audio = payload
				case models.MediaImage:
					item.Image = payload
				case models.MediaVideo:
					item.Video = payload
				}
			}
		}

		out.Items = append(out.Items, item)
	}

	out.TotalItems = len(out.Items)
	return out, nil
}

func mediaKindOf(lineType string) (models.MediaKind, bool) {
	switch lineType {
	case models.LineTypeAudio:
		return models.MediaAudio, true
	case models.LineTypeImage:
		return models.MediaImage, true
	case models.LineTypeVideo:
		return models.MediaVideo, true
	}
	return "", false
}

// reassembleMedia concatenates the blob's chunk payloads in sequence order
// and wraps them with metadata. It always returns a payload: fetch failures
// and undecodable chunks degrade to an empty or partial payload with the
// damage logged and counted.
func (r *Reassembler) reassembleMedia(ctx context.Context, ns store.Namespace, kind models.MediaKind, id models.FileID) *models.MediaPayload {
	payload := &models.MediaPayload{
		Filename:    kind.DefaultFilename(),
		ContentType: kind.DefaultContentType(),
	}

	meta, err := r.store.GetFileMeta(ctx, ns, id)
	if err != nil {
		r.log.Warn().Err(err).
			Str("user", ns.User()).Str("note", ns.Note()).Str("file_id", id.String()).
			Msg("failed to read file metadata, using defaults")
	} else if meta == nil {
		r.log.Warn().
			Str("user", ns.User()).Str("note", ns.Note()).Str("file_id", id.String()).
			Msg("file metadata missing, using defaults")
	} else {
		if meta.Filename != "" {
			payload.Filename = meta.Filename
		}
		if meta.ContentType != "" {
			payload.ContentType = meta.ContentType
		}
	}

	chunks, err := r.store.GetFileChunks(ctx, ns, id)
	if err != nil {
		r.log.Warn().Err(err).
			Str("user", ns.User()).Str("note", ns.Note()).Str("file_id", id.String()).
			Msg("failed to read file chunks")
		return payload
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].SequenceIndex < chunks[j].SequenceIndex })

	var data []byte
	for _, chunk := range chunks {
		p, err := normalizePayload(chunk.Payload)
		if err != nil {
			payload.SkippedChunks++
			r.log.Warn().Err(err).
				Str("user", ns.User()).Str("note", ns.Note()).
				Str("file_id", id.String()).Int("sequence_index", chunk.SequenceIndex).
				Msg("skipping undecodable chunk")
			continue
		}
		data = append(data, p.data...)
	}

	payload.Size = int64(len(data))
	payload.Data = base64.StdEncoding.EncodeToString(data)
	return payload
}
