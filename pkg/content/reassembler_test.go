package content

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-app/kotoba/pkg/kotobatesting"
	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

func TestNormalizePayload(t *testing.T) {
	raw := []byte{0x01, 0x02, 0xff}
	b64 := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		in      any
		want    []byte
		wantErr bool
	}{
		{name: "raw bytes", in: raw, want: raw},
		{name: "base64 string", in: b64, want: raw},
		{name: "nested base64 field", in: map[string]any{"base64": b64}, want: raw},
		{name: "nested data field", in: map[string]any{"data": b64}, want: raw},
		{name: "nested raw bytes", in: map[string]any{"data": raw}, want: raw},
		{name: "untyped map keys", in: map[any]any{"base64": b64}, want: raw},
		{name: "invalid base64", in: "not base64!!", wantErr: true},
		{name: "object without payload field", in: map[string]any{"other": b64}, wantErr: true},
		{name: "number", in: 42, wantErr: true},
		{name: "null", in: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePayload(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.data)
		})
	}
}

func newTestReassembler(t *testing.T) (*Reassembler, *kotobatesting.MemStore) {
	t.Helper()
	ms := kotobatesting.NewMemStore()
	return NewReassembler(ms, zerolog.Nop()), ms
}

func TestNoteContentTextOnly(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	// Insert out of order; output must come back sorted by line id.
	for _, id := range []int{3, 1, 2} {
		err := ms.UpsertLine(ctx, ns, &models.Line{
			LineID: id,
			Type:   models.LineTypeText,
			Text:   "line",
		})
		require.NoError(t, err)
	}

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)

	assert.Equal(t, "alice", content.UserID)
	assert.Equal(t, "20250831", content.NoteID)
	assert.Equal(t, 3, content.TotalItems)
	assert.Zero(t, content.SkippedChunks)
	require.Len(t, content.Items, 3)
	for i, item := range content.Items {
		assert.Equal(t, i+1, item.LineID)
		assert.Equal(t, models.LineTypeText, item.Type)
		assert.Nil(t, item.Audio)
	}
	assert.False(t, content.RetrievedAt.IsZero())
}

func TestNoteContentEmptyNote(t *testing.T) {
	r, _ := newTestReassembler(t)

	content, err := r.NoteContent(context.Background(), "alice", "nope")
	require.NoError(t, err)
	assert.Empty(t, content.Items)
	assert.Zero(t, content.TotalItems)
}

func TestNoteContentMediaRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	data := []byte("RIFF....WAVEfmt ")
	fileID, err := ms.PutFile(ctx, ns, &models.Blob{
		Filename:    "morning.wav",
		ContentType: "audio/wav",
		LineID:      1,
		Data:        data,
	})
	require.NoError(t, err)

	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeAudio,
		AudioFileID: &fileID,
	}))

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)
	require.Len(t, content.Items, 1)

	audio := content.Items[0].Audio
	require.NotNil(t, audio)
	assert.Equal(t, "morning.wav", audio.Filename)
	assert.Equal(t, "audio/wav", audio.ContentType)
	assert.Equal(t, int64(len(data)), audio.Size)
	got, err := base64.StdEncoding.DecodeString(audio.Data)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNoteContentChunkOrdering(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	id := models.NewFileID()
	// Chunks stored out of order, mixed shapes.
	ms.PutChunks(ns, &models.FileMeta{FileID: id, Filename: "p.jpg", ContentType: "image/jpeg"}, []*models.FileChunk{
		{FileID: id, SequenceIndex: 2, Payload: []byte("cc")},
		{FileID: id, SequenceIndex: 0, Payload: base64.StdEncoding.EncodeToString([]byte("aa"))},
		{FileID: id, SequenceIndex: 1, Payload: map[string]any{"base64": base64.StdEncoding.EncodeToString([]byte("bb"))}},
	})
	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeImage,
		ImageFileID: &id,
	}))

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)
	require.NotNil(t, content.Items[0].Image)

	got, err := base64.StdEncoding.DecodeString(content.Items[0].Image.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("aabbcc"), got)
	assert.Zero(t, content.SkippedChunks)
}

func TestNoteContentSkipsBadChunks(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	id := models.NewFileID()
	ms.PutChunks(ns, &models.FileMeta{FileID: id, Filename: "v.mp4", ContentType: "video/mp4"}, []*models.FileChunk{
		{FileID: id, SequenceIndex: 0, Payload: []byte("good")},
		{FileID: id, SequenceIndex: 1, Payload: 12345},
		{FileID: id, SequenceIndex: 2, Payload: []byte("tail")},
	})
	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeVideo,
		VideoFileID: &id,
	}))

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)

	video := content.Items[0].Video
	require.NotNil(t, video)
	assert.Equal(t, 1, video.SkippedChunks)
	assert.Equal(t, 1, content.SkippedChunks)

	got, err := base64.StdEncoding.DecodeString(video.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("goodtail"), got)
}

func TestNoteContentMissingMetadataDefaults(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	id := models.NewFileID()
	// Chunks without a metadata row.
	ms.PutChunks(ns, nil, []*models.FileChunk{
		{FileID: id, SequenceIndex: 0, Payload: []byte("pcm")},
	})
	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeAudio,
		AudioFileID: &id,
	}))

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)

	audio := content.Items[0].Audio
	require.NotNil(t, audio)
	assert.Equal(t, "audio.wav", audio.Filename)
	assert.Equal(t, "audio/wav", audio.ContentType)
	assert.Equal(t, int64(3), audio.Size)
}

func TestNoteContentMissingFileYieldsEmptyPayload(t *testing.T) {
	ctx := context.Background()
	r, ms := newTestReassembler(t)
	ns := store.NewNoteNamespace("alice", "20250831")

	id := models.NewFileID()
	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeImage,
		ImageFileID: &id,
	}))

	content, err := r.NoteContent(ctx, "alice", "20250831")
	require.NoError(t, err)

	image := content.Items[0].Image
	require.NotNil(t, image)
	assert.Equal(t, "image.jpg", image.Filename)
	assert.Equal(t, "image/jpeg", image.ContentType)
	assert.Zero(t, image.Size)
	assert.Empty(t, image.Data)
}
