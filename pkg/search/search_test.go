package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-app/kotoba/pkg/kotobatesting"
	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

func seedNote(t *testing.T, ms *kotobatesting.MemStore, user, note string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	ns := store.NewNoteNamespace(user, note)
	for i, text := range texts {
		require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
			LineID: i + 1,
			Type:   models.LineTypeText,
			Text:   text,
		}))
	}
}

func TestNotesSubstringMatch(t *testing.T) {
	ms := kotobatesting.NewMemStore()
	seedNote(t, ms, "alice", "20250830", "Went hiking today", "Dinner with Bob")
	seedNote(t, ms, "alice", "20250831", "Rainy day, stayed in")

	results, err := Notes(context.Background(), ms, "alice",
		[]string{"20250830", "20250831"}, "HIKING")
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Len(t, results["20250830"], 1)
	assert.Equal(t, 1, results["20250830"][0].LineID)
	assert.Equal(t, "Went hiking today", results["20250830"][0].Text)
	assert.Equal(t, 1, TotalMatches(results))
}

func TestNotesRegexpMatch(t *testing.T) {
	ms := kotobatesting.NewMemStore()
	seedNote(t, ms, "alice", "20250831", "Call dentist at 0900", "Lunch at noon")

	results, err := Notes(context.Background(), ms, "alice",
		[]string{"20250831"}, `\d{4}`)
	require.NoError(t, err)

	require.Len(t, results["20250831"], 1)
	assert.Equal(t, "Call dentist at 0900", results["20250831"][0].Text)
}

func TestNotesInvalidRegexpFallsBackToSubstring(t *testing.T) {
	ms := kotobatesting.NewMemStore()
	seedNote(t, ms, "alice", "20250831", "weird (query text")

	results, err := Notes(context.Background(), ms, "alice",
		[]string{"20250831"}, "(query")
	require.NoError(t, err)
	assert.Len(t, results["20250831"], 1)
}

func TestNotesSkipsNonTextLines(t *testing.T) {
	ms := kotobatesting.NewMemStore()
	ctx := context.Background()
	ns := store.NewNoteNamespace("alice", "20250831")
	id := models.NewFileID()
	require.NoError(t, ms.UpsertLine(ctx, ns, &models.Line{
		LineID:      1,
		Type:        models.LineTypeAudio,
		Text:        "hiking recording",
		AudioFileID: &id,
	}))

	results, err := Notes(ctx, ms, "alice", []string{"20250831"}, "hiking")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNotesNoMatches(t *testing.T) {
	ms := kotobatesting.NewMemStore()
	seedNote(t, ms, "alice", "20250831", "nothing relevant")

	results, err := Notes(context.Background(), ms, "alice",
		[]string{"20250831"}, "zebra")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, TotalMatches(results))
}
