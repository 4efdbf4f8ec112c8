package kotoba

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/kotoba-app/kotoba/pkg/ai"
	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/search"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// maxUploadBytes bounds multipart parsing memory for diary uploads.
const maxUploadBytes = 64 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mediaUpload describes one optional file field of the upload form and the
// constraints on it.
type mediaUpload struct {
	field string
	ext   string
	kind  models.MediaKind
}

var uploadFields = []mediaUpload{
	{field: "audio", ext: ".wav", kind: models.MediaAudio},
	{field: "image", ext: ".jpg", kind: models.MediaImage},
	{field: "video", ext: ".mp4", kind: models.MediaVideo},
}

// handleUpload ingests one diary line: form fields user_id, note_id,
// line_id, type, optional text, plus optional audio/image/video files.
// line_id 0 clears the note's existing lines before the write.
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	userID := r.FormValue("user_id")
	noteID := r.FormValue("note_id")
	if userID == "" || noteID == "" {
		respondError(w, http.StatusBadRequest, "user_id and note_id are required")
		return
	}
	lineID, err := strconv.Atoi(r.FormValue("line_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "line_id must be an integer")
		return
	}
	lineType := r.FormValue("type")
	if lineType == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}

	ctx := r.Context()
	ns := store.NewNoteNamespace(userID, noteID)

	if lineID == 0 {
		if err := a.store.ClearLines(ctx, ns); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	// Uploading always registers the note in the user's index.
	if err := a.store.CreateNote(ctx, ns); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	line := &models.Line{
		LineID: lineID,
		Type:   lineType,
		Text:   r.FormValue("text"),
	}

	for _, field := range uploadFields {
		file, header, err := r.FormFile(field.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s file", field.field))
			return
		}

		fileID, status, err := a.storeUploadedFile(r, ns, lineID, field, file, header)
		file.Close()
		if err != nil {
			respondError(w, status, err.Error())
			return
		}

		switch field.kind {
		case models.MediaAudio:
			line.AudioFileID = &fileID
		case models.MediaImage:
			line.ImageFileID = &fileID
		case models.MediaVideo:
			line.VideoFileID = &fileID
		}
	}

	if err := a.store.UpsertLine(ctx, ns, line); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.log.Info().
		Str("user", userID).Str("note", noteID).Int("line", lineID).Str("type", lineType).
		Msg("diary line uploaded")
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (a *App) storeUploadedFile(r *http.Request, ns store.Namespace, lineID int, field mediaUpload, file multipart.File, header *multipart.FileHeader) (models.FileID, int, error) {
	if !strings.HasSuffix(strings.ToLower(header.Filename), field.ext) {
		return models.FileID{}, http.StatusBadRequest,
			fmt.Errorf("%s file must have %s extension", field.field, field.ext)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return models.FileID{}, http.StatusInternalServerError,
			fmt.Errorf("failed to read %s file: %w", field.field, err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = field.kind.DefaultContentType()
	}

	fileID, err := a.store.PutFile(r.Context(), ns, &models.Blob{
		Filename:    header.Filename,
		ContentType: contentType,
		LineID:      lineID,
		Data:        data,
	})
	if err != nil {
		return models.FileID{}, http.StatusInternalServerError,
			fmt.Errorf("failed to store %s file: %w", field.field, err)
	}
	return fileID, http.StatusOK, nil
}

func (a *App) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	userID := r.FormValue("user_id")
	noteID := r.FormValue("note_id")
	if userID == "" || noteID == "" {
		respondError(w, http.StatusBadRequest, "user_id and note_id are required")
		return
	}

	if err := a.store.CreateNote(r.Context(), store.NewNoteNamespace(userID, noteID)); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "note_id": noteID})
}

func (a *App) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	userID := r.FormValue("user_id")
	noteID := r.FormValue("note_id")
	if userID == "" || noteID == "" {
		respondError(w, http.StatusBadRequest, "user_id and note_id are required")
		return
	}

	ctx := r.Context()
	ns := store.NewNoteNamespace(userID, noteID)
	if err := a.store.DeleteNote(ctx, ns); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Note deletion also drops the note's blobs.
	if err := a.store.DeleteFiles(ctx, ns); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "note_id": noteID})
}

func (a *App) handleNoteList(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	notes, err := a.store.ListNotes(r.Context(), store.NewUserNamespace(userID))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "notes": notes})
}

func (a *App) handleNoteContent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]
	noteID := vars["note_id"]

	noteContent, err := a.reassembler.NoteContent(r.Context(), userID, noteID)
	if err != nil {
		a.log.Error().Err(err).Str("user", userID).Str("note", noteID).Msg("failed to assemble note content")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   true,
			"message": err.Error(),
			"note_id": noteID,
			"user_id": userID,
		})
		return
	}
	respondJSON(w, http.StatusOK, noteContent)
}

func (a *App) handleGetHashtags(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]
	noteID := vars["note_id"]

	tags, err := a.store.GetTags(r.Context(), store.NewNoteNamespace(userID, noteID))
	if errors.Is(err, store.ErrNoteNotFound) {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"note_id": noteID, "hashtags": tags})
}

// handleSummary generates a summary for one note, or for several when
// note_id carries comma-joined ids.
func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	userID := r.FormValue("user_id")
	noteID := r.FormValue("note_id")
	if userID == "" || noteID == "" {
		respondError(w, http.StatusBadRequest, "user_id and note_id are required")
		return
	}

	var noteIDs []string
	for _, id := range strings.Split(noteID, ",") {
		if id = strings.TrimSpace(id); id != "" {
			noteIDs = append(noteIDs, id)
		}
	}
	if len(noteIDs) == 0 {
		respondError(w, http.StatusBadRequest, "note_id is required")
		return
	}

	summary, err := a.ai.Summarize(r.Context(), userID, noteIDs, r.FormValue("custom_prompt"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (a *App) handleGenHashtag(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	userID := r.FormValue("user_id")
	noteID := r.FormValue("note_id")
	if userID == "" || noteID == "" {
		respondError(w, http.StatusBadRequest, "user_id and note_id are required")
		return
	}

	tags, err := a.ai.GenerateHashtags(r.Context(), userID, noteID)
	if errors.Is(err, store.ErrNoteNotFound) {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"hashtags": tags})
}

// handleTranscribe converts an uploaded recording to text through the
// speech provider. Provider rate limiting passes through as 429.
func (a *App) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !ai.SupportedAudioExt(ext) {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported audio format %q", ext))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read audio file")
		return
	}
	if len(data) > ai.MaxTranscribeBytes {
		respondError(w, http.StatusBadRequest, "audio file exceeds 25 MB limit")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = ai.DefaultLanguage
	}

	text, err := a.transcriber.Transcribe(r.Context(), ai.TranscriptionRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Language:    language,
	})
	if err != nil {
		if ai.IsRateLimited(err) {
			respondError(w, http.StatusTooManyRequests, "transcription rate limited, try again later")
			return
		}
		a.log.Error().Err(err).Str("filename", header.Filename).Msg("transcription failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// handleSearch scans the user's text lines for the query. A user with no
// notes at all is a 404; a query with no matches is an empty result.
func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	ctx := r.Context()
	noteIDs, err := a.store.ListNotes(ctx, store.NewUserNamespace(userID))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(noteIDs) == 0 {
		respondError(w, http.StatusNotFound, "no notes found for user")
		return
	}

	start := time.Now()
	results, err := search.Notes(ctx, a.store, userID, noteIDs, query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":          query,
		"user_id":        userID,
		"notes":          results,
		"total_matches":  search.TotalMatches(results),
		"searched_notes": len(noteIDs),
		"search_time":    time.Since(start).Seconds(),
	})
}

func (a *App) handleNotify(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	message, err := a.ai.Notify(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (a *App) handleCalendarLink(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]
	noteID := vars["note_id"]

	events, err := a.ai.CalendarEvents(r.Context(), userID, noteID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, events)
}
