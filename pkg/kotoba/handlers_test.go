package kotoba_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kotobaai "github.com/kotoba-app/kotoba/pkg/ai"
	"github.com/kotoba-app/kotoba/pkg/kotoba"
	"github.com/kotoba-app/kotoba/pkg/kotobatesting"
	"github.com/kotoba-app/kotoba/pkg/models"
)

type testEnv struct {
	app         *kotoba.App
	store       *kotobatesting.MemStore
	completer   *kotobatesting.FakeCompleter
	transcriber *kotobatesting.FakeTranscriber
	handler     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := kotobatesting.NewMemStore()
	completer := &kotobatesting.FakeCompleter{}
	transcriber := &kotobatesting.FakeTranscriber{}
	app := kotoba.NewWithDeps(st, completer, transcriber, zerolog.Nop(), &kotoba.Config{ServerPort: "8080"})
	return &testEnv{
		app:         app,
		store:       st,
		completer:   completer,
		transcriber: transcriber,
		handler:     app.Handler(),
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest("GET", path, nil))
}

// newUploadRequest builds a multipart upload request with the given form
// fields and at most one attached file.
func newUploadRequest(t *testing.T, path string, fields map[string]string, fileField, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/api/health"} {
		rr := env.get(path)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]string
		decodeJSON(t, rr, &resp)
		assert.Equal(t, "ok", resp["status"])
	}
}

func TestUploadTextLine(t *testing.T) {
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "1",
		"type":    "text",
		"text":    "went hiking today",
	}, "", "", nil)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// The upload registers the note in the index.
	rr = env.get("/api/note_list/alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		UserID string   `json:"user_id"`
		Notes  []string `json:"notes"`
	}
	decodeJSON(t, rr, &list)
	assert.Equal(t, []string{"20250831"}, list.Notes)

	rr = env.get("/api/notes/alice/20250831")
	require.Equal(t, http.StatusOK, rr.Code)
	var content models.NoteContent
	decodeJSON(t, rr, &content)
	require.Len(t, content.Items, 1)
	assert.Equal(t, 1, content.Items[0].LineID)
	assert.Equal(t, "went hiking today", content.Items[0].Text)
}

func TestUploadReplacesLine(t *testing.T) {
	env := newTestEnv(t)

	for _, text := range []string{"first draft", "second draft"} {
		req := newUploadRequest(t, "/api/upload", map[string]string{
			"user_id": "alice",
			"note_id": "20250831",
			"line_id": "1",
			"type":    "text",
			"text":    text,
		}, "", "", nil)
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	rr := env.get("/api/notes/alice/20250831")
	var content models.NoteContent
	decodeJSON(t, rr, &content)
	require.Len(t, content.Items, 1)
	assert.Equal(t, "second draft", content.Items[0].Text)
}

func TestUploadLineZeroClears(t *testing.T) {
	env := newTestEnv(t)

	for i, text := range []string{"one", "two", "three"} {
		req := newUploadRequest(t, "/api/upload", map[string]string{
			"user_id": "alice",
			"note_id": "20250831",
			"line_id": map[int]string{0: "1", 1: "2", 2: "3"}[i],
			"type":    "text",
			"text":    text,
		}, "", "", nil)
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "0",
		"type":    "text",
		"text":    "fresh start",
	}, "", "", nil)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	rr := env.get("/api/notes/alice/20250831")
	var content models.NoteContent
	decodeJSON(t, rr, &content)
	require.Len(t, content.Items, 1)
	assert.Equal(t, 0, content.Items[0].LineID)
	assert.Equal(t, "fresh start", content.Items[0].Text)
}

func TestUploadMissingFields(t *testing.T) {
	env := newTestEnv(t)

	cases := []map[string]string{
		{"note_id": "20250831", "line_id": "1", "type": "text"},
		{"user_id": "alice", "line_id": "1", "type": "text"},
		{"user_id": "alice", "note_id": "20250831", "type": "text"},
		{"user_id": "alice", "note_id": "20250831", "line_id": "nope", "type": "text"},
		{"user_id": "alice", "note_id": "20250831", "line_id": "1"},
	}
	for _, fields := range cases {
		req := newUploadRequest(t, "/api/upload", fields, "", "", nil)
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code, "fields: %v", fields)
	}
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		field    string
		filename string
	}{
		{"audio", "voice.mp3"},
		{"image", "photo.png"},
		{"video", "clip.mov"},
	}
	for _, tc := range cases {
		req := newUploadRequest(t, "/api/upload", map[string]string{
			"user_id": "alice",
			"note_id": "20250831",
			"line_id": "1",
			"type":    tc.field,
		}, tc.field, tc.filename, []byte("data"))
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code, "file: %s", tc.filename)
	}
}

func TestUploadMediaRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	imageData := []byte("fake jpeg bytes")

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "1",
		"type":    "image",
	}, "image", "photo.jpg", imageData)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.get("/api/notes/alice/20250831")
	require.Equal(t, http.StatusOK, rr.Code)
	var content models.NoteContent
	decodeJSON(t, rr, &content)
	require.Len(t, content.Items, 1)
	require.NotNil(t, content.Items[0].Image)
	assert.Equal(t, "photo.jpg", content.Items[0].Image.Filename)

	decoded, err := base64.StdEncoding.DecodeString(content.Items[0].Image.Data)
	require.NoError(t, err)
	assert.Equal(t, imageData, decoded)
	assert.Zero(t, content.SkippedChunks)
}

func TestCreateAndDeleteNote(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm("/api/create", url.Values{
		"user_id": {"alice"},
		"note_id": {"20250831"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.get("/api/note_list/alice")
	var list struct {
		Notes []string `json:"notes"`
	}
	decodeJSON(t, rr, &list)
	assert.Equal(t, []string{"20250831"}, list.Notes)

	rr = env.postForm("/api/delete", url.Values{
		"user_id": {"alice"},
		"note_id": {"20250831"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.get("/api/note_list/alice")
	decodeJSON(t, rr, &list)
	assert.Empty(t, list.Notes)
}

func TestCreateNoteTwiceKeepsOneEntry(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		rr := env.postForm("/api/create", url.Values{
			"user_id": {"alice"},
			"note_id": {"20250831"},
		})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := env.get("/api/note_list/alice")
	var list struct {
		Notes []string `json:"notes"`
	}
	decodeJSON(t, rr, &list)
	assert.Equal(t, []string{"20250831"}, list.Notes)
}

func TestCreateNoteMissingFields(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm("/api/create", url.Values{"user_id": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.postForm("/api/delete", url.Values{"note_id": {"20250831"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetHashtags(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/notes/alice/20250831/hashtags")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.Equal(t, http.StatusOK, env.postForm("/api/create", url.Values{
		"user_id": {"alice"},
		"note_id": {"20250831"},
	}).Code)

	rr = env.get("/api/notes/alice/20250831/hashtags")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		NoteID   string   `json:"note_id"`
		Hashtags []string `json:"hashtags"`
	}
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "20250831", resp.NoteID)
	assert.Empty(t, resp.Hashtags)
}

func TestGenHashtagPersists(t *testing.T) {
	env := newTestEnv(t)
	env.completer.Response = "#旅行, #美食, #放鬆"

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "1",
		"type":    "text",
		"text":    "吃了好吃的拉麵",
	}, "", "", nil)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	rr := env.postForm("/api/gen_hashtag", url.Values{
		"user_id": {"alice"},
		"note_id": {"20250831"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Hashtags []string `json:"hashtags"`
	}
	decodeJSON(t, rr, &resp)
	assert.Equal(t, []string{"旅行", "美食", "放鬆"}, resp.Hashtags)

	// Generated tags are readable back through the hashtags endpoint.
	rr = env.get("/api/notes/alice/20250831/hashtags")
	require.Equal(t, http.StatusOK, rr.Code)
	var tags struct {
		Hashtags []string `json:"hashtags"`
	}
	decodeJSON(t, rr, &tags)
	assert.Equal(t, []string{"旅行", "美食", "放鬆"}, tags.Hashtags)
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	env.completer.Response = "今天去爬山，天氣很好。"

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "1",
		"type":    "text",
		"text":    "早上去爬山",
	}, "", "", nil)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	rr := env.postForm("/api/summary", url.Values{
		"user_id": {"alice"},
		"note_id": {"20250831"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "今天去爬山，天氣很好。", resp["summary"])

	assert.Contains(t, env.completer.LastRequest().User, "早上去爬山")
}

func TestSummaryMissingFields(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm("/api/summary", url.Values{"user_id": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.postForm("/api/summary", url.Values{"user_id": {"alice"}, "note_id": {" , "}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	// Unknown user has no notes at all.
	rr := env.get("/api/search/alice?query=hiking")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for note, text := range map[string]string{
		"20250830": "went hiking in the mountains",
		"20250831": "stayed home and read",
	} {
		req := newUploadRequest(t, "/api/upload", map[string]string{
			"user_id": "alice",
			"note_id": note,
			"line_id": "1",
			"type":    "text",
			"text":    text,
		}, "", "", nil)
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	rr = env.get("/api/search/alice?query=HIKING")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Query         string                       `json:"query"`
		UserID        string                       `json:"user_id"`
		Notes         map[string][]json.RawMessage `json:"notes"`
		TotalMatches  int                          `json:"total_matches"`
		SearchedNotes int                          `json:"searched_notes"`
	}
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "HIKING", resp.Query)
	assert.Equal(t, 1, resp.TotalMatches)
	assert.Equal(t, 2, resp.SearchedNotes)
	assert.Contains(t, resp.Notes, "20250830")
	assert.NotContains(t, resp.Notes, "20250831")

	rr = env.get("/api/search/alice?query=")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotify(t *testing.T) {
	env := newTestEnv(t)
	env.completer.Response = "記得記錄今天的美好時刻！"

	rr := env.get("/api/notify/alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "記得記錄今天的美好時刻！", resp["message"])
}

func TestCalendarLink(t *testing.T) {
	env := newTestEnv(t)
	env.completer.Response = `[{"time":"20250901","event":"牙醫預約"}]`

	req := newUploadRequest(t, "/api/upload", map[string]string{
		"user_id": "alice",
		"note_id": "20250831",
		"line_id": "1",
		"type":    "text",
		"text":    "明天要看牙醫",
	}, "", "", nil)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	rr := env.get("/api/link/alice/20250831")
	require.Equal(t, http.StatusOK, rr.Code)
	var events []models.CalendarEvent
	decodeJSON(t, rr, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "20250901", events[0].Time)
	assert.Equal(t, "牙醫預約", events[0].Event)
}

func TestTranscribe(t *testing.T) {
	env := newTestEnv(t)
	env.transcriber.Text = "今天天氣很好"

	req := newUploadRequest(t, "/api/audio/transcribe", map[string]string{},
		"audio", "recording.wav", []byte("riff data"))
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "今天天氣很好", resp["text"])

	require.Len(t, env.transcriber.Requests, 1)
	assert.Equal(t, kotobaai.DefaultLanguage, env.transcriber.Requests[0].Language)
	assert.Equal(t, "recording.wav", env.transcriber.Requests[0].Filename)
}

func TestTranscribeLanguageOverride(t *testing.T) {
	env := newTestEnv(t)
	env.transcriber.Text = "nice weather today"

	req := newUploadRequest(t, "/api/audio/transcribe", map[string]string{
		"language": "en",
	}, "audio", "recording.m4a", []byte("aac data"))
	require.Equal(t, http.StatusOK, env.do(req).Code)

	require.Len(t, env.transcriber.Requests, 1)
	assert.Equal(t, "en", env.transcriber.Requests[0].Language)
}

func TestTranscribeRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/audio/transcribe", map[string]string{},
		"audio", "notes.txt", []byte("not audio"))
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)

	req = newUploadRequest(t, "/api/audio/transcribe", map[string]string{}, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestTranscribeRejectsOversizeAudio(t *testing.T) {
	env := newTestEnv(t)

	req := newUploadRequest(t, "/api/audio/transcribe", map[string]string{},
		"audio", "recording.wav", make([]byte, kotobaai.MaxTranscribeBytes+1))
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
	assert.Empty(t, env.transcriber.Requests)
}

func TestTranscribeRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.transcriber.Err = &openai.Error{StatusCode: http.StatusTooManyRequests}

	req := newUploadRequest(t, "/api/audio/transcribe", map[string]string{},
		"audio", "recording.wav", []byte("riff data"))
	assert.Equal(t, http.StatusTooManyRequests, env.do(req).Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.postForm("/api/register", url.Values{
		"username": {"alice"},
		"password": {"s3cret-password"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var reg map[string]string
	decodeJSON(t, rr, &reg)
	assert.Equal(t, "alice", reg["username"])
	assert.Len(t, reg["token"], 64)

	// Usernames are unique.
	rr = env.postForm("/api/register", url.Values{
		"username": {"alice"},
		"password": {"another"},
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.postForm("/api/login", url.Values{
		"username": {"alice"},
		"password": {"s3cret-password"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var login map[string]string
	decodeJSON(t, rr, &login)
	assert.Len(t, login["token"], 64)
	assert.NotEqual(t, reg["token"], login["token"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.postForm("/api/register", url.Values{
		"username": {"alice"},
		"password": {"s3cret-password"},
	}).Code)

	rr := env.postForm("/api/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.postForm("/api/login", url.Values{
		"username": {"nobody"},
		"password": {"s3cret-password"},
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.postForm("/api/login", url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
