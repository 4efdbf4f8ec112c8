// Package client provides a Go HTTP client for programmatic access to the
// kotoba API.
//
// The client mirrors the server's endpoint structure with strongly-typed
// methods: diary line uploads, note management, content retrieval, search and
// the AI features (summary, hashtags, notification, calendar extraction,
// transcription). Request encoding matches the server's expectations: simple
// operations use form encoding, uploads use multipart.
//
// Authentication is token based. [Client.Register] and [Client.Login] store
// the returned token on the client, which then sends it as a bearer token on
// every subsequent request.
//
// All errors include the HTTP status code and response body for debugging.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/search"
)

// Client provides strongly-typed access to the kotoba REST API.
//
// Client instances are safe for concurrent use by multiple goroutines once
// authentication has been established.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a new kotoba API client.
//
// The baseURL should include the protocol and host (e.g.
// "http://localhost:8080") without a trailing slash or API path prefix.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuthToken sets the authentication token for the client.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// doForm performs a form-encoded POST request.
func (c *Client) doForm(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setAuth(req)
	return c.httpClient.Do(req)
}

// doGet performs a GET request.
func (c *Client) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	return c.httpClient.Do(req)
}

func (c *Client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// decodeResponse decodes the JSON response into the target struct.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doGet(ctx, "/health")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Authentication

// AuthResponse is the result of a successful register or login call.
type AuthResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Register creates an account and stores the returned session token on the
// client.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	resp, err := c.doForm(ctx, "/api/register", url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		return nil, err
	}

	var result AuthResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	c.authToken = result.Token
	return &result, nil
}

// Login authenticates and stores the returned session token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	resp, err := c.doForm(ctx, "/api/login", url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		return nil, err
	}

	var result AuthResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	c.authToken = result.Token
	return &result, nil
}

// Diary entries

// Attachment is a media file sent alongside a diary line.
type Attachment struct {
	Filename string
	Data     []byte
}

// UploadLineRequest describes one diary line upload. LineID 0 clears the
// note's existing lines before the write. The attachments are optional and
// constrained by the server: audio must be .wav, image .jpg, video .mp4.
type UploadLineRequest struct {
	UserID string
	NoteID string
	LineID int
	Type   string
	Text   string
	Audio  *Attachment
	Image  *Attachment
	Video  *Attachment
}

// UploadLine sends one diary line, with any attached media, to the server.
func (c *Client) UploadLine(ctx context.Context, upload UploadLineRequest) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"user_id": upload.UserID,
		"note_id": upload.NoteID,
		"line_id": strconv.Itoa(upload.LineID),
		"type":    upload.Type,
		"text":    upload.Text,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	attachments := map[string]*Attachment{
		"audio": upload.Audio,
		"image": upload.Image,
		"video": upload.Video,
	}
	for field, attachment := range attachments {
		if attachment == nil {
			continue
		}
		fw, err := w.CreateFormFile(field, attachment.Filename)
		if err != nil {
			return fmt.Errorf("failed to create form file %s: %w", field, err)
		}
		if _, err := fw.Write(attachment.Data); err != nil {
			return fmt.Errorf("failed to write form file %s: %w", field, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// CreateNote registers a note in the user's index.
func (c *Client) CreateNote(ctx context.Context, userID, noteID string) error {
	resp, err := c.doForm(ctx, "/api/create", url.Values{
		"user_id": {userID},
		"note_id": {noteID},
	})
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// DeleteNote removes a note, its lines and its media.
func (c *Client) DeleteNote(ctx context.Context, userID, noteID string) error {
	resp, err := c.doForm(ctx, "/api/delete", url.Values{
		"user_id": {userID},
		"note_id": {noteID},
	})
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// ListNotes lists the user's note ids.
func (c *Client) ListNotes(ctx context.Context, userID string) ([]string, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/note_list/%s", url.PathEscape(userID)))
	if err != nil {
		return nil, err
	}

	var result struct {
		Notes []string `json:"notes"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Notes, nil
}

// GetNoteContent retrieves the note's full content with media reassembled
// inline.
func (c *Client) GetNoteContent(ctx context.Context, userID, noteID string) (*models.NoteContent, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/notes/%s/%s",
		url.PathEscape(userID), url.PathEscape(noteID)))
	if err != nil {
		return nil, err
	}

	var result models.NoteContent
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHashtags retrieves the note's stored tag set.
func (c *Client) GetHashtags(ctx context.Context, userID, noteID string) ([]string, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/notes/%s/%s/hashtags",
		url.PathEscape(userID), url.PathEscape(noteID)))
	if err != nil {
		return nil, err
	}

	var result struct {
		Hashtags []string `json:"hashtags"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Hashtags, nil
}

// Search

// SearchResult is the server's response to a search request.
type SearchResult struct {
	Query         string                    `json:"query"`
	UserID        string                    `json:"user_id"`
	Notes         map[string][]search.Match `json:"notes"`
	TotalMatches  int                       `json:"total_matches"`
	SearchedNotes int                       `json:"searched_notes"`
	SearchTime    float64                   `json:"search_time"`
}

// Search scans the user's text lines for the query.
func (c *Client) Search(ctx context.Context, userID, query string) (*SearchResult, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/search/%s?query=%s",
		url.PathEscape(userID), url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AI features

// Summarize generates a summary over one or more notes. An empty
// customPrompt uses the server's default instructions.
func (c *Client) Summarize(ctx context.Context, userID string, noteIDs []string, customPrompt string) (string, error) {
	values := url.Values{
		"user_id": {userID},
		"note_id": {strings.Join(noteIDs, ",")},
	}
	if customPrompt != "" {
		values.Set("custom_prompt", customPrompt)
	}

	resp, err := c.doForm(ctx, "/api/summary", values)
	if err != nil {
		return "", err
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return result.Summary, nil
}

// GenerateHashtags generates and persists hashtags for the note.
func (c *Client) GenerateHashtags(ctx context.Context, userID, noteID string) ([]string, error) {
	resp, err := c.doForm(ctx, "/api/gen_hashtag", url.Values{
		"user_id": {userID},
		"note_id": {noteID},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Hashtags []string `json:"hashtags"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Hashtags, nil
}

// Transcribe converts a recording to text. An empty language uses the
// server's default.
func (c *Client) Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	fw, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/audio/transcribe", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// Notify generates an encouragement message from the user's recent notes.
func (c *Client) Notify(ctx context.Context, userID string) (string, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/notify/%s", url.PathEscape(userID)))
	if err != nil {
		return "", err
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// CalendarEvents extracts dated events from the note's text.
func (c *Client) CalendarEvents(ctx context.Context, userID, noteID string) ([]models.CalendarEvent, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/link/%s/%s",
		url.PathEscape(userID), url.PathEscape(noteID)))
	if err != nil {
		return nil, err
	}

	var result []models.CalendarEvent
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}
