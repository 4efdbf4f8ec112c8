package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// Fallback values returned when the provider fails or its output cannot be
// used. They are user-facing strings, not errors.
const (
	SummaryFallback  = "無法生成摘要，請稍後再試。"
	NotifyFallback   = "今天也記錄一下你的生活故事吧！每一天都值得被記住 ✨"
	CalendarFallback = "無法解析行程，請稍後再試。"
)

// PadHashtags top up a too-short tag list; FallbackHashtags replace the tag
// list entirely when generation fails.
var (
	PadHashtags      = []string{"日常", "生活記錄", "今日感想"}
	FallbackHashtags = []string{"日記", "生活", "記錄"}
)

const (
	minHashtags = 3
	maxHashtags = 6

	// recentNotesForNotify bounds how much diary history feeds the
	// encouragement prompt.
	recentNotesForNotify = 5
)

// Service implements the diary's AI features on top of a Completer and the
// store. All methods degrade to fallbacks; only store write failures are
// returned as errors.
type Service struct {
	store     store.Store
	completer Completer
	log       zerolog.Logger
}

func NewService(s store.Store, c Completer, log zerolog.Logger) *Service {
	return &Service{store: s, completer: c, log: log}
}

// noteText concatenates the text lines of one note.
func (s *Service) noteText(ctx context.Context, user, note string) (string, error) {
	lines, err := s.store.ListLines(ctx, store.NewNoteNamespace(user, note))
	if err != nil {
		return "", fmt.Errorf("failed to read note %s: %w", note, err)
	}
	var b strings.Builder
	for _, line := range lines {
		if line.Type != models.LineTypeText || line.Text == "" {
			continue
		}
		b.WriteString(line.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Summarize generates a summary over one or more notes. noteIDs holds the
// comma-split note ids from the request; more than one id yields a combined
// single-paragraph summary.
func (s *Service) Summarize(ctx context.Context, user string, noteIDs []string, customPrompt string) (string, error) {
	var b strings.Builder
	for _, noteID := range noteIDs {
		text, err := s.noteText(ctx, user, noteID)
		if err != nil {
			return "", err
		}
		if len(noteIDs) > 1 {
			b.WriteString("【")
			b.WriteString(noteID)
			b.WriteString("】\n")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out, err := s.completer.Complete(ctx, CompletionRequest{
		System:      summarySystemPrompt,
		User:        buildSummaryUserPrompt(b.String(), customPrompt, len(noteIDs) > 1),
		Temperature: 0.4,
		MaxTokens:   300,
		TopP:        0.9,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user", user).Strs("notes", noteIDs).Msg("summary generation failed")
		return SummaryFallback, nil
	}
	return strings.TrimSpace(out), nil
}

// GenerateHashtags generates 3 to 6 hashtags for the note and persists them
// as the note's tag set. On completion failure the fallback tags are
// persisted too, so the note never ends up tagless after a generation
// attempt.
func (s *Service) GenerateHashtags(ctx context.Context, user, note string) ([]string, error) {
	ns := store.NewNoteNamespace(user, note)

	text, err := s.noteText(ctx, user, note)
	if err != nil {
		return nil, err
	}

	out, err := s.completer.Complete(ctx, CompletionRequest{
		System:      hashtagSystemPrompt,
		User:        buildHashtagUserPrompt(text),
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user", user).Str("note", note).Msg("hashtag generation failed")
		tags := append([]string(nil), FallbackHashtags...)
		if err := s.store.SetTags(ctx, ns, tags); err != nil {
			return nil, fmt.Errorf("failed to persist fallback hashtags: %w", err)
		}
		return tags, nil
	}

	tags := CleanHashtags(out)
	if err := s.store.SetTags(ctx, ns, tags); err != nil {
		return nil, fmt.Errorf("failed to persist hashtags: %w", err)
	}
	return tags, nil
}

// CleanHashtags normalizes raw completion output into 3 to 6 tags: split on
// commas, strip decoration characters, drop empties, clamp to the maximum
// and pad to the minimum with the defaults.
func CleanHashtags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		clean := strings.TrimSpace(tag)
		clean = strings.NewReplacer("#", "", "「", "", "」", "", "[", "", "]", "", `"`, "", "'", "").Replace(clean)
		clean = strings.TrimSpace(clean)
		if clean != "" {
			tags = append(tags, clean)
		}
	}

	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}
	if len(tags) < minHashtags {
		tags = append(tags, PadHashtags[:minHashtags-len(tags)]...)
	}
	return tags
}

// Notify generates a short encouragement message from the user's recent
// notes. The message never fails: provider errors yield the fixed fallback.
func (s *Service) Notify(ctx context.Context, user string) (string, error) {
	noteIDs, err := s.store.ListNotes(ctx, store.NewUserNamespace(user))
	if err != nil {
		return "", fmt.Errorf("failed to list notes: %w", err)
	}
	if len(noteIDs) > recentNotesForNotify {
		noteIDs = noteIDs[len(noteIDs)-recentNotesForNotify:]
	}

	var entries []noteDigest
	for _, noteID := range noteIDs {
		text, err := s.noteText(ctx, user, noteID)
		if err != nil {
			return "", err
		}
		entries = append(entries, noteDigest{date: noteID, text: text})
	}

	out, err := s.completer.Complete(ctx, CompletionRequest{
		System:      notifySystemPrompt,
		User:        buildNotifyUserPrompt(entries),
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user", user).Msg("notification generation failed")
		return NotifyFallback, nil
	}
	return strings.TrimSpace(out), nil
}

// CalendarEvents extracts dated events from the note's text. The completion
// must be a JSON array of {"time":"YYYYMMDD","event":...}; markdown code
// fences around it are tolerated. Unparseable output degrades to a single
// fallback event carrying the raw text.
func (s *Service) CalendarEvents(ctx context.Context, user, note string) ([]models.CalendarEvent, error) {
	text, err := s.noteText(ctx, user, note)
	if err != nil {
		return nil, err
	}

	out, err := s.completer.Complete(ctx, CompletionRequest{
		System:      calendarSystemPrompt,
		User:        buildCalendarUserPrompt(note, text),
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user", user).Str("note", note).Msg("calendar extraction failed")
		return []models.CalendarEvent{{Time: note, Event: CalendarFallback}}, nil
	}

	events, err := ParseCalendarEvents(out)
	if err != nil {
		s.log.Warn().Err(err).Str("user", user).Str("note", note).Msg("calendar output unparseable")
		return []models.CalendarEvent{{Time: note, Event: CalendarFallback + " " + strings.TrimSpace(out)}}, nil
	}
	return events, nil
}

// ParseCalendarEvents parses the completion output into events, stripping
// markdown code fences first.
func ParseCalendarEvents(raw string) ([]models.CalendarEvent, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var events []models.CalendarEvent
	if err := json.Unmarshal([]byte(cleaned), &events); err != nil {
		return nil, fmt.Errorf("completion is not a calendar event array: %w", err)
	}
	if events == nil {
		events = []models.CalendarEvent{}
	}
	return events, nil
}
