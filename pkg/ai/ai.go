// Package ai integrates the diary service with a chat-completion and speech
// transcription provider.
//
// The [Completer] and [Transcriber] interfaces isolate the rest of the
// service from the provider SDK; [Client] implements both against the OpenAI
// API. [Service] builds on a Completer plus the store to offer the diary's
// AI features: note summaries, hashtag generation, encouragement
// notifications and calendar event extraction.
//
// Every AI call is a single attempt. On failure the service degrades to a
// fixed user-facing fallback instead of retrying, so provider outages slow
// nothing down and never surface raw errors to diary users.
package ai

import (
	"context"
	"strings"
)

// Completer produces one chat completion from a system and a user prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest carries one chat completion call.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// TopP is applied only when > 0.
	TopP float64
}

// Transcriber converts an audio recording to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// TranscriptionRequest carries one speech-to-text call. Language is a BCP 47
// code such as "zh-TW".
type TranscriptionRequest struct {
	Filename    string
	ContentType string
	Data        []byte
	Language    string
}

// DefaultLanguage is assumed when a transcription request names no language.
const DefaultLanguage = "zh-TW"

// MaxTranscribeBytes is the upload limit the transcription endpoint accepts,
// matching the provider's own file size limit.
const MaxTranscribeBytes = 25 * 1024 * 1024

// transcribeExts are the file extensions the provider accepts.
var transcribeExts = map[string]bool{
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".m4a":  true,
	".wav":  true,
	".webm": true,
}

// SupportedAudioExt reports whether the extension (with leading dot, any
// case) can be transcribed.
func SupportedAudioExt(ext string) bool {
	return transcribeExts[strings.ToLower(ext)]
}
