package kotobatesting

import (
	"context"
	"sync"

	"github.com/kotoba-app/kotoba/pkg/ai"
)

// FakeCompleter returns a scripted response and records every request it
// receives.
type FakeCompleter struct {
	mu       sync.Mutex
	Response string
	Err      error
	Requests []ai.CompletionRequest
}

var _ ai.Completer = (*FakeCompleter)(nil)

func (f *FakeCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

// LastRequest returns the most recent request, or a zero request when none
// was made.
func (f *FakeCompleter) LastRequest() ai.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return ai.CompletionRequest{}
	}
	return f.Requests[len(f.Requests)-1]
}

// FakeTranscriber returns a scripted transcript and records requests.
type FakeTranscriber struct {
	mu       sync.Mutex
	Text     string
	Err      error
	Requests []ai.TranscriptionRequest
}

var _ ai.Transcriber = (*FakeTranscriber)(nil)

func (f *FakeTranscriber) Transcribe(ctx context.Context, req ai.TranscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text, nil
}
