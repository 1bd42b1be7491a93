// Package mock provides a scriptable test double for diarize.Transcriber.
package mock

import (
	"context"
	"sync"

	"github.com/triamed/voicefront/pkg/provider/diarize"
)

// TranscribeCall records a single Transcribe invocation.
type TranscribeCall struct {
	Path      string
	BatchSize int
}

// Transcriber is a mock implementation of diarize.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Sentences is returned by every Transcribe call.
	Sentences []diarize.Sentence

	// Err, if non-nil, is returned instead.
	Err error

	// Calls records every Transcribe invocation in order.
	Calls []TranscribeCall
}

func (t *Transcriber) Transcribe(ctx context.Context, path string, batchSize int) ([]diarize.Sentence, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{Path: path, BatchSize: batchSize})
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Sentences, nil
}

var _ diarize.Transcriber = (*Transcriber)(nil)
