// Package mock provides scriptable test doubles for synth.Synthesizer and
// synth.BatchSynthesizer.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/triamed/voicefront/pkg/provider/synth"
)

// Synthesizer is a mock implementation of synth.Synthesizer. By default it
// returns WAVFor(text) when set, else WAV.
type Synthesizer struct {
	mu sync.Mutex

	// WAV is the default payload returned by Synthesize.
	WAV []byte

	// WAVFor overrides WAV for specific segment texts.
	WAVFor map[string][]byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Delay, if set, is how long Synthesize sleeps before returning. Used
	// to exercise cancellation between segments.
	Delay time.Duration

	// Requests records every Synthesize request in order.
	Requests []synth.Request
}

func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) ([]byte, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if wav, ok := s.WAVFor[req.Text]; ok {
		return wav, nil
	}
	return s.WAV, nil
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

// BatchSynthesizer extends Synthesizer with a scriptable batch path.
type BatchSynthesizer struct {
	Synthesizer

	// BatchErr, if non-nil, is returned by SynthesizeBatch so callers must
	// fall back to per-segment calls.
	BatchErr error

	// Batches records the texts of every SynthesizeBatch call.
	Batches [][]string
}

func (s *BatchSynthesizer) SynthesizeBatch(ctx context.Context, texts []string, req synth.Request) ([][]byte, error) {
	s.mu.Lock()
	s.Batches = append(s.Batches, texts)
	if s.BatchErr != nil {
		s.mu.Unlock()
		return nil, s.BatchErr
	}
	s.mu.Unlock()

	out := make([][]byte, len(texts))
	for i, t := range texts {
		r := req
		r.Text = t
		wav, err := s.Synthesize(ctx, r)
		if err != nil {
			return nil, err
		}
		out[i] = wav
	}
	return out, nil
}

var _ synth.BatchSynthesizer = (*BatchSynthesizer)(nil)
