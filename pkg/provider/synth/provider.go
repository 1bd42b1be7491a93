// Package synth defines the Synthesizer interface for text-to-speech
// backends used by the TTS job service.
//
// A backend synthesizes one text segment per call and returns a complete
// WAV container; the job layer handles segmentation, pauses, and
// concatenation. Backends that can decode several segments in one pass may
// additionally implement BatchSynthesizer; the job layer probes for it and
// falls back to per-segment calls when it is absent or declines.
package synth

import "context"

// Request describes one segment synthesis.
type Request struct {
	// Text is the segment to synthesize.
	Text string

	// Voice selects the backend voice. Backend-specific; empty selects the
	// default voice.
	Voice string

	// SampleRate is the requested output rate in Hz. Default 16000.
	SampleRate int

	// BeamSize is the decoder beam width forwarded to the backend.
	// Default 1.
	BeamSize int
}

// Synthesizer converts one text segment to a WAV container.
//
// Implementations must be safe for concurrent use; segment synthesis within
// one job is serial, but jobs run in parallel on the worker pool.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// BatchSynthesizer is optionally implemented by backends that accept a list
// of segments at once. The returned slice maps to texts by index. A backend
// may return ErrBatchUnsupported-style errors; callers must then fall back
// to per-segment Synthesize calls.
type BatchSynthesizer interface {
	SynthesizeBatch(ctx context.Context, texts []string, req Request) ([][]byte, error)
}
