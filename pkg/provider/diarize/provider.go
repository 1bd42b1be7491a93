// Package diarize defines the Transcriber interface for the offline
// speaker-separating recognizer that runs on finalized utterances.
//
// The model output is parsed into a flat sentence list with explicit
// speaker attribution; callers never touch raw model structures. Absent
// speaker labels are represented explicitly (HasSpeaker=false) rather than
// with a magic value.
package diarize

import "context"

// Sentence is one recognized span of the finalized utterance.
type Sentence struct {
	// Text is the recognized text of the span.
	Text string

	// StartMs and EndMs locate the span inside the utterance WAV.
	StartMs int
	EndMs   int

	// Speaker is the model-assigned speaker label, valid only when
	// HasSpeaker is true.
	Speaker    int
	HasSpeaker bool
}

// Transcriber runs speaker-separating recognition over a finalized
// utterance WAV.
//
// Implementations must be safe for concurrent use; finalize passes for
// different sessions may overlap.
type Transcriber interface {
	// Transcribe recognizes the WAV at path and returns its sentences in
	// model order. batchSize is an opaque decoding hint scaled by the
	// caller from the utterance duration (60/120/300).
	//
	// An empty sentence list is a valid result (nothing recognized), not an
	// error.
	Transcribe(ctx context.Context, path string, batchSize int) ([]Sentence, error)
}
