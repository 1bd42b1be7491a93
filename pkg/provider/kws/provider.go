// Package kws defines the Spotter interface for keyword-spotting (wake
// word) backends.
//
// Detection runs over a full sliding window of audio rather than chunk by
// chunk: the session layer accumulates 1.6 s of samples and hands the whole
// window to Detect with fresh model state every attempt. This makes wake
// detection insensitive to chunk boundaries while bounding latency to one
// window.
package kws

// Spotter detects a wake phrase in a window of 16 kHz mono float32 audio.
//
// Implementations must be safe for concurrent use; Detect carries no state
// between calls.
type Spotter interface {
	// Detect runs the wake model over the window and returns the recognized
	// keyword text. An empty string means no keyword was found. The caller
	// treats the literal "rejected" the same as empty.
	Detect(window []float32) (string, error)
}
