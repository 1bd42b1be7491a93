// Package vad defines the Detector interface for streaming voice activity
// detection backends.
//
// A VAD detector wraps a frame-level speech model (e.g., Silero) and
// surfaces it as a stateful per-session stream. Each session owns its own
// model cache so that concurrent client connections can be processed
// independently.
//
// Detection is synchronous: DetectSpeech returns immediately with a
// boolean, making it suitable for the per-chunk decision that gates the
// ASR endpointer. Model failures on a single chunk are soft; callers treat
// an error as "no speech" and keep the session alive.
//
// Implementations must be safe for concurrent use across different
// sessions. A single SessionHandle must not be shared across goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the chunks passed to
	// DetectSpeech. The pipeline always feeds 16000.
	SampleRate int

	// Threshold is the model's speech probability threshold. Range [0, 1].
	Threshold float32

	// MinSilenceSeconds is the model-side minimum silence needed to close a
	// speech segment. This is independent of the pipeline's own 2.0 s
	// endpointing threshold, which is applied on top.
	MinSilenceSeconds float32

	// MinSpeechSeconds is the model-side minimum duration for a segment to
	// count as speech.
	MinSpeechSeconds float32
}

// SessionHandle is an active VAD stream for one client session.
type SessionHandle interface {
	// DetectSpeech feeds one chunk of 16 kHz mono float32 samples to the
	// model and reports whether the model emitted at least one speech
	// segment for it. The internal model cache carries over between calls.
	DetectSpeech(chunk []float32) (bool, error)

	// Reset clears the internal model cache without closing the session.
	// Called on mode transitions so stale state cannot leak across
	// utterances.
	Reset()

	// Close releases session resources. Calling Close more than once is safe.
	Close() error
}

// Detector is the factory for VAD sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously.
type Detector interface {
	NewSession(cfg Config) (SessionHandle, error)
}
