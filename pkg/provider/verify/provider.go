// Package verify defines the Verifier interface for speaker verification
// backends.
//
// Verification compares the session's enrollment sample against a candidate
// speaker's audio and reports a verdict plus a similarity score. The gate
// applies its own threshold on the score; the verdict only breaks ties at
// the exact threshold. A missing score always fails, so a backend that can
// only produce verdicts cannot silently pass audio through.
package verify

import "context"

// Verdict is the backend's own yes/no opinion. Unknown means the backend
// produced neither.
type Verdict string

const (
	VerdictYes     Verdict = "yes"
	VerdictNo      Verdict = "no"
	VerdictUnknown Verdict = ""
)

// Result carries the backend's decision material. HasScore distinguishes a
// genuine 0.0 similarity from an absent score.
type Result struct {
	Verdict  Verdict
	Score    float64
	HasScore bool
}

// Verifier compares two 16 kHz mono WAV files.
//
// Implementations must be safe for concurrent use.
type Verifier interface {
	// Verify compares the speaker of samplePath against the enrollment
	// recording at enrollPath.
	Verify(ctx context.Context, enrollPath, samplePath string) (Result, error)
}
