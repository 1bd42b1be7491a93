// Package mock provides test doubles for the vad package interfaces.
//
// Use Session to script per-chunk speech decisions and inspect the chunks
// that were submitted:
//
//	sess := &mock.Session{Results: []bool{false, true, true}}
//	det := &mock.Detector{Session: sess}
package mock

import (
	"sync"

	"github.com/triamed/voicefront/pkg/provider/vad"
)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

func (d *Detector) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NewSessionCalls = append(d.NewSessionCalls, cfg)
	if d.NewSessionErr != nil {
		return nil, d.NewSessionErr
	}
	if d.Session != nil {
		return d.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Detector = (*Detector)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Results is consumed one element per DetectSpeech call. When exhausted
	// (or empty), DetectSpeech returns Default.
	Results []bool

	// Default is returned once Results is exhausted.
	Default bool

	// Err, if non-nil, is returned by every DetectSpeech call.
	Err error

	// Chunks records a copy of every chunk passed to DetectSpeech.
	Chunks [][]float32

	// ResetCalls counts Reset invocations.
	ResetCalls int

	// Closed reports whether Close was called.
	Closed bool
}

func (s *Session) DetectSpeech(chunk []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(chunk))
	copy(cp, chunk)
	s.Chunks = append(s.Chunks, cp)
	if s.Err != nil {
		return false, s.Err
	}
	if len(s.Results) > 0 {
		r := s.Results[0]
		s.Results = s.Results[1:]
		return r, nil
	}
	return s.Default, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

var _ vad.SessionHandle = (*Session)(nil)
