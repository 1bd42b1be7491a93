// Package sherpa implements the vad.Detector interface on top of the
// sherpa-onnx Silero VAD model.
package sherpa

import (
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/triamed/voicefront/pkg/provider/vad"
)

// Detector creates Silero VAD sessions from a shared model file. The ONNX
// model itself is loaded per session; sessions are independent.
type Detector struct {
	modelPath  string
	numThreads int
}

// Option configures a Detector.
type Option func(*Detector)

// WithNumThreads sets the ONNX runtime thread count per session. Default 1.
func WithNumThreads(n int) Option {
	return func(d *Detector) { d.numThreads = n }
}

// New creates a Detector backed by the Silero VAD model at modelPath.
func New(modelPath string, opts ...Option) (*Detector, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("sherpa vad: model path is required")
	}
	d := &Detector{modelPath: modelPath, numThreads: 1}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// NewSession creates an independent VAD stream.
func (d *Detector) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sherpa vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Threshold <= 0 {
		// Silero's speech probability is strictly positive; a zero
		// threshold would classify every frame as speech.
		cfg.Threshold = 0.5
	}
	modelCfg := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              d.modelPath,
			Threshold:          cfg.Threshold,
			MinSilenceDuration: cfg.MinSilenceSeconds,
			MinSpeechDuration:  cfg.MinSpeechSeconds,
			WindowSize:         512,
		},
		SampleRate: cfg.SampleRate,
		NumThreads: d.numThreads,
		Debug:      0,
	}

	// 30 s ring buffer, same head-room as an offline transcription pass.
	v := sherpa.NewVoiceActivityDetector(&modelCfg, 30)
	if v == nil {
		return nil, fmt.Errorf("sherpa vad: failed to create detector from %s", d.modelPath)
	}
	return &session{vad: v}, nil
}

var _ vad.Detector = (*Detector)(nil)

type session struct {
	mu     sync.Mutex
	vad    *sherpa.VoiceActivityDetector
	closed bool
}

// DetectSpeech feeds the chunk and drains any completed speech segments.
// The chunk counts as speech when the model emitted at least one segment.
func (s *session) DetectSpeech(chunk []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("sherpa vad: session closed")
	}

	s.vad.AcceptWaveform(chunk)
	speech := false
	for !s.vad.IsEmpty() {
		s.vad.Front()
		s.vad.Pop()
		speech = true
	}
	return speech, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.vad.Flush()
	for !s.vad.IsEmpty() {
		s.vad.Pop()
	}
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sherpa.DeleteVoiceActivityDetector(s.vad)
	return nil
}

var _ vad.SessionHandle = (*session)(nil)
