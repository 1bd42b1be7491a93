// Package sherpa implements the synth.Synthesizer interface using the
// sherpa-onnx offline TTS engine (VITS models).
package sherpa

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/triamed/voicefront/pkg/audio"
	"github.com/triamed/voicefront/pkg/provider/synth"
)

// Config holds the VITS model locations.
type Config struct {
	// Model is the VITS ONNX model path.
	Model string

	// Lexicon and Tokens are the model's lexicon and tokens files.
	Lexicon string
	Tokens  string

	// DictDir is the jieba dictionary directory for Chinese models.
	DictDir string

	// Speed is the synthesis length scale reciprocal. Default 1.0.
	Speed float32

	// NumThreads for the ONNX runtime. Default 1.
	NumThreads int
}

// Synthesizer wraps a process-wide sherpa offline TTS model. Generation is
// serialized; the model is not thread-safe.
type Synthesizer struct {
	mu    sync.Mutex
	tts   *sherpa.OfflineTts
	speed float32
}

// New loads the VITS model. This is the expensive call the job manager
// guards with its single-flight loader.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("sherpa synth: model path is required")
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}

	ttsCfg := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:   cfg.Model,
				Lexicon: cfg.Lexicon,
				Tokens:  cfg.Tokens,
				DictDir: cfg.DictDir,
			},
			NumThreads: cfg.NumThreads,
		},
	}
	t := sherpa.NewOfflineTts(&ttsCfg)
	if t == nil {
		return nil, fmt.Errorf("sherpa synth: failed to load TTS model %s", cfg.Model)
	}
	return &Synthesizer{tts: t, speed: cfg.Speed}, nil
}

// Synthesize generates one segment and returns it as a 16-bit PCM WAV at
// the requested sample rate.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sid := 0
	if req.Voice != "" {
		n, err := strconv.Atoi(req.Voice)
		if err != nil {
			return nil, fmt.Errorf("sherpa synth: voice %q is not a speaker id", req.Voice)
		}
		sid = n
	}

	s.mu.Lock()
	generated := s.tts.Generate(req.Text, sid, s.speed)
	s.mu.Unlock()
	if generated == nil || len(generated.Samples) == 0 {
		return nil, fmt.Errorf("sherpa synth: empty synthesis for %q", req.Text)
	}

	rate := req.SampleRate
	if rate == 0 {
		rate = audio.PipelineRate
	}
	samples := audio.Resample(generated.Samples, generated.SampleRate, rate)
	return audio.EncodeWAV16(samples, rate), nil
}

// Close releases the TTS model.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tts != nil {
		sherpa.DeleteOfflineTts(s.tts)
		s.tts = nil
	}
	return nil
}

var _ synth.Synthesizer = (*Synthesizer)(nil)
