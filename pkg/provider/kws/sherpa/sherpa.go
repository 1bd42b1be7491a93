// Package sherpa implements the kws.Spotter interface using the sherpa-onnx
// keyword spotter (transducer models with a keywords file).
package sherpa

import (
	"fmt"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/triamed/voicefront/pkg/provider/kws"
)

// Config holds the model file locations for the keyword spotter.
type Config struct {
	// Encoder, Decoder, Joiner are the transducer ONNX model paths.
	Encoder string
	Decoder string
	Joiner  string

	// Tokens is the tokens.txt path for the model.
	Tokens string

	// KeywordsFile lists the wake phrases, one per line in sherpa's
	// keywords format.
	KeywordsFile string

	// SampleRate of the audio windows. The pipeline always feeds 16000.
	SampleRate int

	// NumThreads for the ONNX runtime. Default 1.
	NumThreads int
}

// Spotter wraps a process-wide sherpa keyword spotter. The underlying
// decoder is not safe for concurrent streams, so Detect serializes on a
// mutex; windows are short (1.6 s) and detection is fast enough that this
// does not back up the session workers.
type Spotter struct {
	mu      sync.Mutex
	spotter *sherpa.KeywordSpotter
	rate    int
}

// New loads the keyword spotter models.
func New(cfg Config) (*Spotter, error) {
	if cfg.KeywordsFile == "" {
		return nil, fmt.Errorf("sherpa kws: keywords file is required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}

	spotterCfg := sherpa.KeywordSpotterConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: cfg.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OnlineModelConfig{
			Transducer: sherpa.OnlineTransducerModelConfig{
				Encoder: cfg.Encoder,
				Decoder: cfg.Decoder,
				Joiner:  cfg.Joiner,
			},
			Tokens:     cfg.Tokens,
			NumThreads: cfg.NumThreads,
		},
		KeywordsFile: cfg.KeywordsFile,
	}

	sp := sherpa.NewKeywordSpotter(&spotterCfg)
	if sp == nil {
		return nil, fmt.Errorf("sherpa kws: failed to load keyword spotter")
	}
	return &Spotter{spotter: sp, rate: cfg.SampleRate}, nil
}

// Detect runs the spotter over the window with a fresh stream, so no model
// state survives between attempts.
func (s *Spotter) Detect(window []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := sherpa.NewKeywordStream(s.spotter)
	if stream == nil {
		return "", fmt.Errorf("sherpa kws: failed to create stream")
	}
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(s.rate, window)
	stream.InputFinished()

	var keywords []string
	for s.spotter.IsReady(stream) {
		s.spotter.Decode(stream)
		r := s.spotter.GetResult(stream)
		if r != nil && r.Keyword != "" {
			keywords = append(keywords, r.Keyword)
		}
	}
	return strings.Join(keywords, ""), nil
}

// Close releases the spotter models.
func (s *Spotter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spotter != nil {
		sherpa.DeleteKeywordSpotter(s.spotter)
		s.spotter = nil
	}
	return nil
}

var _ kws.Spotter = (*Spotter)(nil)
