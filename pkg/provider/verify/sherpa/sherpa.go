// Package sherpa implements the verify.Verifier interface using a
// sherpa-onnx speaker embedding extractor and cosine similarity.
package sherpa

import (
	"context"
	"fmt"
	"math"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/triamed/voicefront/pkg/provider/verify"
)

// Config holds the embedding model location and the backend's own verdict
// threshold.
type Config struct {
	// Model is the speaker embedding ONNX model path
	// (e.g. 3dspeaker or wespeaker).
	Model string

	// VerdictThreshold is the cosine similarity above which the backend
	// reports VerdictYes. Default 0.5. The pipeline's gate applies its own
	// threshold on the raw score; this one only feeds the tie-break verdict.
	VerdictThreshold float64

	// NumThreads for the ONNX runtime. Default 1.
	NumThreads int
}

// Verifier computes cosine similarity between speaker embeddings.
type Verifier struct {
	mu        sync.Mutex
	extractor *sherpa.SpeakerEmbeddingExtractor
	threshold float64
}

// New loads the speaker embedding model.
func New(cfg Config) (*Verifier, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("sherpa verify: model path is required")
	}
	if cfg.VerdictThreshold == 0 {
		cfg.VerdictThreshold = 0.5
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}

	ex := sherpa.NewSpeakerEmbeddingExtractor(&sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      cfg.Model,
		NumThreads: cfg.NumThreads,
	})
	if ex == nil {
		return nil, fmt.Errorf("sherpa verify: failed to load embedding model %s", cfg.Model)
	}
	return &Verifier{extractor: ex, threshold: cfg.VerdictThreshold}, nil
}

// Verify embeds both WAVs and reports their cosine similarity as the score.
func (v *Verifier) Verify(ctx context.Context, enrollPath, samplePath string) (verify.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	enroll, err := v.embed(enrollPath)
	if err != nil {
		return verify.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return verify.Result{}, err
	}
	sample, err := v.embed(samplePath)
	if err != nil {
		return verify.Result{}, err
	}

	score, err := cosine(enroll, sample)
	if err != nil {
		return verify.Result{}, err
	}

	verdict := verify.VerdictNo
	if score >= v.threshold {
		verdict = verify.VerdictYes
	}
	return verify.Result{Verdict: verdict, Score: score, HasScore: true}, nil
}

func (v *Verifier) embed(path string) ([]float32, error) {
	wave := sherpa.ReadWave(path)
	if wave == nil {
		return nil, fmt.Errorf("sherpa verify: cannot read %s", path)
	}

	stream := v.extractor.CreateStream()
	if stream == nil {
		return nil, fmt.Errorf("sherpa verify: failed to create stream")
	}
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(wave.SampleRate, wave.Samples)
	stream.InputFinished()
	if !v.extractor.IsReady(stream) {
		return nil, fmt.Errorf("sherpa verify: %s too short for an embedding", path)
	}
	return v.extractor.Compute(stream), nil
}

// Close releases the embedding model.
func (v *Verifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(v.extractor)
		v.extractor = nil
	}
	return nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("sherpa verify: embedding dims %d and %d differ", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("sherpa verify: zero-norm embedding")
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

var _ verify.Verifier = (*Verifier)(nil)
