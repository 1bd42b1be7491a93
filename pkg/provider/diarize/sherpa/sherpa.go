// Package sherpa implements the diarize.Transcriber interface by combining
// sherpa-onnx offline speaker diarization with an offline recognizer: the
// diarization pass yields per-speaker time spans, and each span is then
// decoded to text.
package sherpa

import (
	"context"
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/triamed/voicefront/pkg/provider/diarize"
)

// Config holds the model locations for the diarizing transcriber.
type Config struct {
	// SegmentationModel is the speaker segmentation ONNX model
	// (e.g. pyannote segmentation).
	SegmentationModel string

	// EmbeddingModel is the speaker embedding extractor ONNX model.
	EmbeddingModel string

	// RecognizerModel is the offline recognizer ONNX model
	// (e.g. SenseVoice).
	RecognizerModel string

	// Tokens is the recognizer's tokens.txt path.
	Tokens string

	// NumSpeakers pins the clustering speaker count; 0 lets the clusterer
	// estimate it from the threshold.
	NumSpeakers int

	// ClusterThreshold is the agglomerative clustering distance threshold
	// used when NumSpeakers is 0. Default 0.5.
	ClusterThreshold float32

	// NumThreads for the ONNX runtime. Default 1.
	NumThreads int
}

// Transcriber is a process-wide diarizing recognizer. The underlying
// decoders are serialized with a mutex; concurrency across sessions comes
// from the caller's worker pool.
type Transcriber struct {
	mu         sync.Mutex
	diar       *sherpa.OfflineSpeakerDiarization
	recognizer *sherpa.OfflineRecognizer
}

// New loads the diarization and recognition models.
func New(cfg Config) (*Transcriber, error) {
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}
	if cfg.ClusterThreshold == 0 {
		cfg.ClusterThreshold = 0.5
	}

	diarCfg := sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: cfg.SegmentationModel,
			},
			NumThreads: cfg.NumThreads,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      cfg.EmbeddingModel,
			NumThreads: cfg.NumThreads,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: cfg.NumSpeakers,
			Threshold:   cfg.ClusterThreshold,
		},
	}
	diar := sherpa.NewOfflineSpeakerDiarization(&diarCfg)
	if diar == nil {
		return nil, fmt.Errorf("sherpa diarize: failed to load diarization models")
	}

	recCfg := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: 16000, FeatureDim: 80},
		ModelConfig: sherpa.OfflineModelConfig{
			SenseVoice: sherpa.OfflineSenseVoiceModelConfig{
				Model:                       cfg.RecognizerModel,
				UseInverseTextNormalization: 1,
			},
			Tokens:     cfg.Tokens,
			NumThreads: cfg.NumThreads,
		},
	}
	rec := sherpa.NewOfflineRecognizer(&recCfg)
	if rec == nil {
		sherpa.DeleteOfflineSpeakerDiarization(diar)
		return nil, fmt.Errorf("sherpa diarize: failed to load recognizer")
	}

	return &Transcriber{diar: diar, recognizer: rec}, nil
}

// Transcribe diarizes the WAV at path and decodes each speaker span.
// batchSize is accepted for interface compatibility; the local models do
// not need it.
func (t *Transcriber) Transcribe(ctx context.Context, path string, batchSize int) ([]diarize.Sentence, error) {
	_ = batchSize

	wave := sherpa.ReadWave(path)
	if wave == nil {
		return nil, fmt.Errorf("sherpa diarize: cannot read %s", path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	segments := t.diar.Process(wave.Samples)
	sentences := make([]diarize.Sentence, 0, len(segments))
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		startIdx := int(seg.Start * float32(wave.SampleRate))
		endIdx := int(seg.End * float32(wave.SampleRate))
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > len(wave.Samples) {
			endIdx = len(wave.Samples)
		}
		if endIdx <= startIdx {
			continue
		}

		stream := sherpa.NewOfflineStream(t.recognizer)
		stream.AcceptWaveform(wave.SampleRate, wave.Samples[startIdx:endIdx])
		t.recognizer.Decode(stream)
		text := stream.GetResult().Text
		sherpa.DeleteOfflineStream(stream)

		if text == "" {
			continue
		}
		sentences = append(sentences, diarize.Sentence{
			Text:       text,
			StartMs:    int(seg.Start * 1000),
			EndMs:      int(seg.End * 1000),
			Speaker:    seg.Speaker,
			HasSpeaker: true,
		})
	}
	return sentences, nil
}

// Close releases the diarization and recognition models.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.diar != nil {
		sherpa.DeleteOfflineSpeakerDiarization(t.diar)
		t.diar = nil
	}
	if t.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(t.recognizer)
		t.recognizer = nil
	}
	return nil
}

var _ diarize.Transcriber = (*Transcriber)(nil)
