// Package config provides the configuration schema and loader for the
// voicefront server. Values come from a YAML file with environment
// variable overrides layered on top.
package config

// LogLevel controls log verbosity for the voicefront server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VADPolicy selects how the energy and peak thresholds combine.
type VADPolicy string

const (
	// VADPolicyAnd requires both thresholds to be exceeded.
	VADPolicyAnd VADPolicy = "and"

	// VADPolicyOr accepts either threshold.
	VADPolicyOr VADPolicy = "or"
)

// IsValid reports whether p is a recognised policy.
func (p VADPolicy) IsValid() bool {
	return p == VADPolicyAnd || p == VADPolicyOr
}

// Config is the root configuration structure for voicefront.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Models   ModelsConfig   `yaml:"models"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8001").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// PipelineConfig tunes the per-session voice pipeline.
type PipelineConfig struct {
	// VADEnergyThreshold is the mean absolute amplitude above which a
	// chunk counts as energetic. Default 0.03.
	VADEnergyThreshold float64 `yaml:"vad_energy_threshold"`

	// VADPeakThreshold is the peak absolute amplitude above which a chunk
	// counts as energetic. Default 0.17.
	VADPeakThreshold float64 `yaml:"vad_peak_threshold"`

	// VADPolicy combines the two thresholds: "and" (default) or "or".
	VADPolicy VADPolicy `yaml:"vad_policy"`

	// SilenceSeconds of continuous silence end an utterance. Default 2.0.
	SilenceSeconds float64 `yaml:"silence_seconds"`

	// KWSWindowSeconds is the sliding window fed to the keyword spotter.
	// Default 1.6.
	KWSWindowSeconds float64 `yaml:"kws_window_seconds"`

	// PreSpeechSeconds of audio preceding speech onset are prepended to
	// the utterance. Default 0.4.
	PreSpeechSeconds float64 `yaml:"pre_speech_seconds"`

	// MinEnrollSeconds is the minimum spoken span accepted as a voiceprint
	// enrollment. Default 5.0.
	MinEnrollSeconds float64 `yaml:"min_enroll_seconds"`

	// SVThreshold is the speaker verification score gate. Default 0.40.
	SVThreshold float64 `yaml:"sv_threshold"`

	// RequireWake forces the wake-word gate on for every session,
	// overriding the per-connection flag.
	RequireWake bool `yaml:"require_wake"`

	// DisableLLM disables LLM text correction globally, overriding the
	// per-connection flag.
	DisableLLM bool `yaml:"disable_llm"`

	// AlwaysSaveSamples persists every model-ingest WAV (wake windows,
	// finalized utterances) for offline inspection.
	AlwaysSaveSamples bool `yaml:"always_save_samples"`

	// WorkDir holds enrollment samples and transient model-ingest WAVs.
	// Default ".".
	WorkDir string `yaml:"work_dir"`

	// DumpDir receives debug WAVs when AlwaysSaveSamples is on. Defaults
	// to WorkDir.
	DumpDir string `yaml:"dump_dir"`
}

// ModelsConfig holds the ONNX model locations for the inference backends.
// A stage with empty paths is left unconfigured and the server degrades
// accordingly (e.g. no speaker verification gate).
type ModelsConfig struct {
	// NumThreads for the ONNX runtime, shared by all backends. Default 1.
	NumThreads int `yaml:"num_threads"`

	// VADModel is the Silero VAD ONNX model path.
	VADModel string `yaml:"vad_model"`

	// SpeakerModel is the speaker embedding ONNX model used for
	// verification.
	SpeakerModel string `yaml:"speaker_model"`

	KWS     KWSModelConfig     `yaml:"kws"`
	Diarize DiarizeModelConfig `yaml:"diarize"`
}

// KWSModelConfig locates the transducer keyword spotting model.
type KWSModelConfig struct {
	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`
	Joiner  string `yaml:"joiner"`
	Tokens  string `yaml:"tokens"`

	// KeywordsFile lists the wake phrases, one per line.
	KeywordsFile string `yaml:"keywords_file"`
}

// DiarizeModelConfig locates the diarizing recognizer models.
type DiarizeModelConfig struct {
	// SegmentationModel is the speaker segmentation ONNX model.
	SegmentationModel string `yaml:"segmentation_model"`

	// EmbeddingModel is the speaker embedding extractor ONNX model.
	EmbeddingModel string `yaml:"embedding_model"`

	// RecognizerModel and Tokens locate the offline recognizer.
	RecognizerModel string `yaml:"recognizer_model"`
	Tokens          string `yaml:"tokens"`

	// NumSpeakers pins the clustering speaker count; 0 lets the clusterer
	// estimate it.
	NumSpeakers int `yaml:"num_speakers"`

	// ClusterThreshold is the agglomerative clustering distance threshold
	// used when NumSpeakers is 0.
	ClusterThreshold float32 `yaml:"cluster_threshold"`

	// DisableLM turns off external language model rescoring on recognizers
	// that support one. The bundled recognizer carries no external LM, so
	// this is accepted and ignored.
	DisableLM bool `yaml:"disable_lm"`
}

// LLMConfig points text correction at a chat completion endpoint.
// An empty APIKey leaves correction disabled.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// HotwordsFile lists domain terms fed to the correction prompt, one
	// per line. A built-in medical list is used when empty or unreadable.
	HotwordsFile string `yaml:"hotwords_file"`
}

// TTSConfig holds the synthesis model location and the job service tuning.
type TTSConfig struct {
	// Model, Lexicon, Tokens, DictDir locate the VITS model.
	Model   string `yaml:"model"`
	Lexicon string `yaml:"lexicon"`
	Tokens  string `yaml:"tokens"`
	DictDir string `yaml:"dict_dir"`

	// Speed is the synthesis length scale reciprocal. Default 1.0.
	Speed float32 `yaml:"speed"`

	// Workers bounds concurrently synthesized jobs. Default 2.
	Workers int `yaml:"workers"`

	// SegTarget, SegFirst, SegHardMax are segment length budgets in bytes.
	// Defaults 18, 14, 22.
	SegTarget  int `yaml:"seg_target"`
	SegFirst   int `yaml:"seg_first"`
	SegHardMax int `yaml:"seg_hard_max"`

	// PauseSoftMs and PauseHardMs are the inter-segment pauses after weak
	// and strong punctuation. Defaults 120 and 200.
	PauseSoftMs int `yaml:"pause_soft_ms"`
	PauseHardMs int `yaml:"pause_hard_ms"`

	// CrossfadeMs is the boundary crossfade length. Default 60.
	CrossfadeMs int `yaml:"crossfade_ms"`

	// SampleRate and BeamSize are forwarded to the backend. Defaults
	// 16000 and 1.
	SampleRate int `yaml:"sample_rate"`
	BeamSize   int `yaml:"beam_size"`

	// Batching submits segment pairs to batch-capable backends.
	// Default on with BatchSize 2.
	Batching  bool `yaml:"batching"`
	BatchSize int  `yaml:"batch_size"`

	// Parallel synthesizes a job's segments concurrently instead of
	// batching. Off by default; MaxParallel bounds the fan-out (default 4).
	Parallel    bool `yaml:"parallel"`
	MaxParallel int  `yaml:"max_parallel"`

	// LoadTimeoutSeconds bounds how long a job waits on another worker's
	// model load before loading synchronously itself. Default 60.
	LoadTimeoutSeconds int `yaml:"load_timeout_seconds"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8001",
			LogLevel:   LogInfo,
		},
		Pipeline: PipelineConfig{
			VADEnergyThreshold: 0.03,
			VADPeakThreshold:   0.17,
			VADPolicy:          VADPolicyAnd,
			SilenceSeconds:     2.0,
			KWSWindowSeconds:   1.6,
			PreSpeechSeconds:   0.4,
			MinEnrollSeconds:   5.0,
			SVThreshold:        0.40,
			WorkDir:            ".",
		},
		Models: ModelsConfig{
			NumThreads: 1,
		},
		TTS: TTSConfig{
			Speed:              1.0,
			Workers:            2,
			SegTarget:          18,
			SegFirst:           14,
			SegHardMax:         22,
			PauseSoftMs:        120,
			PauseHardMs:        200,
			CrossfadeMs:        60,
			SampleRate:         16000,
			BeamSize:           1,
			Batching:           true,
			BatchSize:          2,
			MaxParallel:        4,
			LoadTimeoutSeconds: 60,
		},
	}
}
