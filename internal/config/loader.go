package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. An empty path skips the
// file and builds the config from defaults and environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults,
// applies environment overrides, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variable overrides onto cfg. Unset and
// unparsable values leave the config untouched.
func (c *Config) applyEnv() {
	envFloat("VOICE_VAD_ENERGY_THRESHOLD", &c.Pipeline.VADEnergyThreshold)
	envFloat("VOICE_VAD_PEAK_THRESHOLD", &c.Pipeline.VADPeakThreshold)
	if v, ok := os.LookupEnv("VOICE_VAD_POLICY"); ok {
		c.Pipeline.VADPolicy = VADPolicy(strings.ToLower(strings.TrimSpace(v)))
	}
	envFloat("VOICE_SILENCE_THRESHOLD", &c.Pipeline.SilenceSeconds)
	envFloat("VOICE_KWS_WINDOW", &c.Pipeline.KWSWindowSeconds)
	envFloat("VOICE_MIN_ENROLL_SECONDS", &c.Pipeline.MinEnrollSeconds)
	envFloat("VOICE_SV_THRESHOLD", &c.Pipeline.SVThreshold)
	envBool("VOICE_REQUIRE_WAKE", &c.Pipeline.RequireWake)
	envBool("VOICE_DISABLE_LLM", &c.Pipeline.DisableLLM)
	envBool("VOICE_ALWAYS_SAVE_SAMPLE", &c.Pipeline.AlwaysSaveSamples)
	envBool("FUNASR_DISABLE_LM", &c.Models.Diarize.DisableLM)

	envString("AI_MODEL_API_KEY", &c.LLM.APIKey)
	envString("AI_MODEL_BASE_URL", &c.LLM.BaseURL)
	envString("AI_MODEL_MODEL_NAME", &c.LLM.Model)

	envInt("TTS_SEG_TARGET", &c.TTS.SegTarget)
	envInt("TTS_SEG_FIRST", &c.TTS.SegFirst)
	envInt("TTS_SEG_HARD_MAX", &c.TTS.SegHardMax)
	envInt("TTS_PAUSE_SOFT_MS", &c.TTS.PauseSoftMs)
	envInt("TTS_PAUSE_HARD_MS", &c.TTS.PauseHardMs)
	envInt("TTS_CROSSFADE_MS", &c.TTS.CrossfadeMs)
	envInt("TTS_SAMPLING_RATE", &c.TTS.SampleRate)
	envInt("TTS_BEAM_SIZE", &c.TTS.BeamSize)
	envBool("TTS_USE_BATCH", &c.TTS.Batching)
	envInt("TTS_BATCH_SIZE", &c.TTS.BatchSize)
	envBool("TTS_PARALLEL_SEGMENTS", &c.TTS.Parallel)
	envInt("TTS_MAX_PARALLEL_SEGMENTS", &c.TTS.MaxParallel)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("ignoring unparsable env override", "key", key, "value", v)
		return
	}
	*dst = f
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("ignoring unparsable env override", "key", key, "value", v)
		return
	}
	*dst = n
}

// envBool accepts 1/true/yes/on (case-insensitive) as true; anything else
// set is false.
func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	default:
		*dst = false
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	p := &cfg.Pipeline
	if p.VADPolicy != "" && !p.VADPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.vad_policy %q is invalid; valid values: and, or", p.VADPolicy))
	}
	if p.VADEnergyThreshold <= 0 || p.VADEnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.vad_energy_threshold %v is out of range (0, 1]", p.VADEnergyThreshold))
	}
	if p.VADPeakThreshold <= 0 || p.VADPeakThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.vad_peak_threshold %v is out of range (0, 1]", p.VADPeakThreshold))
	}
	if p.SilenceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_seconds %v must be positive", p.SilenceSeconds))
	}
	if p.KWSWindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.kws_window_seconds %v must be positive", p.KWSWindowSeconds))
	}
	if p.MinEnrollSeconds <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_enroll_seconds %v must be positive", p.MinEnrollSeconds))
	}
	if p.SVThreshold < 0 || p.SVThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.sv_threshold %v is out of range [0, 1]", p.SVThreshold))
	}

	t := &cfg.TTS
	if t.Workers < 1 {
		errs = append(errs, fmt.Errorf("tts.workers %d must be at least 1", t.Workers))
	}
	if t.SegTarget < 1 || t.SegFirst < 1 || t.SegHardMax < 1 {
		errs = append(errs, errors.New("tts segment budgets must be positive"))
	} else if t.SegHardMax < t.SegTarget {
		slog.Warn("tts.seg_hard_max is below tts.seg_target; every segment will be force-split",
			"seg_target", t.SegTarget, "seg_hard_max", t.SegHardMax)
	}
	if t.PauseSoftMs < 0 || t.PauseHardMs < 0 || t.CrossfadeMs < 0 {
		errs = append(errs, errors.New("tts pause and crossfade durations must not be negative"))
	}
	if t.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("tts.sample_rate %d is below 8000", t.SampleRate))
	}
	if t.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("tts.batch_size %d must be at least 1", t.BatchSize))
	}
	if t.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("tts.max_parallel %d must be at least 1", t.MaxParallel))
	}

	if cfg.Models.VADModel == "" {
		slog.Warn("models.vad_model is empty; sessions fall back to threshold-only voice detection")
	}
	if cfg.Models.KWS.Encoder == "" {
		slog.Warn("models.kws is not configured; wake-word detection is unavailable")
	}
	if cfg.Models.SpeakerModel == "" {
		slog.Warn("models.speaker_model is empty; speaker verification rejects all utterances")
	}
	if cfg.LLM.APIKey == "" {
		slog.Warn("llm.api_key is empty; text correction is disabled")
	}

	return errors.Join(errs...)
}
