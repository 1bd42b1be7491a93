// Command voicefront is the real-time voice front-end server: the session
// websocket channel plus the TTS job API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/triamed/voicefront/internal/config"
	"github.com/triamed/voicefront/internal/health"
	"github.com/triamed/voicefront/internal/observe"
	"github.com/triamed/voicefront/internal/server"
	"github.com/triamed/voicefront/internal/session"
	"github.com/triamed/voicefront/internal/textproc"
	"github.com/triamed/voicefront/internal/ttsjob"
	"github.com/triamed/voicefront/pkg/audio"
	diarizesherpa "github.com/triamed/voicefront/pkg/provider/diarize/sherpa"
	kwssherpa "github.com/triamed/voicefront/pkg/provider/kws/sherpa"
	"github.com/triamed/voicefront/pkg/provider/synth"
	synthsherpa "github.com/triamed/voicefront/pkg/provider/synth/sherpa"
	vadsherpa "github.com/triamed/voicefront/pkg/provider/vad/sherpa"
	verifysherpa "github.com/triamed/voicefront/pkg/provider/verify/sherpa"
)

// version is stamped by the build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; env vars apply either way)")
	flag.Parse()

	// A .env next to the binary seeds the environment overrides.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicefront: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicefront starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Inference providers ───────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── TTS job manager ───────────────────────────────────────────────────────
	jobs := ttsjob.NewManager(jobConfig(cfg), func() (synth.Synthesizer, error) {
		return synthsherpa.New(synthsherpa.Config{
			Model:      cfg.TTS.Model,
			Lexicon:    cfg.TTS.Lexicon,
			Tokens:     cfg.TTS.Tokens,
			DictDir:    cfg.TTS.DictDir,
			Speed:      cfg.TTS.Speed,
			NumThreads: cfg.Models.NumThreads,
		})
	})

	// ── Server ────────────────────────────────────────────────────────────────
	dumpDir := cfg.Pipeline.DumpDir
	if dumpDir == "" {
		dumpDir = cfg.Pipeline.WorkDir
	}

	srv := server.New(cfg, server.Deps{
		Providers: providers,
		Jobs:      jobs,
		Dumper:    audio.NewDumper(dumpDir, cfg.Pipeline.AlwaysSaveSamples),
		Checkers: []health.Checker{
			{Name: "work_dir", Check: func(context.Context) error {
				return os.MkdirAll(cfg.Pipeline.WorkDir, 0o755)
			}},
		},
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders constructs the sherpa inference backends from the model
// paths. VAD, KWS, and the diarizing recognizer are required; speaker
// verification and LLM correction degrade gracefully when unconfigured.
func buildProviders(cfg *config.Config) (session.Providers, error) {
	var p session.Providers

	if cfg.Models.VADModel == "" {
		return p, fmt.Errorf("models.vad_model is required")
	}
	vadDet, err := vadsherpa.New(cfg.Models.VADModel,
		vadsherpa.WithNumThreads(cfg.Models.NumThreads))
	if err != nil {
		return p, fmt.Errorf("vad: %w", err)
	}
	p.VAD = vadDet

	spotter, err := kwssherpa.New(kwssherpa.Config{
		Encoder:      cfg.Models.KWS.Encoder,
		Decoder:      cfg.Models.KWS.Decoder,
		Joiner:       cfg.Models.KWS.Joiner,
		Tokens:       cfg.Models.KWS.Tokens,
		KeywordsFile: cfg.Models.KWS.KeywordsFile,
		SampleRate:   audio.PipelineRate,
		NumThreads:   cfg.Models.NumThreads,
	})
	if err != nil {
		return p, fmt.Errorf("kws: %w", err)
	}
	p.KWS = spotter

	diarizer, err := diarizesherpa.New(diarizesherpa.Config{
		SegmentationModel: cfg.Models.Diarize.SegmentationModel,
		EmbeddingModel:    cfg.Models.Diarize.EmbeddingModel,
		RecognizerModel:   cfg.Models.Diarize.RecognizerModel,
		Tokens:            cfg.Models.Diarize.Tokens,
		NumSpeakers:       cfg.Models.Diarize.NumSpeakers,
		ClusterThreshold:  cfg.Models.Diarize.ClusterThreshold,
		NumThreads:        cfg.Models.NumThreads,
	})
	if err != nil {
		return p, fmt.Errorf("diarize: %w", err)
	}
	p.Diarizer = diarizer

	if cfg.Models.SpeakerModel != "" {
		verifier, err := verifysherpa.New(verifysherpa.Config{
			Model:      cfg.Models.SpeakerModel,
			NumThreads: cfg.Models.NumThreads,
		})
		if err != nil {
			return p, fmt.Errorf("verify: %w", err)
		}
		p.Verifier = verifier
	} else {
		slog.Warn("speaker verification model not configured; SV gate rejects all utterances")
	}

	if cfg.LLM.APIKey != "" {
		var opts []textproc.ChatOption
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, textproc.WithBaseURL(cfg.LLM.BaseURL))
		}
		llm, err := textproc.NewChatCorrector(cfg.LLM.APIKey, cfg.LLM.Model, opts...)
		if err != nil {
			return p, fmt.Errorf("llm corrector: %w", err)
		}
		p.Corrector = textproc.New(llm, textproc.LoadHotwords(cfg.LLM.HotwordsFile))
	} else {
		slog.Warn("llm api key not configured; text correction disabled")
	}

	return p, nil
}

// jobConfig maps the TTS config section onto the job manager tunables.
func jobConfig(cfg *config.Config) ttsjob.Config {
	return ttsjob.Config{
		Workers: cfg.TTS.Workers,
		Segment: ttsjob.SegmentConfig{
			Target:      cfg.TTS.SegTarget,
			FirstTarget: cfg.TTS.SegFirst,
			HardMax:     cfg.TTS.SegHardMax,
		},
		Concat: ttsjob.ConcatConfig{
			PauseHardMs: cfg.TTS.PauseHardMs,
			PauseSoftMs: cfg.TTS.PauseSoftMs,
			CrossfadeMs: cfg.TTS.CrossfadeMs,
		},
		SampleRate:  cfg.TTS.SampleRate,
		BeamSize:    cfg.TTS.BeamSize,
		Batching:    cfg.TTS.Batching,
		BatchSize:   cfg.TTS.BatchSize,
		Parallel:    cfg.TTS.Parallel,
		MaxParallel: cfg.TTS.MaxParallel,
		LoadTimeout: time.Duration(cfg.TTS.LoadTimeoutSeconds) * time.Second,
	}
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
