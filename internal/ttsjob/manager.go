package ttsjob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/triamed/voicefront/internal/observe"
	"github.com/triamed/voicefront/pkg/provider/synth"
)

// Sentinel errors of the job API.
var (
	ErrEmptyText   = errors.New("ttsjob: text must not be empty")
	ErrNotFound    = errors.New("ttsjob: job not found")
	ErrNotTerminal = errors.New("ttsjob: job is not in a terminal state")
)

// Config tunes the manager.
type Config struct {
	// Workers bounds the number of jobs synthesized in parallel.
	// Default 2.
	Workers int

	// Segment and Concat tune splitting and joining.
	Segment SegmentConfig
	Concat  ConcatConfig

	// SampleRate and BeamSize are forwarded to the backend per segment.
	SampleRate int
	BeamSize   int

	// Batching submits up to BatchSize segments per backend call when the
	// backend supports it. Default on with BatchSize 2.
	Batching  bool
	BatchSize int

	// Parallel fans a job's segments out to concurrent backend calls
	// instead of batching. MaxParallel bounds the fan-out. Default off
	// with MaxParallel 4.
	Parallel    bool
	MaxParallel int

	// LoadTimeout bounds how long a job waits for another worker's model
	// load before loading synchronously itself. Default 60s.
	LoadTimeout time.Duration
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.BeamSize <= 0 {
		c.BeamSize = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 2
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 60 * time.Second
	}
	c.Segment.normalize()
	c.Concat.normalize()
}

// Factory builds the synthesis backend. It is called lazily on the first
// job so process startup does not pay the model load.
type Factory func() (synth.Synthesizer, error)

// Manager owns the job table and the synthesis worker pool.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	factory   Factory
	loadGroup singleflight.Group

	mu    sync.Mutex
	jobs  map[string]*Job
	synth synth.Synthesizer

	sem chan struct{}

	// now is injectable for tests.
	now func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithSynthesizer injects an already-loaded backend, bypassing the factory.
func WithSynthesizer(s synth.Synthesizer) ManagerOption {
	return func(m *Manager) { m.synth = s }
}

// NewManager creates a Manager that loads its backend through factory.
func NewManager(cfg Config, factory Factory, opts ...ManagerOption) *Manager {
	cfg.normalize()
	m := &Manager{
		cfg:     cfg,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
		factory: factory,
		jobs:    make(map[string]*Job),
		sem:     make(chan struct{}, cfg.Workers),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start enqueues a synthesis job and returns its id.
func (m *Manager) Start(text, voice string) (string, error) {
	if NormalizeText(text) == "" {
		return "", ErrEmptyText
	}

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Text:      text,
		Voice:     voice,
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.log.Info("tts job queued", "job_id", job.ID, "text_bytes", len(text))
	go m.run(job.ID)
	return job.ID, nil
}

// Cancel flips a job to cancelled. Completed, errored, and already
// cancelled jobs are left alone; the bool reports whether the flip
// happened.
func (m *Manager) Cancel(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = StatusCancelled
	m.log.Info("tts job cancelled", "job_id", id)
	return true, nil
}

// Result returns the job's current state projection.
func (m *Manager) Result(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	snap := Snapshot{JobID: job.ID, Status: job.Status, Error: job.Err}
	if job.Status == StatusCompleted && job.Result != nil {
		snap.AudioBase64 = job.Result.AudioBase64
		snap.AudioSize = job.Result.AudioSize
		timing := job.Timing
		snap.Timing = &timing
	}
	return snap, nil
}

// Cleanup deletes a terminal job's record.
func (m *Manager) Cleanup(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !job.Status.Terminal() {
		return ErrNotTerminal
	}
	delete(m.jobs, id)
	return nil
}

// run executes one job on the worker pool.
func (m *Manager) run(id string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.Status != StatusPending {
		// Cancelled (or cleaned up) while queued.
		m.mu.Unlock()
		return
	}
	job.Status = StatusProcessing
	text, voice, createdAt := job.Text, job.Voice, job.CreatedAt
	m.mu.Unlock()

	started := m.now()
	queueMs := durationMs(createdAt, started)

	timing, result, err := m.synthesize(id, text, voice)
	timing.QueueMs = queueMs
	timing.TotalMs = queueMs + timing.LoadMs + timing.SynthesisMs + timing.ConcatMs

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok = m.jobs[id]
	if !ok {
		return
	}
	job.Timing = timing
	if job.Status == StatusCancelled || errors.Is(err, errCancelled) {
		// Cancelled mid-flight: discard the partial or finished audio.
		m.metrics.RecordTTSJob(context.Background(), "cancelled")
		return
	}
	if err != nil {
		job.Status = StatusError
		job.Err = err.Error()
		m.log.Error("tts job failed", "job_id", id, "error", err)
		m.metrics.RecordTTSJob(context.Background(), "error")
		return
	}
	job.Status = StatusCompleted
	job.Result = result
	m.log.Info("tts job completed", "job_id", id,
		"audio_bytes", result.AudioSize, "total_ms", timing.TotalMs)
	m.observeTiming(timing)
}

// observeTiming feeds the completed job's timing into the instruments.
func (m *Manager) observeTiming(timing Timing) {
	ctx := context.Background()
	m.metrics.RecordTTSJob(ctx, "completed")
	m.metrics.SynthesisDuration.Record(ctx, timing.SynthesisMs/1000)
	for _, seg := range timing.Segments {
		if seg.RTF > 0 {
			m.metrics.SynthesisRTF.Record(ctx, seg.RTF)
		}
	}
}

// cancelled reports whether the job was cancelled. Polled between
// segments.
func (m *Manager) cancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return !ok || job.Status == StatusCancelled
}

var errCancelled = errors.New("ttsjob: cancelled")

// synthesize runs segmentation, per-segment inference, and concatenation.
func (m *Manager) synthesize(id, text, voice string) (Timing, *Result, error) {
	var timing Timing

	loadStart := m.now()
	backend, err := m.backend()
	timing.LoadMs = durationMs(loadStart, m.now())
	if err != nil {
		return timing, nil, fmt.Errorf("load synthesis backend: %w", err)
	}

	segments := SplitText(text, m.cfg.Segment)
	if len(segments) == 0 {
		return timing, nil, ErrEmptyText
	}

	req := synth.Request{Voice: voice, SampleRate: m.cfg.SampleRate, BeamSize: m.cfg.BeamSize}

	synthStart := m.now()
	wavs, segTimings, err := m.synthesizeSegments(id, backend, segments, req)
	timing.SynthesisMs = durationMs(synthStart, m.now())
	timing.Segments = segTimings
	if err != nil {
		return timing, nil, err
	}

	pauses := make([]int, 0, len(segments)-1)
	for i := 0; i < len(segments)-1; i++ {
		pauses = append(pauses, PauseAfterMs(segments[i], m.cfg.Concat.PauseHardMs, m.cfg.Concat.PauseSoftMs))
	}

	concatStart := m.now()
	wav, err := ConcatWAVs(wavs, pauses, m.cfg.Concat.CrossfadeMs)
	timing.ConcatMs = durationMs(concatStart, m.now())
	if err != nil {
		return timing, nil, err
	}

	return timing, &Result{
		WAV:         wav,
		AudioBase64: base64.StdEncoding.EncodeToString(wav),
		AudioSize:   len(wav),
	}, nil
}

// synthesizeSegments runs the per-segment loop, batching when the backend
// supports it.
func (m *Manager) synthesizeSegments(id string, backend synth.Synthesizer, segments []string, req synth.Request) ([][]byte, []SegmentTiming, error) {
	ctx := context.Background()
	if m.cfg.Parallel && len(segments) > 1 {
		return m.synthesizeParallel(ctx, id, backend, segments, req)
	}

	wavs := make([][]byte, len(segments))
	timings := make([]SegmentTiming, 0, len(segments))

	batcher, canBatch := backend.(synth.BatchSynthesizer)
	useBatch := m.cfg.Batching && canBatch && len(segments) > 1

	for start := 0; start < len(segments); {
		if m.cancelled(id) {
			return nil, timings, errCancelled
		}
		end := start + 1
		if useBatch {
			end = start + m.cfg.BatchSize
			if end > len(segments) {
				end = len(segments)
			}
		}
		batch := segments[start:end]

		batchStart := m.now()
		var out [][]byte
		var err error
		if useBatch && len(batch) > 1 {
			out, err = batcher.SynthesizeBatch(ctx, batch, req)
			if err != nil || len(out) != len(batch) {
				// Backend declined the batch; per-segment fallback.
				out, err = m.segmentFallback(ctx, backend, batch, req)
			}
		} else {
			out, err = m.segmentFallback(ctx, backend, batch, req)
		}
		if err != nil {
			return nil, timings, err
		}
		wallMs := durationMs(batchStart, m.now())

		perSegMs := wallMs / float64(len(batch))
		for i, wav := range out {
			idx := start + i
			wavs[idx] = wav
			dur, derr := WAVDurationSeconds(wav)
			if derr != nil {
				return nil, timings, fmt.Errorf("segment %d produced invalid wav: %w", idx, derr)
			}
			t := SegmentTiming{Index: idx, Text: segments[idx], WallMs: perSegMs, DurationSeconds: dur}
			if dur > 0 {
				t.RTF = perSegMs / 1000 / dur
			}
			timings = append(timings, t)
		}
		start = end
	}
	return wavs, timings, nil
}

// synthesizeParallel fans the segments out to concurrent backend calls.
// Segment order is preserved by index; cancellation is checked before each
// call rather than between batches.
func (m *Manager) synthesizeParallel(ctx context.Context, id string, backend synth.Synthesizer, segments []string, req synth.Request) ([][]byte, []SegmentTiming, error) {
	wavs := make([][]byte, len(segments))
	timings := make([]SegmentTiming, len(segments))

	var g errgroup.Group
	g.SetLimit(m.cfg.MaxParallel)
	for idx, seg := range segments {
		g.Go(func() error {
			if m.cancelled(id) {
				return errCancelled
			}
			r := req
			r.Text = seg
			start := m.now()
			wav, err := backend.Synthesize(ctx, r)
			if err != nil {
				return fmt.Errorf("synthesize %q: %w", seg, err)
			}
			wallMs := durationMs(start, m.now())
			dur, err := WAVDurationSeconds(wav)
			if err != nil {
				return fmt.Errorf("segment %d produced invalid wav: %w", idx, err)
			}
			wavs[idx] = wav
			t := SegmentTiming{Index: idx, Text: seg, WallMs: wallMs, DurationSeconds: dur}
			if dur > 0 {
				t.RTF = wallMs / 1000 / dur
			}
			timings[idx] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return wavs, timings, nil
}

func (m *Manager) segmentFallback(ctx context.Context, backend synth.Synthesizer, batch []string, req synth.Request) ([][]byte, error) {
	out := make([][]byte, len(batch))
	for i, seg := range batch {
		r := req
		r.Text = seg
		wav, err := backend.Synthesize(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("synthesize %q: %w", seg, err)
		}
		out[i] = wav
	}
	return out, nil
}

// backend returns the loaded synthesizer, loading it single-flight on first
// use. A worker that waits out LoadTimeout gives up on the shared load and
// loads synchronously itself.
func (m *Manager) backend() (synth.Synthesizer, error) {
	m.mu.Lock()
	if m.synth != nil {
		s := m.synth
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	ch := m.loadGroup.DoChan("load", func() (any, error) {
		s, err := m.factory()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.synth = s
		m.mu.Unlock()
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(synth.Synthesizer), nil
	case <-time.After(m.cfg.LoadTimeout):
		m.log.Warn("shared model load timed out, loading synchronously")
		s, err := m.factory()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.synth == nil {
			m.synth = s
		}
		m.mu.Unlock()
		return s, nil
	}
}

func durationMs(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
