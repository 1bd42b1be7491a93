package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/triamed/voicefront/internal/observe"
	"github.com/triamed/voicefront/internal/textproc"
	"github.com/triamed/voicefront/pkg/audio"
	"github.com/triamed/voicefront/pkg/provider/diarize"
	"github.com/triamed/voicefront/pkg/provider/kws"
	"github.com/triamed/voicefront/pkg/provider/vad"
	"github.com/triamed/voicefront/pkg/provider/verify"
)

// VADPolicy selects how the energy and peak thresholds combine before the
// result is OR'd with the model VAD.
type VADPolicy string

const (
	// VADPolicyAnd requires both thresholds to trip.
	VADPolicyAnd VADPolicy = "and"
	// VADPolicyOr accepts either threshold.
	VADPolicyOr VADPolicy = "or"
)

// IsValid reports whether p is a recognised policy.
func (p VADPolicy) IsValid() bool {
	return p == VADPolicyAnd || p == VADPolicyOr
}

// Config carries the tunables of one pipeline session. The zero value is
// not usable; fill it from the application config and let Normalize apply
// the defaults.
type Config struct {
	// SilenceSeconds is the trailing-silence span that ends an utterance
	// and an enrollment sample.
	SilenceSeconds float64

	// KWSWindowSeconds is the sliding window handed to the keyword
	// spotter.
	KWSWindowSeconds float64

	// PreSpeechSeconds is the ring of audio prepended when speech onset
	// is detected in ASR mode.
	PreSpeechSeconds float64

	// MinEnrollSeconds is the minimum span from first speech before an
	// enrollment sample can be accepted.
	MinEnrollSeconds float64

	// VADEnergyThreshold and VADPeakThreshold gate the signal-level
	// speech decision; VADPolicy combines them.
	VADEnergyThreshold float64
	VADPeakThreshold   float64
	VADPolicy          VADPolicy

	// SVThreshold is the cosine-score cutoff for the verification gate.
	SVThreshold float64

	// WorkDir holds transient utterance and speaker WAV files.
	WorkDir string

	// UseWake starts the session behind the wake gate. Clients may turn
	// the gate off per message unless RequireWake is set.
	UseWake bool

	// RequireWake pins the wake gate on: the session starts gated and
	// client requests to disable it are ignored.
	RequireWake bool

	// UseSV enables the speaker-verification gate by default.
	UseSV bool

	// DisableLLM turns the correction model off regardless of per-message
	// flags.
	DisableLLM bool
}

// Normalize fills unset fields with the pipeline defaults.
func (c *Config) Normalize() {
	if c.SilenceSeconds <= 0 {
		c.SilenceSeconds = 2.0
	}
	if c.KWSWindowSeconds <= 0 {
		c.KWSWindowSeconds = 1.6
	}
	if c.PreSpeechSeconds <= 0 {
		c.PreSpeechSeconds = 0.4
	}
	if c.MinEnrollSeconds <= 0 {
		c.MinEnrollSeconds = 5.0
	}
	if c.VADEnergyThreshold <= 0 {
		c.VADEnergyThreshold = 0.03
	}
	if c.VADPeakThreshold <= 0 {
		c.VADPeakThreshold = 0.17
	}
	if !c.VADPolicy.IsValid() {
		c.VADPolicy = VADPolicyAnd
	}
	if c.SVThreshold <= 0 {
		c.SVThreshold = 0.40
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
}

// Providers bundles the inference backends a session depends on.
type Providers struct {
	VAD       vad.Detector
	KWS       kws.Spotter
	Diarizer  diarize.Transcriber
	Verifier  verify.Verifier
	Corrector *textproc.Corrector
}

// Session is the per-connection pipeline state machine. It is not safe
// for concurrent use; the server serializes calls per connection.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	vadSession vad.SessionHandle
	kws        kws.Spotter
	diarizer   diarize.Transcriber
	verifier   verify.Verifier
	corrector  *textproc.Corrector
	dumper     *audio.Dumper
	metrics    *observe.Metrics
	notify     func(Reply)

	// now is injectable for tests.
	now func() time.Time

	mode Mode

	useWake bool
	useSV   bool
	useLLM  bool

	// isActivated means the wake word fired since the last reset to
	// wakeup mode.
	isActivated bool

	// kwsBuffer is the sliding window for the keyword spotter.
	kwsBuffer []float32

	// Enrollment accumulator.
	enrollBuffer      []float32
	enrollHasSpeech   bool
	enrollFirstSpeech time.Time
	enrollLastVoice   time.Time
	isEnrolled        bool
	enrollSamplePath  string

	// ASR endpointer state.
	asrBuffer         []float32
	preSpeech         []float32
	hasDetectedSpeech bool
	silenceChunks     int
	lastVoice         time.Time
}

// Option customises a new session.
type Option func(*Session)

// WithDumper attaches an audio dumper for audit WAVs.
func WithDumper(d *audio.Dumper) Option {
	return func(s *Session) { s.dumper = d }
}

// WithClock overrides the wall clock. Tests use this to drive the
// silence and enrollment timers deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithNotifier registers a callback for progress replies that must reach
// the client before ProcessChunk returns, such as the finalizing signal
// ahead of a multi-second recognition pass. Without a notifier those
// replies are returned in the ProcessChunk batch instead. The callback
// runs on the session's goroutine.
func WithNotifier(fn func(Reply)) Option {
	return func(s *Session) { s.notify = fn }
}

// New creates a session in its initial mode. The VAD backend is opened
// here so a broken model path fails the connection up front.
func New(cfg Config, p Providers, opts ...Option) (*Session, error) {
	cfg.Normalize()

	if p.VAD == nil || p.KWS == nil || p.Diarizer == nil {
		return nil, fmt.Errorf("session: vad, kws and diarizer providers are required")
	}

	vs, err := p.VAD.NewSession(vad.Config{
		SampleRate:        audio.PipelineRate,
		Threshold:         0.5,
		MinSilenceSeconds: 0.25,
		MinSpeechSeconds:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("session: open vad: %w", err)
	}

	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		log:        slog.Default(),
		vadSession: vs,
		kws:        p.KWS,
		diarizer:   p.Diarizer,
		verifier:   p.Verifier,
		corrector:  p.Corrector,
		metrics:    observe.DefaultMetrics(),
		now:        time.Now,
		useWake:    cfg.UseWake || cfg.RequireWake,
		useSV:      cfg.UseSV,
		useLLM:     !cfg.DisableLLM,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session_id", s.id)

	if s.useWake {
		s.mode = ModeWaitingForWakeup
	} else {
		s.mode = ModeASRActive
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the current FSM mode.
func (s *Session) Mode() Mode { return s.mode }

// UseWake reports whether wake-word gating is on.
func (s *Session) UseWake() bool { return s.useWake }

// IsEnrolled reports whether a reference sample has been accepted.
func (s *Session) IsEnrolled() bool { return s.isEnrolled }

// Close releases the VAD backend.
func (s *Session) Close() error {
	if s.vadSession != nil {
		return s.vadSession.Close()
	}
	return nil
}

// SetUseWake applies a per-message wake flag. Turning wake on while ASR
// is active sends the session back to the wakeup gate and clears the
// activation; turning it off while waiting for the wake word jumps
// straight into ASR. A global RequireWake wins over the message.
func (s *Session) SetUseWake(on bool) {
	if !on && s.cfg.RequireWake {
		s.log.Info("wake gating pinned on by configuration, ignoring use_wake=false")
		return
	}
	if on == s.useWake {
		return
	}
	s.useWake = on
	if on && s.mode == ModeASRActive {
		s.isActivated = false
		s.kwsBuffer = nil
		s.resetASRState()
		s.mode = ModeWaitingForWakeup
		s.log.Info("wake gating enabled, returning to wakeup mode")
	} else if !on && s.mode == ModeWaitingForWakeup {
		s.kwsBuffer = nil
		s.resetASRState()
		s.mode = ModeASRActive
		s.log.Info("wake gating disabled, entering asr mode")
	}
}

// SetUseSV applies a per-message verification flag. Disabling it drops
// the enrollment so a later re-enable starts from a fresh sample.
func (s *Session) SetUseSV(on bool) {
	if on == s.useSV {
		return
	}
	s.useSV = on
	if !on {
		s.isEnrolled = false
		s.enrollSamplePath = ""
		s.resetEnrollState()
	}
}

// SetUseLLM applies a per-message correction flag. A global DisableLLM
// wins over the message.
func (s *Session) SetUseLLM(on bool) {
	if s.cfg.DisableLLM {
		s.useLLM = false
		return
	}
	s.useLLM = on
}

// StartASR begins recognition. It applies during enrollment (skipping
// the sample) and in the confirmation mode; elsewhere it is a client
// error.
func (s *Session) StartASR() Reply {
	if s.mode != ModeWaitingForEnrollment && s.mode != ModeWaitingForEnrollmentConfirm {
		return NewErrorReply(CodeProcessingError,
			fmt.Sprintf("start_asr not valid in mode %s", s.mode))
	}
	s.resetEnrollState()
	s.resetASRState()
	s.mode = ModeASRActive
	s.log.Info("asr started after enrollment confirm")
	return StatusReply{Type: "status", Status: "asr_started", Message: "请开始说话"}
}

// CancelEnrollment abandons the current enrollment and returns to the
// wakeup gate. Wake gating is re-enabled so the next round starts clean.
func (s *Session) CancelEnrollment() Reply {
	s.useWake = true
	s.resetAll()
	s.log.Info("enrollment cancelled")
	return StatusReply{Type: "status", Status: "enrollment_cancelled", Message: "已取消注册，请重新唤醒"}
}

// EndConversation resets the session to its idle mode. Enrollment and
// activation are dropped.
func (s *Session) EndConversation() Reply {
	s.resetAll()
	s.log.Info("conversation ended")
	return StatusReply{Type: "status", Status: "conversation_ended", Message: "对话已结束"}
}

// resetAll returns the session to its initial mode with all pipeline
// state cleared.
func (s *Session) resetAll() {
	s.isActivated = false
	s.isEnrolled = false
	s.enrollSamplePath = ""
	s.kwsBuffer = nil
	s.resetEnrollState()
	s.resetASRState()
	s.vadSession.Reset()
	if s.useWake {
		s.mode = ModeWaitingForWakeup
	} else {
		s.mode = ModeASRActive
	}
}

// resetEnrollState clears the enrollment accumulator but not the
// accepted sample.
func (s *Session) resetEnrollState() {
	s.enrollBuffer = nil
	s.enrollHasSpeech = false
	s.enrollFirstSpeech = time.Time{}
	s.enrollLastVoice = time.Time{}
}

// resetASRState clears the endpointer between utterances. Mode,
// activation and enrollment survive.
func (s *Session) resetASRState() {
	s.asrBuffer = nil
	s.preSpeech = nil
	s.hasDetectedSpeech = false
	s.silenceChunks = 0
	s.lastVoice = time.Time{}
}
