package session

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/triamed/voicefront/pkg/audio"
)

// ProcessChunk routes one decoded 16 kHz mono chunk through the FSM and
// returns the replies it produced. An empty chunk is a no-op.
func (s *Session) ProcessChunk(ctx context.Context, chunk []float32) ([]Reply, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	switch s.mode {
	case ModeWaitingForWakeup:
		return s.processWakeup(chunk), nil
	case ModeWaitingForEnrollment:
		return s.processEnrollment(chunk)
	case ModeWaitingForEnrollmentConfirm:
		// Audio is ignored until the client confirms with start_asr.
		return nil, nil
	case ModeASRActive:
		return s.processASR(ctx, chunk)
	}
	return nil, fmt.Errorf("session: unknown mode %q", s.mode)
}

// decideVAD combines the signal-level thresholds with the model VAD.
// The signal decision uses the configured AND/OR policy; the model
// result is always OR'd on top. A failing model counts as silence.
func (s *Session) decideVAD(chunk []float32) bool {
	var sum, peak float64
	for _, v := range chunk {
		a := math.Abs(float64(v))
		sum += a
		if a > peak {
			peak = a
		}
	}
	energy := sum / float64(len(chunk))

	overEnergy := energy > s.cfg.VADEnergyThreshold
	overPeak := peak > s.cfg.VADPeakThreshold
	var bySignal bool
	if s.cfg.VADPolicy == VADPolicyOr {
		bySignal = overEnergy || overPeak
	} else {
		bySignal = overEnergy && overPeak
	}

	byModel, err := s.vadSession.DetectSpeech(chunk)
	if err != nil {
		s.log.Warn("vad model failed on chunk, treating as silence", "error", err)
		s.metrics.RecordInferenceError(context.Background(), "vad")
		byModel = false
	}
	return bySignal || byModel
}

// processWakeup feeds the keyword-spotter sliding window. Detection runs
// over the full window so chunk boundaries cannot split the wake word.
func (s *Session) processWakeup(chunk []float32) []Reply {
	window := int(s.cfg.KWSWindowSeconds * audio.PipelineRate)
	s.kwsBuffer = append(s.kwsBuffer, chunk...)
	if len(s.kwsBuffer) > window {
		s.kwsBuffer = s.kwsBuffer[len(s.kwsBuffer)-window:]
	}
	if len(s.kwsBuffer) < window {
		return nil
	}

	keyword, err := s.kws.Detect(s.kwsBuffer)
	if err != nil {
		s.log.Warn("kws failed on window, treating as not wakened", "error", err)
		s.metrics.RecordInferenceError(context.Background(), "kws")
		keyword = ""
	}
	if keyword == "" || keyword == "rejected" {
		s.kwsBuffer = nil
		if s.isActivated {
			// Stale activation from a previous lifecycle.
			s.isActivated = false
		}
		return nil
	}

	if s.dumper != nil && s.dumper.Enabled() {
		if path, err := s.dumper.Save("kws", s.kwsBuffer); err != nil {
			s.log.Warn("failed to dump kws window", "error", err)
		} else {
			s.log.Debug("dumped kws window", "path", path)
		}
	}

	// The triggering window must not leak into recognition.
	s.kwsBuffer = nil
	s.resetASRState()
	s.isActivated = true
	s.mode = ModeWaitingForEnrollment
	s.log.Info("wake word detected", "keyword", keyword)

	return []Reply{WakeupReply{Type: "wakeup", Status: "activated", Message: "已唤醒，请录入声纹"}}
}

// processEnrollment accumulates the speaker reference sample. Chunks
// before the first speech frame are dropped; afterwards everything is
// kept so the sample has natural pauses.
func (s *Session) processEnrollment(chunk []float32) ([]Reply, error) {
	now := s.now()
	isSpeech := s.decideVAD(chunk)

	if !s.enrollHasSpeech {
		if !isSpeech {
			return nil, nil
		}
		s.enrollHasSpeech = true
		s.enrollFirstSpeech = now
	}
	s.enrollBuffer = append(s.enrollBuffer, chunk...)
	if isSpeech {
		s.enrollLastVoice = now
	}

	spoken := now.Sub(s.enrollFirstSpeech).Seconds()
	silence := now.Sub(s.enrollLastVoice).Seconds()
	if spoken < s.cfg.MinEnrollSeconds || silence < s.cfg.SilenceSeconds {
		return nil, nil
	}

	path := filepath.Join(s.cfg.WorkDir,
		fmt.Sprintf("enroll_%s_%s.wav", s.id[:8], audio.Timestamp(now)))
	if err := audio.SaveWAV(path, s.enrollBuffer); err != nil {
		return []Reply{NewErrorReply(CodeProcessingError, "failed to persist enrollment sample")},
			fmt.Errorf("session: persist enrollment: %w", err)
	}

	s.enrollSamplePath = path
	s.isEnrolled = true
	s.resetEnrollState()
	s.mode = ModeWaitingForEnrollmentConfirm
	s.log.Info("enrollment completed", "sample", path, "spoken_seconds", spoken)

	return []Reply{EnrollmentCompletedReply{
		Type:    "enrollment_completed",
		Status:  "completed",
		Message: "声纹注册完成，发送 start_asr 开始对话",
	}}, nil
}

// processASR runs the silence endpointer over the utterance buffer.
func (s *Session) processASR(ctx context.Context, chunk []float32) ([]Reply, error) {
	now := s.now()

	if s.decideVAD(chunk) {
		s.silenceChunks = 0
		s.hasDetectedSpeech = true
		s.lastVoice = now
		if len(s.preSpeech) > 0 {
			// One-shot onset protection: the ring holds up to 0.4 s of
			// audio from just before the first speech frame.
			s.asrBuffer = append(s.preSpeech, s.asrBuffer...)
			s.preSpeech = nil
		}
		s.asrBuffer = append(s.asrBuffer, chunk...)
		return nil, nil
	}

	if !s.hasDetectedSpeech {
		limit := int(s.cfg.PreSpeechSeconds * audio.PipelineRate)
		s.preSpeech = append(s.preSpeech, chunk...)
		if len(s.preSpeech) > limit {
			s.preSpeech = s.preSpeech[len(s.preSpeech)-limit:]
		}
		return nil, nil
	}

	// Bounded tail: at most two silence chunks are kept on the buffer.
	if s.silenceChunks < 2 {
		s.asrBuffer = append(s.asrBuffer, chunk...)
		s.silenceChunks++
	}

	if now.Sub(s.lastVoice).Seconds() >= s.cfg.SilenceSeconds && len(s.asrBuffer) > 0 {
		return s.finalize(ctx)
	}
	return nil, nil
}
