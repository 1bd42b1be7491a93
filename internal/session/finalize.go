package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/triamed/voicefront/internal/textproc"
	"github.com/triamed/voicefront/pkg/audio"
	"github.com/triamed/voicefront/pkg/provider/diarize"
	"github.com/triamed/voicefront/pkg/provider/verify"
)

// speakerGapMs is the pause length that splits an under-segmented
// single-speaker result into synthetic speakers.
const speakerGapMs = 800

// finalize runs the verification gate and text correction over the
// accumulated utterance, then resets the endpointer for the next turn.
func (s *Session) finalize(ctx context.Context) ([]Reply, error) {
	utterance := s.asrBuffer
	s.resetASRState()

	// The finalizing signal goes out before recognition starts; with a
	// notifier the client sees it while the models run.
	processing := ProcessingReply{Type: "processing", Status: "finalizing", Message: "正在识别"}
	var replies []Reply
	if s.notify != nil {
		s.notify(processing)
	} else {
		replies = append(replies, processing)
	}

	start := s.now()
	text := s.recognize(ctx, utterance)
	if !isSentinel(text) {
		text = s.correct(ctx, text)
	}
	s.metrics.FinalizeDuration.Record(ctx, s.now().Sub(start).Seconds())
	return append(replies, newResultReply(text)), nil
}

// correct applies the deterministic rules and the optional LLM pass.
func (s *Session) correct(ctx context.Context, text string) string {
	if s.corrector == nil {
		if textproc.IsEffectivelyEmpty(text) {
			return sentinelEmptyResult
		}
		return text
	}
	corrected := s.corrector.Correct(ctx, text, s.useLLM)
	if corrected == "" {
		return sentinelEmptyResult
	}
	return corrected
}

// recognize persists the utterance, runs speaker-separating recognition,
// and applies the verification gate. It returns the accepted text or a
// sentinel.
func (s *Session) recognize(ctx context.Context, utterance []float32) string {
	path, transient, err := s.persistUtterance(utterance)
	if err != nil {
		s.log.Error("failed to persist utterance", "error", err)
		return sentinelEmptyResult
	}
	if transient {
		defer os.Remove(path)
	}

	duration := float64(len(utterance)) / audio.PipelineRate
	sentences, err := s.diarizer.Transcribe(ctx, path, batchSizeFor(duration))
	if err != nil {
		s.log.Error("recognition failed", "error", err)
		s.metrics.RecordInferenceError(ctx, "asr")
		return sentinelEmptyResult
	}
	if len(sentences) == 0 {
		return sentinelEmptyResult
	}
	for _, sent := range sentences {
		if !sent.HasSpeaker {
			return sentinelEmptyResult
		}
	}

	groups := groupBySpeaker(sentences)

	if !s.useSV || !s.isEnrolled {
		return concatGroups(groups)
	}
	if !s.isActivated {
		return sentinelSVNotActivated
	}
	return s.gate(ctx, utterance, groups)
}

// batchSizeFor scales the recognizer's decoding hint with the utterance
// length.
func batchSizeFor(durationSeconds float64) int {
	switch {
	case durationSeconds < 30:
		return 60
	case durationSeconds < 60:
		return 120
	default:
		return 300
	}
}

// persistUtterance writes the finalized audio for the recognizer. With a
// dumper configured the file doubles as the audit copy; otherwise it is
// transient and the caller removes it.
func (s *Session) persistUtterance(utterance []float32) (path string, transient bool, err error) {
	if s.dumper != nil && s.dumper.Enabled() {
		path, err = s.dumper.Save("utterance", utterance)
		return path, false, err
	}
	path = filepath.Join(s.cfg.WorkDir,
		fmt.Sprintf("utt_%s_%s.wav", s.id[:8], audio.Timestamp(s.now())))
	return path, true, audio.SaveWAV(path, utterance)
}

// speakerGroup is one speaker's sentences in time order.
type speakerGroup struct {
	speaker   int
	sentences []diarize.Sentence
}

// groupBySpeaker buckets sentences per speaker. A single-speaker result
// with a pause above speakerGapMs between consecutive sentences is split
// into synthetic speakers, compensating for under-segmenting models.
func groupBySpeaker(sentences []diarize.Sentence) []speakerGroup {
	distinct := map[int]bool{}
	for _, sent := range sentences {
		distinct[sent.Speaker] = true
	}

	if len(distinct) == 1 {
		ordered := append([]diarize.Sentence(nil), sentences...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartMs < ordered[j].StartMs })
		next := ordered[0].Speaker
		for i := 1; i < len(ordered); i++ {
			if ordered[i].StartMs-ordered[i-1].EndMs > speakerGapMs {
				next++
			}
			ordered[i].Speaker = next
		}
		sentences = ordered
	}

	byID := map[int][]diarize.Sentence{}
	for _, sent := range sentences {
		byID[sent.Speaker] = append(byID[sent.Speaker], sent)
	}

	groups := make([]speakerGroup, 0, len(byID))
	for id, group := range byID {
		sort.SliceStable(group, func(i, j int) bool { return group[i].StartMs < group[j].StartMs })
		groups = append(groups, speakerGroup{speaker: id, sentences: group})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].speaker < groups[j].speaker })
	return groups
}

func concatGroups(groups []speakerGroup) string {
	var b strings.Builder
	for _, g := range groups {
		for _, sent := range g.sentences {
			b.WriteString(sent.Text)
		}
	}
	return b.String()
}

func concatGroup(g speakerGroup) string {
	var b strings.Builder
	for _, sent := range g.sentences {
		b.WriteString(sent.Text)
	}
	return b.String()
}

// gate verifies each speaker group against the enrollment sample and
// returns the accepted group's text.
func (s *Session) gate(ctx context.Context, utterance []float32, groups []speakerGroup) string {
	if s.verifier == nil {
		s.log.Error("verification requested but no verifier configured")
		return sentinelSVFailed
	}

	var best *speakerGroup
	var bestScore float64
	var bestPassed bool
	scoredCount := 0

	for i := range groups {
		g := &groups[i]
		samplePath := filepath.Join(s.cfg.WorkDir,
			fmt.Sprintf("spk_%s_%d_%s.wav", s.id[:8], g.speaker, audio.Timestamp(s.now())))
		if err := audio.SaveWAV(samplePath, spliceGroup(utterance, *g)); err != nil {
			s.log.Warn("failed to write speaker sample", "speaker", g.speaker, "error", err)
			continue
		}

		res, err := s.verifier.Verify(ctx, s.enrollSamplePath, samplePath)
		os.Remove(samplePath)
		if err != nil {
			s.log.Warn("verification failed", "speaker", g.speaker, "error", err)
			s.metrics.RecordInferenceError(ctx, "sv")
			continue
		}
		if !res.HasScore {
			continue
		}

		scoredCount++
		passed := res.Score > s.cfg.SVThreshold ||
			(res.Score == s.cfg.SVThreshold && res.Verdict == verify.VerdictYes)
		s.log.Debug("speaker scored", "speaker", g.speaker, "score", res.Score, "passed", passed)

		if best == nil || res.Score > bestScore {
			best = g
			bestScore = res.Score
			bestPassed = passed
		}
	}

	if scoredCount == 0 || best == nil || !bestPassed {
		return sentinelSVFailed
	}
	return concatGroup(*best)
}

// spliceGroup extracts a speaker's audio spans from the utterance,
// clamped to the buffer bounds.
func spliceGroup(utterance []float32, g speakerGroup) []float32 {
	var out []float32
	for _, sent := range g.sentences {
		start := sent.StartMs * audio.PipelineRate / 1000
		end := sent.EndMs * audio.PipelineRate / 1000
		if start < 0 {
			start = 0
		}
		if end > len(utterance) {
			end = len(utterance)
		}
		if start >= end {
			continue
		}
		out = append(out, utterance[start:end]...)
	}
	return out
}
