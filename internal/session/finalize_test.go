package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/triamed/voicefront/internal/textproc"
	"github.com/triamed/voicefront/pkg/audio"
	"github.com/triamed/voicefront/pkg/provider/diarize"
	"github.com/triamed/voicefront/pkg/provider/verify"
)

// transcriberFunc adapts a function to diarize.Transcriber.
type transcriberFunc func(ctx context.Context, path string, batchSize int) ([]diarize.Sentence, error)

func (f transcriberFunc) Transcribe(ctx context.Context, path string, batchSize int) ([]diarize.Sentence, error) {
	return f(ctx, path, batchSize)
}

// runUtterance drives a short utterance plus trailing silence through an
// ASR-active session and returns the finalize replies along with the
// clock reading at finalize time.
func runUtterance(t *testing.T, rig *testRig) ([]Reply, time.Time) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if replies := rig.feed(t, speechChunk()); len(replies) != 0 {
			t.Fatalf("speech chunk %d produced replies %v", i, replies)
		}
	}
	for i := 0; i < 8; i++ {
		at := rig.now
		if replies := rig.feed(t, silenceChunk()); len(replies) != 0 {
			return replies, at
		}
	}
	t.Fatal("utterance never finalized")
	return nil, time.Time{}
}

func resultOf(t *testing.T, replies []Reply) ResultReply {
	t.Helper()
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want processing + result", len(replies))
	}
	processing, ok := replies[0].(ProcessingReply)
	if !ok || processing.Status != "finalizing" {
		t.Fatalf("first reply = %#v, want processing:finalizing", replies[0])
	}
	result, ok := replies[1].(ResultReply)
	if !ok {
		t.Fatalf("second reply = %#v, want result", replies[1])
	}
	return result
}

func TestFinalizePassThrough(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "胸闷", StartMs: 0, EndMs: 800, Speaker: 3, HasSpeaker: true},
		{Text: "气短", StartMs: 900, EndMs: 1500, Speaker: 3, HasSpeaker: true},
	}

	replies, _ := runUtterance(t, rig)
	result := resultOf(t, replies)
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Text != "胸闷气短" {
		t.Errorf("text = %q, want 胸闷气短", result.Text)
	}
	if len(rig.verifier.Calls) != 0 {
		t.Error("verifier called without sv enabled")
	}
	if len(rig.diarizer.Calls) != 1 || rig.diarizer.Calls[0].BatchSize != 60 {
		t.Errorf("diarizer calls = %+v, want one call with batch 60", rig.diarizer.Calls)
	}
}

func TestFinalizeAppliesCorrection(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.sess.corrector = textproc.New(nil, nil)
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "前妻检查过", StartMs: 0, EndMs: 1200, Speaker: 0, HasSpeaker: true},
	}

	result := resultOf(t, firstOf(runUtterance(t, rig)))
	if result.Text != "前期检查过" {
		t.Errorf("text = %q, want 前期检查过", result.Text)
	}
}

func TestFinalizeEmptyRecognition(t *testing.T) {
	cases := []struct {
		name  string
		setup func(rig *testRig)
	}{
		{"no sentences", func(rig *testRig) { rig.diarizer.Sentences = nil }},
		{"transcribe error", func(rig *testRig) { rig.diarizer.Err = fmt.Errorf("model crashed") }},
		{"missing speaker", func(rig *testRig) {
			rig.diarizer.Sentences = []diarize.Sentence{{Text: "胸闷", EndMs: 500}}
		}},
		{"interjection only text", func(rig *testRig) {
			rig.diarizer.Sentences = []diarize.Sentence{
				{Text: "嗯嗯啊", EndMs: 500, HasSpeaker: true},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newTestRig(t, Config{})
			rig.sess.corrector = textproc.New(nil, nil)
			tc.setup(rig)

			result := resultOf(t, firstOf(runUtterance(t, rig)))
			if result.Success {
				t.Fatalf("result = %+v, want failure", result)
			}
			if result.Message != "抱歉，请再说一遍！" {
				t.Errorf("message = %q", result.Message)
			}
		})
	}
}

// enrolledRig returns a rig with sv enabled and a fake accepted
// enrollment.
func enrolledRig(t *testing.T) *testRig {
	rig := newTestRig(t, Config{UseSV: true})
	rig.sess.isEnrolled = true
	rig.sess.enrollSamplePath = filepath.Join(rig.sess.cfg.WorkDir, "enroll_ref.wav")
	rig.sess.isActivated = true
	return rig
}

func TestSVReject(t *testing.T) {
	rig := enrolledRig(t)
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "开门", StartMs: 0, EndMs: 900, Speaker: 0, HasSpeaker: true},
	}
	rig.verifier.Result = verify.Result{Verdict: verify.VerdictNo, Score: 0.30, HasScore: true}

	result := resultOf(t, firstOf(runUtterance(t, rig)))
	if result.Success {
		t.Fatalf("result = %+v, want rejection", result)
	}
	if result.Message != "抱歉，请再说一遍！" {
		t.Errorf("message = %q", result.Message)
	}
	if len(rig.verifier.Calls) != 1 {
		t.Fatalf("verifier calls = %d, want 1", len(rig.verifier.Calls))
	}
	if rig.verifier.Calls[0].EnrollPath != rig.sess.enrollSamplePath {
		t.Errorf("enroll path = %q", rig.verifier.Calls[0].EnrollPath)
	}

	// Temp speaker and utterance WAVs are cleaned up.
	leftovers, err := filepath.Glob(filepath.Join(rig.sess.cfg.WorkDir, "*.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("leftover WAVs after finalize: %v", leftovers)
	}
}

func TestSVPass(t *testing.T) {
	rig := enrolledRig(t)
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "我胸口疼", StartMs: 0, EndMs: 1100, Speaker: 0, HasSpeaker: true},
	}
	rig.verifier.Result = verify.Result{Verdict: verify.VerdictYes, Score: 0.85, HasScore: true}

	result := resultOf(t, firstOf(runUtterance(t, rig)))
	if !result.Success || result.Text != "我胸口疼" {
		t.Fatalf("result = %+v, want accepted text", result)
	}
}

func TestSVNotActivated(t *testing.T) {
	rig := enrolledRig(t)
	rig.sess.isActivated = false
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "我胸口疼", StartMs: 0, EndMs: 1100, Speaker: 0, HasSpeaker: true},
	}

	result := resultOf(t, firstOf(runUtterance(t, rig)))
	if result.Success {
		t.Fatalf("result = %+v, want rejection", result)
	}
	if result.Message != "非认证注册声音，拒绝访问。" {
		t.Errorf("message = %q", result.Message)
	}
	if len(rig.verifier.Calls) != 0 {
		t.Error("verifier called despite not activated")
	}
}

func TestSVScorePolicy(t *testing.T) {
	cases := []struct {
		name string
		res  verify.Result
		want bool
	}{
		{"above threshold", verify.Result{Score: 0.41, HasScore: true}, true},
		{"below threshold", verify.Result{Score: 0.39, HasScore: true, Verdict: verify.VerdictYes}, false},
		{"at threshold verdict yes", verify.Result{Score: 0.40, HasScore: true, Verdict: verify.VerdictYes}, true},
		{"at threshold verdict no", verify.Result{Score: 0.40, HasScore: true, Verdict: verify.VerdictNo}, false},
		{"no score", verify.Result{Verdict: verify.VerdictYes}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rig := enrolledRig(t)
			rig.diarizer.Sentences = []diarize.Sentence{
				{Text: "测试", StartMs: 0, EndMs: 700, Speaker: 0, HasSpeaker: true},
			}
			rig.verifier.Result = tc.res

			result := resultOf(t, firstOf(runUtterance(t, rig)))
			if result.Success != tc.want {
				t.Errorf("success = %v, want %v (result %+v)", result.Success, tc.want, result)
			}
		})
	}
}

func TestSVMultiGroupPicksHighestScore(t *testing.T) {
	rig := enrolledRig(t)
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "旁人插话", StartMs: 0, EndMs: 700, Speaker: 1, HasSpeaker: true},
		{Text: "我肚子胀", StartMs: 900, EndMs: 1800, Speaker: 2, HasSpeaker: true},
	}

	// The clock is frozen between feeds, so both speaker samples carry
	// the finalize instant: 3 speech + 5 silence chunks in.
	finalizeAt := rig.now.Add(7 * 400 * time.Millisecond)
	pathFor := func(speaker int) string {
		return filepath.Join(rig.sess.cfg.WorkDir,
			fmt.Sprintf("spk_%s_%d_%s.wav", rig.sess.id[:8], speaker, audio.Timestamp(finalizeAt)))
	}
	rig.verifier.ResultsByPath = map[string]verify.Result{
		pathFor(1): {Score: 0.55, HasScore: true},
		pathFor(2): {Score: 0.90, HasScore: true},
	}

	result := resultOf(t, firstOf(runUtterance(t, rig)))
	if !result.Success || result.Text != "我肚子胀" {
		t.Fatalf("result = %+v, want the higher-scoring speaker's text", result)
	}
}

func TestPostFinalizeEndpointerReset(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.diarizer.Sentences = []diarize.Sentence{
		{Text: "测试", StartMs: 0, EndMs: 700, Speaker: 0, HasSpeaker: true},
	}
	runUtterance(t, rig)

	if rig.sess.silenceChunks != 0 {
		t.Errorf("silenceChunks = %d, want 0", rig.sess.silenceChunks)
	}
	if rig.sess.hasDetectedSpeech {
		t.Error("hasDetectedSpeech still set")
	}
	if len(rig.sess.preSpeech) != 0 {
		t.Error("preSpeech not empty")
	}
	if len(rig.sess.asrBuffer) != 0 {
		t.Error("asrBuffer not empty")
	}
	if got := rig.sess.Mode(); got != ModeASRActive {
		t.Errorf("mode = %s, want %s (keeps listening)", got, ModeASRActive)
	}
}

func TestGroupBySpeakerGapHeuristic(t *testing.T) {
	sentences := []diarize.Sentence{
		{Text: "一", StartMs: 0, EndMs: 500, Speaker: 7, HasSpeaker: true},
		{Text: "二", StartMs: 600, EndMs: 1000, Speaker: 7, HasSpeaker: true},
		{Text: "三", StartMs: 2000, EndMs: 2500, Speaker: 7, HasSpeaker: true},
	}
	groups := groupBySpeaker(sentences)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 after gap split: %+v", len(groups), groups)
	}
	if got := concatGroup(groups[0]); got != "一二" {
		t.Errorf("first group = %q, want 一二", got)
	}
	if got := concatGroup(groups[1]); got != "三" {
		t.Errorf("second group = %q, want 三", got)
	}
}

func TestGroupBySpeakerMultiSpeakerKeepsLabels(t *testing.T) {
	sentences := []diarize.Sentence{
		{Text: "乙", StartMs: 1000, EndMs: 1500, Speaker: 2, HasSpeaker: true},
		{Text: "甲", StartMs: 0, EndMs: 500, Speaker: 1, HasSpeaker: true},
		{Text: "甲二", StartMs: 3000, EndMs: 3500, Speaker: 1, HasSpeaker: true},
	}
	groups := groupBySpeaker(sentences)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if concatGroup(groups[0]) != "甲甲二" || concatGroup(groups[1]) != "乙" {
		t.Errorf("groups = %q, %q", concatGroup(groups[0]), concatGroup(groups[1]))
	}
}

func TestBatchSizeFor(t *testing.T) {
	cases := []struct {
		seconds float64
		want    int
	}{
		{5, 60}, {29.9, 60}, {30, 120}, {59, 120}, {60, 300}, {600, 300},
	}
	for _, tc := range cases {
		if got := batchSizeFor(tc.seconds); got != tc.want {
			t.Errorf("batchSizeFor(%v) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}

func TestSpliceGroupClampsToBuffer(t *testing.T) {
	utterance := make([]float32, audio.PipelineRate) // 1 s
	g := speakerGroup{sentences: []diarize.Sentence{
		{StartMs: 500, EndMs: 2000},
		{StartMs: 3000, EndMs: 4000}, // fully out of range
	}}
	out := spliceGroup(utterance, g)
	if len(out) != audio.PipelineRate/2 {
		t.Errorf("spliced %d samples, want %d", len(out), audio.PipelineRate/2)
	}
}

// firstOf adapts runUtterance's two return values for resultOf.
func firstOf(replies []Reply, _ time.Time) []Reply { return replies }

func TestFinalizeNotifierSignalsBeforeRecognition(t *testing.T) {
	var order []string
	rig := newTestRig(t, Config{}, WithNotifier(func(r Reply) {
		if p, ok := r.(ProcessingReply); ok && p.Status == "finalizing" {
			order = append(order, "finalizing")
		}
	}))
	rig.sess.diarizer = transcriberFunc(func(context.Context, string, int) ([]diarize.Sentence, error) {
		order = append(order, "recognize")
		return []diarize.Sentence{
			{Text: "胸闷", StartMs: 0, EndMs: 800, Speaker: 0, HasSpeaker: true},
		}, nil
	})

	replies, _ := runUtterance(t, rig)
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want only the result", len(replies))
	}
	if _, ok := replies[0].(ResultReply); !ok {
		t.Fatalf("reply = %#v, want result", replies[0])
	}
	if len(order) != 2 || order[0] != "finalizing" || order[1] != "recognize" {
		t.Errorf("event order = %v, want the finalizing signal before recognition", order)
	}
}
