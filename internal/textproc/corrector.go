// Package textproc post-corrects recognized Chinese text before it is
// returned to the client.
//
// Correction runs in two phases. The deterministic phase applies a fixed
// rule set: a whole-token homophone check for "无", an ordered list of
// global substring substitutions for frequent mis-recognitions in the
// triage domain, and an interjection strip. The LLM phase then optionally
// asks a chat model for a minimal-edit correction constrained by the
// hotword list; any LLM failure falls back to the deterministic result.
package textproc

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/triamed/voicefront/internal/observe"
)

// LLM is the correction model contract. Implementations return the
// corrected text and whether the model claims to have changed anything.
type LLM interface {
	Correct(ctx context.Context, text string, hotwords []string) (corrected string, changed bool, err error)
}

// wuHomophones are the single tokens that collapse to "无" when they make
// up the entire utterance.
var wuHomophones = map[string]struct{}{
	"五": {}, "乌": {}, "吴": {}, "屋": {}, "舞": {},
	"5": {}, "午": {}, "吾": {}, "芜": {},
}

// substitution rules, applied globally and in order. Later rules may match
// the output of earlier ones (e.g. 腾→疼 first turns 脱腾 into 脱疼, which
// the 头疼 rule then catches).
var substitutions = []struct{ from, to string }{
	{"前妻", "前期"},
	{"黑边", "黑便"},
	{"黑变", "黑便"},
	{"腾", "疼"},
	{"藤", "疼"},
	{"滕", "疼"},
	{"誊", "疼"},
	{"壳", "咳"},
	{"气势", "前期"},
	{"串", "喘"},
	{"川", "喘"},
	{"涨", "胀"},
	{"账", "胀"},
	{"脱腾", "头疼"},
	{"拖腾", "头疼"},
	{"拖疼", "头疼"},
	{"脱疼", "头疼"},
	{"游离", "油腻"},
	{"游历", "油腻"},
	{"颜面不通", "颜面部痛"},
	{"即性", "急性"},
	{"犯罪症状", "伴随症状"},
	{"树叶", "输液"},
	{"书页", "输液"},
	{"术业", "输液"},
	{"树业", "输液"},
}

// interjections consumes runs of filler characters while leaving the
// surrounding punctuation in place.
var interjections = regexp.MustCompile(`[嗯哈哼噗砰呀嗷啊哦额呃诶唉哎呦妈]+`)

// CorrectDeterministic applies the fixed rule set in order.
func CorrectDeterministic(text string) string {
	if _, ok := wuHomophones[StripPunct(text)]; ok {
		return "无"
	}
	for _, s := range substitutions {
		text = strings.ReplaceAll(text, s.from, s.to)
	}
	return interjections.ReplaceAllString(text, "")
}

// StripPunct removes Chinese/ASCII punctuation and whitespace.
func StripPunct(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, text)
}

// IsEffectivelyEmpty reports whether text carries no content once
// punctuation and interjections are removed.
func IsEffectivelyEmpty(text string) bool {
	return StripPunct(interjections.ReplaceAllString(text, "")) == ""
}

// Corrector runs both correction phases.
type Corrector struct {
	llm      LLM
	hotwords []string
	breaker  *breaker
}

// New creates a Corrector. llm may be nil to disable the LLM phase
// entirely; hotwords feed the LLM prompt.
func New(llm LLM, hotwords []string) *Corrector {
	return &Corrector{
		llm:      llm,
		hotwords: hotwords,
		breaker:  newBreaker(3, 30*time.Second),
	}
}

// Correct post-corrects recognized text. useLLM gates the LLM phase per
// call (sessions can toggle it mid-conversation). Returns an empty string
// when nothing survives correction; the session layer maps that to its
// empty-result sentinel.
func (c *Corrector) Correct(ctx context.Context, text string, useLLM bool) string {
	out := CorrectDeterministic(text)

	if useLLM && c.llm != nil && strings.TrimSpace(out) != "" && c.breaker.allow() {
		corrected, _, err := c.llm.Correct(ctx, out, c.hotwords)
		c.breaker.record(err)
		if err != nil {
			slog.Warn("llm correction failed, keeping deterministic result", "err", err)
			observe.DefaultMetrics().RecordInferenceError(ctx, "llm")
		} else if corrected != "" && corrected != out {
			out = corrected
		}
	}

	if IsEffectivelyEmpty(out) {
		return ""
	}
	return out
}
