package textproc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCorrectDeterministic(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"wu homophone whole token", "五", "无"},
		{"wu homophone with punctuation", "吴。", "无"},
		{"wu digit", "5", "无"},
		{"wu not whole token", "五天了", "五天了"},
		{"teng to teng", "腰疼得厉害，像被藤条抽", "腰疼得厉害，像被疼条抽"},
		{"qianqi", "前妻检查过", "前期检查过"},
		{"heibian", "有黑边和黑变", "有黑便和黑便"},
		{"chuan", "喘不上气又串气", "喘不上气又喘气"},
		{"shuye", "我需要打树叶", "我需要打输液"},
		{"yanmian", "颜面不通", "颜面部痛"},
		{"interjections stripped", "嗯嗯啊就是嗓子疼", "就是嗓子疼"},
		{"interjections keep punctuation", "啊，疼！", "，疼！"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CorrectDeterministic(tc.in); got != tc.want {
				t.Errorf("CorrectDeterministic(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCorrectDeterministicSeedSentence(t *testing.T) {
	got := CorrectDeterministic("我头疼，脱腾得厉害，前妻检查过")
	for _, want := range []string{"头疼", "前期"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
	for _, banned := range []string{"脱腾", "前妻"} {
		if strings.Contains(got, banned) {
			t.Errorf("output %q still contains %q", got, banned)
		}
	}
}

func TestCorrectDeterministicIdempotent(t *testing.T) {
	inputs := []string{
		"我头疼，脱腾得厉害，前妻检查过",
		"嗯啊哦额",
		"五",
		"胸闷气短，爬楼梯就喘",
	}
	for _, in := range inputs {
		once := CorrectDeterministic(in)
		twice := CorrectDeterministic(once)
		if once != twice {
			t.Errorf("not idempotent on %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestIsEffectivelyEmpty(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"，。！", true},
		{"嗯嗯啊", true},
		{"啊，嗯。", true},
		{"疼", false},
		{"，疼。", false},
	}
	for _, tc := range cases {
		if got := IsEffectivelyEmpty(tc.in); got != tc.want {
			t.Errorf("IsEffectivelyEmpty(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// stubLLM scripts the LLM phase.
type stubLLM struct {
	corrected string
	changed   bool
	err       error
	gotText   string
	gotWords  []string
	calls     int
}

func (s *stubLLM) Correct(ctx context.Context, text string, hotwords []string) (string, bool, error) {
	s.calls++
	s.gotText = text
	s.gotWords = hotwords
	return s.corrected, s.changed, s.err
}

func TestCorrectorLLMPhase(t *testing.T) {
	t.Run("llm result replaces deterministic", func(t *testing.T) {
		llm := &stubLLM{corrected: "胸闷气短", changed: true}
		c := New(llm, []string{"胸闷"})
		got := c.Correct(context.Background(), "胸焖气短", true)
		if got != "胸闷气短" {
			t.Errorf("got %q, want 胸闷气短", got)
		}
		if llm.gotWords[0] != "胸闷" {
			t.Errorf("hotwords not passed to llm: %v", llm.gotWords)
		}
	})

	t.Run("llm error keeps deterministic result", func(t *testing.T) {
		llm := &stubLLM{err: errors.New("endpoint down")}
		c := New(llm, nil)
		got := c.Correct(context.Background(), "前妻检查过", true)
		if got != "前期检查过" {
			t.Errorf("got %q, want deterministic 前期检查过", got)
		}
	})

	t.Run("useLLM false skips the model", func(t *testing.T) {
		llm := &stubLLM{corrected: "should not appear", changed: true}
		c := New(llm, nil)
		got := c.Correct(context.Background(), "前妻检查过", false)
		if got != "前期检查过" {
			t.Errorf("got %q, want 前期检查过", got)
		}
		if llm.gotText != "" {
			t.Error("llm was called despite useLLM=false")
		}
	})

	t.Run("empty after correction returns empty", func(t *testing.T) {
		c := New(nil, nil)
		if got := c.Correct(context.Background(), "嗯嗯，啊。", true); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}

func TestExtractCorrection(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantOK  bool
		changed bool
	}{
		{"plain json", `{"corrected":"胸闷","changed":true}`, "胸闷", true, true},
		{"fenced json", "```json\n{\"corrected\":\"胸闷\",\"changed\":false}\n```", "胸闷", true, false},
		{"prose around json", "好的。{\"corrected\":\"胸闷\",\"changed\":true} 以上。", "胸闷", true, true},
		{"no json", "抱歉，我无法处理。", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractCorrection(tc.in)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && (got.Corrected != tc.want || got.Changed != tc.changed) {
				t.Errorf("got %+v, want corrected=%q changed=%v", got, tc.want, tc.changed)
			}
		})
	}
}

func TestLoadHotwords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotwords.txt")
	content := "小护 10\n胸闷\n输液 -1\n\n压榨样疼痛\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	words := LoadHotwords(path)
	want := []string{"小护", "胸闷", "输液", "压榨样疼痛"}
	if len(words) != len(want) {
		t.Fatalf("got %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d: got %q, want %q", i, words[i], want[i])
		}
	}
}

func TestLoadHotwordsFallsBackToDefaults(t *testing.T) {
	words := LoadHotwords(filepath.Join(t.TempDir(), "missing.txt"))
	if len(words) == 0 {
		t.Fatal("expected default hotwords")
	}
	if words[0] != "小护" {
		t.Errorf("first default = %q, want 小护", words[0])
	}
}
