package ttsjob

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"trims and collapses spaces", "  胸闷   气短  ", "胸闷 气短"},
		{"blank lines become commas", "头疼\n\n发热", "头疼，发热"},
		{"inner newline becomes comma", "头疼\n发热", "头疼，发热"},
		{"enumeration markers stripped", "1. 头疼。\n2. 发热。", "头疼。\n发热。"},
		{"comma runs collapsed", "头疼，，，发热", "头疼，发热"},
		{"edge commas stripped", "，头疼，", "头疼"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeText(tc.in); got != tc.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSplitTextBoundaries(t *testing.T) {
	got := SplitText("测试一。测试二，测试三！", SegmentConfig{})
	want := []string{"测试一。", "测试二，", "测试三！"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitText = %q, want %q", got, want)
	}
}

func TestSplitTextMergesShortSentences(t *testing.T) {
	got := SplitText("你好。请坐。", SegmentConfig{})
	want := []string{"你好。请坐。"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitText = %q, want %q", got, want)
	}
}

func TestSplitTextIdempotentOnOwnOutput(t *testing.T) {
	for _, seg := range SplitText("测试一。测试二，测试三！", SegmentConfig{}) {
		again := SplitText(seg, SegmentConfig{})
		if len(again) != 1 || again[0] != seg {
			t.Errorf("segment %q re-split to %q", seg, again)
		}
	}
}

func TestSplitTextForceChopRespectsHardMax(t *testing.T) {
	cfg := SegmentConfig{}
	cfg.normalize()
	in := strings.Repeat("好", 30) // no punctuation at all
	segments := SplitText(in, cfg)
	if len(segments) < 2 {
		t.Fatalf("expected forced split, got %q", segments)
	}
	var joined strings.Builder
	for _, seg := range segments {
		bare := strings.TrimSuffix(seg, "，")
		if len(bare) > cfg.HardMax {
			t.Errorf("segment %q exceeds hard max %d bytes", bare, cfg.HardMax)
		}
		joined.WriteString(bare)
	}
	if joined.String() != in {
		t.Errorf("forced split lost text: %q", joined.String())
	}
}

func TestSplitTextAppendsCommaToBareSegments(t *testing.T) {
	segments := SplitText(strings.Repeat("好", 30), SegmentConfig{})
	for i, seg := range segments[:len(segments)-1] {
		if !strings.HasSuffix(seg, "，") {
			t.Errorf("non-final segment %d %q has no trailing comma", i, seg)
		}
	}
}

func TestSplitTextEmpty(t *testing.T) {
	if got := SplitText("  \n\n ", SegmentConfig{}); got != nil {
		t.Errorf("SplitText on whitespace = %q, want nil", got)
	}
}

func TestPauseAfterMs(t *testing.T) {
	cases := []struct {
		segment string
		want    int
	}{
		{"测试一。", 200},
		{"有问题吗？", 200},
		{"测试二，", 120},
		{"没有标点", 120},
	}
	for _, tc := range cases {
		if got := PauseAfterMs(tc.segment, 200, 120); got != tc.want {
			t.Errorf("PauseAfterMs(%q) = %d, want %d", tc.segment, got, tc.want)
		}
	}
}
