// Package ttsjob implements the asynchronous text-to-speech job service:
// UUID-keyed jobs, a bounded synthesis worker pool with single-flight model
// loading, punctuation-aware text segmentation, and seamless WAV
// concatenation with inter-segment pauses and linear crossfades.
package ttsjob

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SegmentConfig tunes the text splitter. Lengths are byte counts of the
// UTF-8 text.
type SegmentConfig struct {
	// Target is the length segments are merged towards.
	Target int

	// FirstTarget is the shorter target for the first segment. A short
	// first segment keeps time-to-first-audio low.
	FirstTarget int

	// HardMax is the length above which a piece must keep splitting.
	HardMax int
}

func (c *SegmentConfig) normalize() {
	if c.Target <= 0 {
		c.Target = 18
	}
	if c.FirstTarget <= 0 {
		c.FirstTarget = 14
	}
	if c.HardMax <= 0 {
		c.HardMax = 22
	}
}

const (
	strongBoundaries = "。！？；\n"
	weakBoundaries   = "，、："
	segmentPunct     = "。！？；，、：\n"
)

var (
	lineSpace    = regexp.MustCompile(`[ \t]+`)
	blankLineRun = regexp.MustCompile(`\n\s*\n+`)
	innerNewline = regexp.MustCompile(`([^\n，。！？；\s])\s*\n\s*([^\n，。！？；\s])`)
	enumMarker   = regexp.MustCompile(`(^|\n)\s*\d{1,2}\s*[.、:：)]\s*`)
	commaRun     = regexp.MustCompile(`，+`)
	edgeCommas   = regexp.MustCompile(`^，+|，+$`)
)

// NormalizeText collapses whitespace, folds blank lines into commas, strips
// leading enumeration markers, and collapses comma runs. It is applied once
// before splitting.
func NormalizeText(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	t = strings.ReplaceAll(t, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = lineSpace.ReplaceAllString(t, " ")
	t = blankLineRun.ReplaceAllString(t, "，")
	t = innerNewline.ReplaceAllString(t, "${1}，${2}")
	t = enumMarker.ReplaceAllString(t, "${1}")
	t = commaRun.ReplaceAllString(t, "，")
	t = edgeCommas.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// SplitText normalizes text and splits it into synthesis segments: strong
// boundaries first, greedy merge towards the target lengths, weak sub-split
// for pieces over the hard cap, and a forced cut as the last resort.
// Non-final segments that end without punctuation get a trailing comma to
// smooth prosody.
func SplitText(text string, cfg SegmentConfig) []string {
	cfg.normalize()

	t := NormalizeText(text)
	if t == "" {
		return nil
	}

	var out []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	limit := func(first bool) int {
		if first {
			return cfg.FirstTarget
		}
		return cfg.Target
	}

	buf := ""
	for _, p := range splitAfterAny(t, strongBoundaries) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		l := limit(len(out) == 0 && buf == "")
		if buf != "" && len(buf)+len(p) <= l {
			buf += p
			continue
		}
		if buf == "" && len(p) <= l {
			buf = p
			continue
		}
		if buf != "" {
			emit(buf)
			buf = ""
		}

		if len(p) <= cfg.HardMax {
			emit(p)
			continue
		}

		// Over the cap: retry at weak boundaries.
		tmp := ""
		for _, sub := range splitAfterAny(p, weakBoundaries) {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				continue
			}
			l2 := limit(len(out) == 0 && tmp == "")
			switch {
			case tmp != "" && len(tmp)+len(sub) <= l2:
				tmp += sub
			case tmp == "" && len(sub) <= l2:
				tmp = sub
			default:
				if tmp != "" {
					emit(tmp)
					tmp = ""
				}
				if len(sub) <= cfg.HardMax {
					emit(sub)
				} else {
					for _, piece := range forceChop(sub, cfg.HardMax) {
						emit(piece)
					}
				}
			}
		}
		if tmp != "" {
			emit(tmp)
		}
	}
	if buf != "" {
		emit(buf)
	}

	for i := 0; i < len(out)-1; i++ {
		if !strings.ContainsRune(segmentPunct, lastRune(out[i])) {
			out[i] += "，"
		}
	}
	return out
}

// PauseAfterMs returns the inter-segment pause following segment: hardMs
// after a sentence-final boundary, softMs otherwise.
func PauseAfterMs(segment string, hardMs, softMs int) int {
	if strings.ContainsRune(strongBoundaries, lastRune(segment)) {
		return hardMs
	}
	return softMs
}

// splitAfterAny splits s directly after every rune in delims, keeping the
// delimiter on the preceding piece.
func splitAfterAny(s, delims string) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(delims, r) {
			end := i + utf8.RuneLen(r)
			parts = append(parts, s[start:end])
			start = end
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

// forceChop cuts s into rune-aligned pieces of at most max bytes.
func forceChop(s string, max int) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); {
		_, n := utf8.DecodeRuneInString(s[i:])
		if i+n-start > max && i > start {
			parts = append(parts, s[start:i])
			start = i
		}
		i += n
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}
