// Package postproc shapes finalized assistant replies before they are
// persisted or shown: style capping, next-step extraction, and small-talk
// suppression. Everything here is a pure function over text.
package postproc

import (
	"regexp"
	"strings"

	"erek/internal/config"
)

// Processor applies the configured caps and heuristics.
type Processor struct {
	cfg config.HeuristicsConfig
}

func New(cfg config.HeuristicsConfig) *Processor {
	return &Processor{cfg: cfg}
}

var (
	boldSegmentRe  = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	nextStepBlock  = regexp.MustCompile(`(?i)\n\nnext steps?:\s*\n(?:[-*•]\s*(?:\(\d+\)\s*)?[^\n]*\n?)+`)
)

// Format trims the reply, caps emoji and bold-segment counts, squeezes
// blank-line runs, and strips any explicit next-step block from the body;
// suggestions reach the UI through NextSteps only, never inline.
func (p *Processor) Format(raw string) string {
	out := strings.TrimSpace(raw)
	if out == "" {
		return out
	}

	if countEmojis(out) > p.cfg.MaxEmojis {
		out = capEmojis(out, p.cfg.MaxEmojis)
	}
	if len(boldSegmentRe.FindAllString(out, -1)) > p.cfg.MaxBoldSegments {
		out = capBoldSegments(out, p.cfg.MaxBoldSegments)
	}

	out = multiNewlineRe.ReplaceAllString(out, "\n\n")
	out = nextStepBlock.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// isEmoji reports whether the rune falls in the pictographic blocks the
// formatter caps. Variation selectors and ZWJ are not counted on their own.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	default:
		return false
	}
}

func countEmojis(text string) int {
	n := 0
	for _, r := range text {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

// capEmojis keeps the first max emoji runes, left to right, and removes
// the rest.
func capEmojis(text string, max int) string {
	var b strings.Builder
	b.Grow(len(text))
	seen := 0
	for _, r := range text {
		if isEmoji(r) {
			seen++
			if seen > max {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// capBoldSegments keeps the first max **...** pairs and unbolds the rest,
// preserving their inner text.
func capBoldSegments(text string, max int) string {
	count := 0
	return boldSegmentRe.ReplaceAllStringFunc(text, func(match string) string {
		count++
		if count <= max {
			return match
		}
		return boldSegmentRe.FindStringSubmatch(match)[1]
	})
}
