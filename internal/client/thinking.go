package client

import (
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// The assistant bubble shows a "thinking" state for at least this long so
// fast replies do not flash in before the user can register them. Short
// prompts get a brief pause; long or work-heavy prompts a longer one.

var smallTalkPromptRe = regexp.MustCompile(`(?i)^(hi|hello|hey|bye|good\s*(morning|night|day)|gm|gn|how\s*are\s*you|what'?s\s*up|sup|good|ok(ay)?|thanks?|date|what'?s\s*the\s*date|namaste|kaise\s*ho)[\s!?.]*$`)

var bigWorkRe = regexp.MustCompile(`(?i)\b(project|build|create|develop|plan|debug|code|video|image|app|implement|design|write\s+(a|the)|make\s+(a|me)|help\s+me)\b`)

// ThinkingDelay returns the minimum time to hold the thinking state for a
// given user message.
func ThinkingDelay(message string) time.Duration {
	text := strings.TrimSpace(message)
	n := len(text)

	switch {
	case n < 20 || smallTalkPromptRe.MatchString(text):
		return jitter(400, 400)
	case bigWorkRe.MatchString(text) || n > 200:
		return jitter(2500, 2500)
	case n > 100:
		return jitter(1800, 1200)
	case n > 50:
		return jitter(1000, 800)
	default:
		return jitter(700, 500)
	}
}

func jitter(base, spread int) time.Duration {
	return time.Duration(base+rand.Intn(spread)) * time.Millisecond
}
