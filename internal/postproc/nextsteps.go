package postproc

import (
	"regexp"
	"strings"
)

// Fixed suggestion sets per reply category.
var (
	codeSuggestions = []string{
		"Apply this patch",
		"Show full file",
		"Explain errors",
		"Add tests",
	}
	troubleshootingSuggestions = []string{
		"Run this command",
		"Share output",
		"Try alternate fix",
	}
	planningSuggestions = []string{
		"Create a new document",
		"Convert to checklist",
		"Pick an option",
		"Convert to steps",
	}
	creativeSuggestions = []string{
		"Generate 3 variants",
		"Add a hook",
		"Make thumbnail prompt",
		"Shorten / lengthen",
	}
	documentSuggestions = []string{
		"Create a new document",
		"Copy to clipboard",
		"Tell me more",
		"Edit or shorten",
	}
	defaultSuggestions = []string{
		"Create a new document",
		"Tell me more",
		"Explain simply",
		"Give an example",
	}
)

var (
	codeBlockRe       = regexp.MustCompile("```[\\s\\S]*?```")
	codeWordsRe       = regexp.MustCompile(`(?i)\b(function|def |class |const |let |import |from |npm |yarn |git |curl )`)
	troubleshootingRe = regexp.MustCompile(`(?i)\b(error|fix|debug|run|command|output|failed|try|troubleshoot)\b`)
	planningRe        = regexp.MustCompile(`(?i)\b(plan|steps?|todo|checklist|task|outline|first|then|finally)\b`)
	creativeRe        = regexp.MustCompile(`(?i)\b(idea|variant|hook|prompt|thumbnail|story|copy|tagline|headline|creative)\b`)
	listLineRe        = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	summaryWordsRe    = regexp.MustCompile(`(?i)\b(summary|steps?|outline|list|notes?|following)\b`)

	userCodeRe     = regexp.MustCompile(`\b(code|patch|file|error|test)\b`)
	userDebugRe    = regexp.MustCompile(`\b(debug|fix|error|run|command|broken)\b`)
	userPlanRe     = regexp.MustCompile(`\b(plan|steps|todo|checklist|task)\b`)
	userCreativeRe = regexp.MustCompile(`\b(idea|variant|hook|prompt|creative|story)\b`)
	userDocRe      = regexp.MustCompile(`\b(document|note|write|save|summary)\b`)

	// Short greeting/acknowledgment user messages, English plus the Hindi
	// forms the original audience used.
	smallTalkUserRe = regexp.MustCompile(`(?i)^(hi|hello|hey|bye|good\s*(morning|night|day|afternoon)|gm|gn|how\s*are\s*you|what'?s\s*up|sup|good|ok(ay)?|thanks?|thank\s*you|date|what'?s\s*the\s*date|kaise\s*ho|kya\s*hal|namaste|goodbye|see\s*you|take\s*care)[\s!?.]*$`)

	greetingReplyRe = regexp.MustCompile(`(?i)\b(hi|hello|hey|bye|good|fine|thanks?|ok|sure|theek\s*hai|haan|date\s+is|it'?s\s+\d)\b`)
)

var stepMarkers = []string{"next step:", "next steps:", "suggestions:", "you can:", "try:"}

// ShouldShowNextSteps decides whether a turn deserves follow-up chips.
// Suppression is conjunctive: a short greeting-shaped user message alone is
// not enough, the reply has to look like small talk too.
func (p *Processor) ShouldShowNextSteps(reply, userMessage string) bool {
	user := strings.TrimSpace(userMessage)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return false
	}
	userShort := len(user) <= p.cfg.SmallTalkUserLen && smallTalkUserRe.MatchString(user)
	replyVeryShort := len(reply) < p.cfg.ShortReplyLen && strings.Count(reply, "\n") <= 1
	replyLooksGreeting := greetingReplyRe.MatchString(reply) && !strings.Contains(reply, "Next step")
	if userShort && (replyVeryShort || replyLooksGreeting) {
		return false
	}
	if replyVeryShort && replyLooksGreeting {
		return false
	}
	return true
}

// ParseNextSteps extracts an explicit next-step section the model emitted.
// Returns nil unless at least two usable candidates are found.
func (p *Processor) ParseNextSteps(text string) []string {
	lower := strings.ToLower(text)
	for _, marker := range stepMarkers {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		after := strings.TrimSpace(text[idx+len(marker):])
		var suggestions []string
		for _, line := range strings.Split(after, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
			if line == "" {
				continue
			}
			if len(line) >= p.cfg.MaxSuggestionLen {
				continue
			}
			suggestions = append(suggestions, line)
			if len(suggestions) == p.cfg.MaxSuggestions {
				break
			}
		}
		if len(suggestions) >= 2 {
			return suggestions
		}
	}
	return nil
}

// NextSteps produces 2-4 actionable follow-up phrases for the reply, or
// nothing when the exchange is small talk. Parsed suggestions win; category
// heuristics fill in otherwise.
func (p *Processor) NextSteps(reply, userMessage string) []string {
	if strings.TrimSpace(reply) == "" {
		return nil
	}
	if !p.ShouldShowNextSteps(reply, userMessage) {
		return nil
	}

	if parsed := p.ParseNextSteps(reply); len(parsed) >= 2 {
		if len(parsed) > p.cfg.MaxSuggestions {
			parsed = parsed[:p.cfg.MaxSuggestions]
		}
		return parsed
	}

	text := strings.TrimSpace(reply)
	user := strings.ToLower(strings.TrimSpace(userMessage))

	switch {
	case hasCode(text) || userCodeRe.MatchString(user):
		return codeSuggestions
	case troubleshootingRe.MatchString(text) || userDebugRe.MatchString(user):
		return troubleshootingSuggestions
	case planningRe.MatchString(text) || userPlanRe.MatchString(user):
		return planningSuggestions
	case creativeRe.MatchString(text) || userCreativeRe.MatchString(user):
		return creativeSuggestions
	case isDocumentWorthy(text) || userDocRe.MatchString(user):
		return documentSuggestions
	default:
		return defaultSuggestions
	}
}

func hasCode(text string) bool {
	return codeBlockRe.MatchString(text) || codeWordsRe.MatchString(text)
}

// isDocumentWorthy flags replies the user might want to keep: lists of a
// few lines, or summary-shaped prose.
func isDocumentWorthy(text string) bool {
	hasList := listLineRe.MatchString(text)
	if hasList && strings.Count(text, "\n") >= 2 {
		return true
	}
	return summaryWordsRe.MatchString(text)
}
