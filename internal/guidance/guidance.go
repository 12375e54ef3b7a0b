// Package guidance classifies a free-text user utterance captured on
// user-prompt-submit into one of the daemon's guidance types, the way
// internal/sessionstate classifies bash commands against a small regex
// table rather than attempting real language understanding (§3 "Guidance",
// §4.1 "user-prompt-submit").
package guidance

import (
	"regexp"
	"strings"

	"github.com/marveldaemon/mhd/internal/wire"
)

// classifier pairs a detector with the type and confidence it reports on
// a match. Order matters: the first match wins, so more specific patterns
// are listed before broader ones.
type classifier struct {
	pattern    *regexp.Regexp
	kind       wire.GuidanceType
	confidence float64
}

var classifiers = []classifier{
	{regexp.MustCompile(`(?i)^(no|nope|wrong|that'?s not right|don'?t do that|stop,? that'?s|actually,? that'?s wrong)\b`), wire.GuidanceCorrection, 0.9},
	{regexp.MustCompile(`(?i)\b(instead|rather than|undo that|revert that|not like that|fix (that|this)|that'?s (broken|incorrect))\b`), wire.GuidanceCorrection, 0.75},
	{regexp.MustCompile(`(?i)^(please\s+)?(use|switch to|change (it|this) to|make (it|this)|always|never)\b`), wire.GuidanceDirection, 0.7},
	{regexp.MustCompile(`(?i)\b(from now on|going forward|for future reference|as a rule)\b`), wire.GuidanceDirection, 0.85},
	{regexp.MustCompile(`(?i)^(let'?s (start|begin)|i want (you )?to (build|implement|add|create)|new task|next,?\s*(let'?s|please))\b`), wire.GuidanceTaskStart, 0.7},
	{regexp.MustCompile(`(?i)^(that'?s (it|all|done)|we'?re done|good stop|that completes it|finish(ed)? up here)\b`), wire.GuidanceTaskEnd, 0.7},
	{regexp.MustCompile(`(?i)^(yes|yep|looks good|lgtm|approved|go ahead|that'?s right|perfect|great job)\b`), wire.GuidanceApproval, 0.75},
	{regexp.MustCompile(`(?i)^(no,? don'?t|reject|don'?t do (that|this)|cancel that|hold off)\b`), wire.GuidanceRejection, 0.75},
	{regexp.MustCompile(`(?i)^(what do you mean|can you clarify|i don'?t understand|could you explain|what'?s|why (did|does|is))\b`), wire.GuidanceClarification, 0.6},
}

// categoryKeywords maps a keyword found in the utterance to the pack
// category it likely concerns, mirroring relevance's path-keyword table
// but applied to prose instead of a file path.
var categoryKeywords = map[string]string{
	"test":       "testing",
	"auth":       "security",
	"security":   "security",
	"permission": "security",
	"config":     "configuration",
	"env":        "configuration",
	"schema":     "data",
	"migration":  "data",
}

// Classify maps free text to a guidance type, confidence, and best-effort
// category. Unmatched text is wire.GuidanceUnknown with zero confidence,
// which the caller drops per §3 ("only correction and direction are
// stored").
func Classify(content string) (kind wire.GuidanceType, confidence float64, category string) {
	trimmed := strings.TrimSpace(content)
	category = categoryOf(trimmed)

	for _, c := range classifiers {
		if c.pattern.MatchString(trimmed) {
			return c.kind, c.confidence, category
		}
	}
	return wire.GuidanceUnknown, 0, category
}

func categoryOf(content string) string {
	lower := strings.ToLower(content)
	for kw, cat := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return cat
		}
	}
	return ""
}
