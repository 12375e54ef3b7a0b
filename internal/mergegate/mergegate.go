// Package mergegate implements the cross-cutting deny-before-merge check
// layered on top of the four-layer bash gate: merge-pattern commands are
// blocked outright unless a session's lint/typecheck/test flags are all
// green, and commit/push commands get a non-blocking warning on the same
// flags minus test (§4.6 "Cross-cutting deny-before-merge").
package mergegate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marveldaemon/mhd/internal/sessionstate"
)

// mergePattern matches remote-merge, API-merge, and auto-merge command
// shapes across the common hosts and VCS tools.
var mergePattern = regexp.MustCompile(`(?i)\bgit\s+merge\b|\bgh\s+pr\s+merge\b|\bglab\s+mr\s+merge\b|--auto-merge\b|\bmerge\s+--auto\b`)

// commitPushPattern matches plain commit/push commands, deliberately
// narrower than mergePattern so a merge commit isn't double-gated.
var commitPushPattern = regexp.MustCompile(`(?i)\bgit\s+commit\b|\bgit\s+push\b`)

// Verdict is what the merge gate adds on top of the bash gate's own
// decision: a blocking deny, a non-blocking warning, or nothing.
type Verdict struct {
	Blocked bool
	Warning string
	Reason  string
}

// Check inspects command against the merge/commit patterns and, if it
// matches either, consults the session's readiness flags (§4.10). A
// command matching neither pattern returns the zero Verdict.
func Check(command string, state *sessionstate.Manager) Verdict {
	lower := strings.ToLower(command)

	if mergePattern.MatchString(lower) {
		r := state.CheckMerge()
		if !r.Ready {
			return Verdict{Blocked: true, Reason: fmt.Sprintf("merge blocked: %s not yet passed this session", strings.Join(r.Missing, ", "))}
		}
		return Verdict{}
	}

	if commitPushPattern.MatchString(lower) {
		r := state.CheckPreCommit()
		if !r.Ready {
			return Verdict{Warning: fmt.Sprintf("warning: %s has not passed this session", strings.Join(r.Missing, ", "))}
		}
		return Verdict{}
	}

	return Verdict{}
}
