// Package outcome pairs injection records with subsequent corrections and
// tool failures, and updates per-lesson utility scores with time decay
// (§4.12).
package outcome

import (
	"math"
	"strings"
	"time"

	"github.com/marveldaemon/mhd/internal/wire"
)

// correctionWeight and failureWeight are the two signal weights (§4.12
// "Signals").
const (
	correctionWeight = 1.0
	failureWeight    = 0.5
	decayHorizonDays = 90.0
	minExistingWeight = 0.5
)

// Accrual is the per-(pack,lesson) bookkeeping built while walking a run's
// injections, guidance, and tool calls.
type Accrual struct {
	Pack             string
	Lesson           string
	Injected         int
	CorrectedWeight  float64
}

func key(pack, lesson string) string { return pack + "\x00" + lesson }

// Correlate walks a run's injection/guidance/tool-call records and
// produces one Accrual per (pack, lesson) pair that was ever injected
// (§4.12 "Lesson outcome").
func Correlate(injections []wire.Injection, guidance []wire.Guidance, toolCalls []wire.ToolCall, packCategories map[string][]string) []Accrual {
	accruals := make(map[string]*Accrual)

	ensure := func(pack, lesson string) *Accrual {
		k := key(pack, lesson)
		a, ok := accruals[k]
		if !ok {
			a = &Accrual{Pack: pack, Lesson: lesson}
			accruals[k] = a
		}
		return a
	}

	for _, inj := range injections {
		correction := findCorrection(inj, guidance, packCategories)
		failure := false
		if !correction {
			failure = findFailure(inj, toolCalls)
		}

		weight := 0.0
		if correction {
			weight = correctionWeight
		} else if failure {
			weight = failureWeight
		}

		for _, lesson := range inj.LessonsInjected {
			pack := inj.LessonPack[lesson]
			if pack == "" && len(inj.PacksInjected) > 0 {
				pack = inj.PacksInjected[0] // best-effort fallback for older records without the mapping
			}
			a := ensure(pack, lesson)
			a.Injected++
			a.CorrectedWeight += weight
		}
	}

	out := make([]Accrual, 0, len(accruals))
	for _, a := range accruals {
		out = append(out, *a)
	}
	return out
}

func findCorrection(inj wire.Injection, guidance []wire.Guidance, packCategories map[string][]string) bool {
	for _, g := range guidance {
		if g.Type != wire.GuidanceCorrection {
			continue
		}
		if g.Preceding != nil && g.Preceding.File == inj.File {
			return true
		}
		if g.Category != "" {
			for _, pack := range inj.PacksInjected {
				for _, c := range packCategories[pack] {
					if c == g.Category {
						return true
					}
				}
			}
		}
	}
	return false
}

func findFailure(inj wire.Injection, toolCalls []wire.ToolCall) bool {
	for _, tc := range toolCalls {
		if !tc.Success && strings.Contains(tc.InputSummary, inj.File) {
			return true
		}
	}
	return false
}

// ApplyDecay computes the updated utility score for one lesson given its
// session accrual and its prior recorded state (§4.12 "Score update with
// decay"). lastInjected may be the zero time if the lesson was never
// injected before this session.
func ApplyDecay(prior wire.Lesson, a Accrual, now time.Time) wire.Lesson {
	sessionUtility := 1.0
	if a.Injected > 0 {
		sessionUtility = clamp01(1 - a.CorrectedWeight/float64(a.Injected))
	}

	existingUtility := prior.Utility()
	existingInjections := prior.InjectionCount
	daysSinceLast := decayHorizonDays
	if prior.LastInjected != nil {
		daysSinceLast = now.Sub(*prior.LastInjected).Hours() / 24
	}
	existingWeight := math.Max(minExistingWeight, 1-daysSinceLast/decayHorizonDays)

	existingMass := existingUtility * existingWeight * float64(existingInjections)
	sessionMass := sessionUtility * float64(a.Injected)
	totalWeight := existingWeight*float64(existingInjections) + float64(a.Injected)

	newUtility := existingUtility
	if totalWeight > 0 {
		newUtility = clamp01((existingMass + sessionMass) / totalWeight)
	}
	rounded := math.Round(newUtility*1000) / 1000

	updated := prior
	updated.UtilityScore = &rounded
	updated.InjectionCount = existingInjections + a.Injected
	updated.CorrectionCount = prior.CorrectionCount + int(math.Round(a.CorrectedWeight))
	updated.LastInjected = &now
	return updated
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
