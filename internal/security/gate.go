// Package security orchestrates the four-layer bash command gate —
// allowlist, denylist, learned rules, external evaluator — and the
// pending-decision-to-learned-rule convergence loop that sits behind it
// (§4.3, §4.4, §4.5, §4.6).
package security

import (
	"context"
	"fmt"
	"sync"

	"github.com/marveldaemon/mhd/internal/learned"
	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pending"
	"github.com/marveldaemon/mhd/internal/rules"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Verdict is the gate's outcome for one command, mirroring wire's
// permission-decision vocabulary plus the layer that produced it.
type Verdict struct {
	Decision  wire.PermissionDecision
	Reason    string
	Layer     string
	RequestID string // set when Decision is Ask, for later Resolve
}

// Evaluator is the external LLM-backed judge consulted once the first three
// layers are inconclusive (§4.6). Implemented by internal/evaluator; kept
// as an interface here so the gate has no import-time dependency on the
// evaluator's transport.
type Evaluator interface {
	Evaluate(ctx context.Context, root, command, description string) (EvalResult, error)
}

// EvalResult is what the evaluator layer decides.
type EvalResult struct {
	Decision        wire.PermissionDecision
	Reason          string
	SuggestedRule   *wire.Rule
	RequiresHuman   bool // evaluator itself couldn't decide, must ask
}

// Gate ties the four layers together for one project root.
type Gate struct {
	root      string
	allowlist *rules.Set
	denylist  *rules.Set
	learned   *learned.Store
	pending   *pending.Tracker
	eval      Evaluator

	metricsMu sync.Mutex
	metrics   Metrics
}

// Metrics is the in-memory per-layer decision tally surfaced through
// status/diagnostics and persisted into a run's security-metrics.json
// (§4.6 "Metrics").
type Metrics struct {
	AllowlistHits int `json:"allowlist_hits"`
	DenylistHits  int `json:"denylist_hits"`
	LearnedHits   int `json:"learned_hits"`
	EvaluatorAsks int `json:"evaluator_asks"`
	EvaluatorAuto int `json:"evaluator_auto_decisions"`
	Fallbacks     int `json:"fallback_asks"`
}

// AutoAcceptRate is the share of decisions the first three layers resolved
// without consulting the evaluator or a human (§4.6).
func (m Metrics) AutoAcceptRate() float64 {
	total := m.AllowlistHits + m.DenylistHits + m.LearnedHits + m.EvaluatorAsks + m.EvaluatorAuto + m.Fallbacks
	if total == 0 {
		return 0
	}
	resolved := m.AllowlistHits + m.DenylistHits + m.LearnedHits
	return float64(resolved) / float64(total)
}

// New builds a Gate from already-loaded rule sets and stores.
func New(root string, allowlist, denylist *rules.Set, store *learned.Store, tracker *pending.Tracker, eval Evaluator) *Gate {
	return &Gate{root: root, allowlist: allowlist, denylist: denylist, learned: store, pending: tracker, eval: eval}
}

// Metrics returns a snapshot of the decision tally accumulated so far.
func (g *Gate) Metrics() Metrics {
	g.metricsMu.Lock()
	defer g.metricsMu.Unlock()
	return g.metrics
}

func (g *Gate) record(f func(*Metrics)) {
	g.metricsMu.Lock()
	f(&g.metrics)
	g.metricsMu.Unlock()
}

// Check runs command through the four layers in order, short-circuiting on
// the first conclusive answer: denylist, then allowlist, then learned
// rules, then evaluator. Denylist is checked first so neither an allowlist
// entry nor a broad learned allow can ever override it.
func (g *Gate) Check(ctx context.Context, requestID, command, description string) (Verdict, error) {
	if r := g.denylist.MatchDenylist(command); r != nil {
		g.record(func(m *Metrics) { m.DenylistHits++ })
		return Verdict{Decision: wire.DecisionDeny, Reason: r.Reason, Layer: "denylist"}, nil
	}

	if r := g.allowlist.MatchAllowlist(command); r != nil {
		g.record(func(m *Metrics) { m.AllowlistHits++ })
		return Verdict{Decision: wire.DecisionAllow, Reason: r.Reason, Layer: "allowlist"}, nil
	}

	if lr := g.learned.Match(command); lr != nil {
		g.record(func(m *Metrics) { m.LearnedHits++ })
		return Verdict{Decision: wire.DecisionAllow, Reason: lr.Reason, Layer: "learned"}, nil
	}

	if g.eval == nil {
		g.record(func(m *Metrics) { m.Fallbacks++ })
		v := Verdict{Decision: wire.DecisionAsk, Reason: "no evaluator configured", Layer: "fallback", RequestID: requestID}
		g.pending.Add(command, wire.PendingDecision{Command: command, Description: description, Reason: v.Reason})
		return v, nil
	}

	result, err := g.eval.Evaluate(ctx, g.root, command, description)
	if err != nil {
		logging.Warn().Err(err).Str("command", command).Msg("evaluator failed, falling back to ask")
		g.record(func(m *Metrics) { m.Fallbacks++ })
		v := Verdict{Decision: wire.DecisionAsk, Reason: "evaluator unavailable", Layer: "evaluator-error", RequestID: requestID}
		g.pending.Add(command, wire.PendingDecision{Command: command, Description: description, Reason: v.Reason})
		return v, nil
	}

	if result.RequiresHuman || result.Decision == wire.DecisionAsk {
		g.record(func(m *Metrics) { m.EvaluatorAsks++ })
		v := Verdict{Decision: wire.DecisionAsk, Reason: result.Reason, Layer: "evaluator", RequestID: requestID}
		pd := wire.PendingDecision{Command: command, Description: description, Reason: result.Reason}
		if result.SuggestedRule != nil {
			pd.SuggestedRule = result.SuggestedRule
		}
		g.pending.Add(command, pd)
		return v, nil
	}

	g.record(func(m *Metrics) { m.EvaluatorAuto++ })
	return Verdict{Decision: result.Decision, Reason: result.Reason, Layer: "evaluator"}, nil
}

// Approve records a human's approval of a previously-asked command and,
// when the extracted or suggested pattern passes the safety check, persists
// it as a learned rule (§4.4 "pending decision to learned rule
// convergence", §4.5 "Approve"). command is resolved against the same
// normalized key Check registered the pending decision under, since the
// request ID a later hook reports is not guaranteed to match the one the
// original ask carried.
func (g *Gate) Approve(command, sessionID string) (*wire.LearnedRule, error) {
	d, ok := g.pending.Resolve(command)
	if !ok {
		return nil, fmt.Errorf("no pending decision for command %q", command)
	}

	pattern := ""
	ruleType := wire.RulePrefix
	reason := "approved by user"
	if d.SuggestedRule != nil {
		pattern = d.SuggestedRule.Pattern
		ruleType = d.SuggestedRule.Type
		if d.SuggestedRule.Reason != "" {
			reason = d.SuggestedRule.Reason
		}
	} else {
		pattern = learned.Extract(g.root, d.Command)
	}

	if pattern == "" || !learned.Safe(d.Command, pattern) {
		logging.Info().Str("command", d.Command).Msg("approved command not eligible for learning")
		return nil, nil
	}

	lr, err := g.learned.Learn(pattern, ruleType, reason, d.Command, sessionID)
	if err != nil {
		return nil, err
	}
	return &lr, nil
}

// Deny records a human's denial of a previously-asked command. No learning
// happens on denial (§4.5 "Deny").
func (g *Gate) Deny(command string) error {
	if _, ok := g.pending.Resolve(command); !ok {
		return fmt.Errorf("no pending decision for command %q", command)
	}
	return nil
}
