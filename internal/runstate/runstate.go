// Package runstate owns one run's on-disk layout: run.json (single
// writer, read-modify-write) plus the append-only tool_calls.jsonl,
// injections.jsonl, and guidance.jsonl files (§3 "Run state", §6 "Run
// directory layout").
package runstate

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/redact"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Run owns one run directory's state and serializes all read-modify-write
// access to run.json behind a mutex (§5 "Run-state JSON file: single
// writer; small critical sections").
type Run struct {
	mu  sync.Mutex
	dir string
	st  wire.RunState
}

// New starts a fresh run, creating its directory and initial run.json.
func New(dir string, runID string) (*Run, error) {
	r := &Run{dir: dir, st: wire.RunState{RunID: runID, StartedAt: time.Now()}}
	if err := r.persistLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Run) runJSONPath() string          { return filepath.Join(r.dir, "run.json") }
func (r *Run) toolCallsPath() string        { return filepath.Join(r.dir, "tool_calls.jsonl") }
func (r *Run) injectionsPath() string       { return filepath.Join(r.dir, "injections.jsonl") }
func (r *Run) guidancePath() string         { return filepath.Join(r.dir, "guidance.jsonl") }
func (r *Run) lessonOutcomesPath() string   { return filepath.Join(r.dir, "lesson-outcomes.jsonl") }
func (r *Run) securityMetricsPath() string  { return filepath.Join(r.dir, "security-metrics.json") }

func (r *Run) persistLocked() error {
	return pathutil.WriteJSONAtomic(r.runJSONPath(), r.st, 0o600)
}

// State returns a snapshot of the current run state.
func (r *Run) State() wire.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

// PushActivity appends a bounded activity event and persists.
func (r *Run) PushActivity(kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.PushActivity(wire.ActivityEvent{Timestamp: time.Now(), Kind: kind, Detail: redact.String(detail)})
	r.persistLocked()
}

// RecordToolCall appends a tool-call record and bumps toolCallCount,
// keeping the two in lockstep (§3 invariant: toolCallCount equals the next
// sequence number).
func (r *Run) RecordToolCall(tool, inputSummary, outputSummary string, success bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.st.ToolCallCount + 1
	tc := wire.ToolCall{
		Sequence:      seq,
		Timestamp:     time.Now(),
		Tool:          tool,
		InputSummary:  redact.String(inputSummary),
		OutputSummary: redact.String(outputSummary),
		Success:       success,
	}
	if err := pathutil.AppendJSONL(r.toolCallsPath(), tc); err != nil {
		logging.Warn().Err(err).Msg("failed to append tool call record")
	}
	r.st.ToolCallCount = seq
	r.persistLocked()
	return seq
}

// RecordInjection appends an injection record and updates lastInjection
// and activePacks bookkeeping.
func (r *Run) RecordInjection(file string, lessons, packs []string, lessonPack map[string]string, scores map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inj := wire.Injection{Timestamp: time.Now(), File: file, LessonsInjected: lessons, PacksInjected: packs, LessonPack: lessonPack}
	if err := pathutil.AppendJSONL(r.injectionsPath(), inj); err != nil {
		logging.Warn().Err(err).Msg("failed to append injection record")
	}

	r.st.LastInjection = &wire.LastInjection{File: file, Packs: packs, RelevanceScores: scores, LessonTitles: lessons}
	r.st.ActivePacks = mergeUnique(r.st.ActivePacks, packs)
	r.persistLocked()
}

// RecordGuidance appends a retained guidance entry (§3 "only correction
// and direction are stored" — the caller filters by GuidanceType.Retained
// before calling this).
func (r *Run) RecordGuidance(g wire.Guidance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.Content = redact.String(g.Content)
	if err := pathutil.AppendJSONL(r.guidancePath(), g); err != nil {
		logging.Warn().Err(err).Msg("failed to append guidance record")
	}
	if g.Type == wire.GuidanceCorrection {
		r.st.CorrectionCount++
		r.persistLocked()
	}
}

// RecordLessonOutcomes appends the outcome accounting computed at stop.
func (r *Run) RecordLessonOutcomes(outcomes []wire.LessonOutcome) {
	for _, o := range outcomes {
		if err := pathutil.AppendJSONL(r.lessonOutcomesPath(), o); err != nil {
			logging.Warn().Err(err).Msg("failed to append lesson outcome")
		}
	}
}

// PersistSecurityMetrics writes a best-effort snapshot; failure is
// non-fatal (§4.6 "Metrics... persistence failure is non-fatal").
func (r *Run) PersistSecurityMetrics(v any) {
	if err := pathutil.WriteJSONAtomic(r.securityMetricsPath(), v, 0o644); err != nil {
		logging.Warn().Err(err).Msg("failed to persist security metrics snapshot")
	}
}

// End marks the run ended.
func (r *Run) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.st.EndedAt = &now
	r.persistLocked()
}

// ReadToolCalls reads every tool-call record back (used for outcome
// correlation and invariant checks).
func (r *Run) ReadToolCalls() ([]wire.ToolCall, error) {
	var out []wire.ToolCall
	err := pathutil.ReadJSONL(r.toolCallsPath(), func(raw json.RawMessage) error {
		var tc wire.ToolCall
		if err := json.Unmarshal(raw, &tc); err != nil {
			return nil // skip malformed line, already warned by ReadJSONL
		}
		out = append(out, tc)
		return nil
	})
	return out, err
}

// ReadInjections reads every injection record back (used for outcome
// correlation).
func (r *Run) ReadInjections() ([]wire.Injection, error) {
	var out []wire.Injection
	err := pathutil.ReadJSONL(r.injectionsPath(), func(raw json.RawMessage) error {
		var inj wire.Injection
		if err := json.Unmarshal(raw, &inj); err != nil {
			return nil
		}
		out = append(out, inj)
		return nil
	})
	return out, err
}

// ReadGuidance reads every retained guidance record back (used for
// outcome correlation).
func (r *Run) ReadGuidance() ([]wire.Guidance, error) {
	var out []wire.Guidance
	err := pathutil.ReadJSONL(r.guidancePath(), func(raw json.RawMessage) error {
		var g wire.Guidance
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

func mergeUnique(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := existing
	for _, a := range add {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
