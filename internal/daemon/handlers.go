// Handler table: one function per hook, keyed on the hook enum (§9
// "Dynamic dispatch... a static table keyed on the hook enum suffices").
package daemon

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/marveldaemon/mhd/internal/cmdparse"
	"github.com/marveldaemon/mhd/internal/guidance"
	"github.com/marveldaemon/mhd/internal/injection"
	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/mergegate"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/relevance"
	"github.com/marveldaemon/mhd/internal/runstate"
	"github.com/marveldaemon/mhd/internal/wire"
)

// handlerFunc is the signature every hook handler shares: the request's
// raw input, already decoded, plus its request ID for the security-ask
// path, and the context the socket layer races against the hook's
// timeout budget.
type handlerFunc func(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error)

// handlers is the static dispatch table. Hooks not present here (none
// currently) would fall back to wire.Empty() in the socket layer.
var handlers = map[wire.Hook]handlerFunc{
	wire.HookSessionStart:       handleSessionStart,
	wire.HookUserPromptSubmit:   handleUserPromptSubmit,
	wire.HookPreToolUse:         handlePreToolUse,
	wire.HookPostToolUse:        handlePostToolUse,
	wire.HookPostToolUseFailure: handlePostToolUseFailure,
	wire.HookStop:               handleStop,
	wire.HookPermissionRequest:  handlePreToolUse, // same gate pipeline as pre-tool-use
	wire.HookPreCompact:         handlePreCompact,
	wire.HookPostCompactAgents:  handlePostCompactAgents,
	wire.HookSessionEnd:         handleSessionEnd,
	wire.HookSubagentStart:      handleSubagentStart,
	wire.HookSubagentStop:       handleSubagentStop,
	wire.HookNotification:       handleNoop,
	wire.HookTeammateIdle:       handleTeammateIdle,
	wire.HookTaskCompleted:      handleNoop,
}

// Dispatch looks up and runs the handler for hook. Recursed processes
// (the evaluator subprocess itself) always allow immediately (§7(d)).
func Dispatch(ctx context.Context, d *Daemon, hook wire.Hook, requestID string, raw []byte) (*wire.Response, error) {
	if IsRecursed() {
		if hook.IsSecurity() {
			return wire.Security(hook, wire.DecisionAllow, ""), nil
		}
		return wire.Empty(), nil
	}
	in := wire.DecodeHookInput(raw)
	fn, ok := handlers[hook]
	if !ok {
		return wire.Empty(), nil
	}
	return fn(ctx, d, requestID, in)
}

func handleSessionStart(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" {
		return wire.Empty(), nil
	}
	if _, err := d.startSession(in.SessionID); err != nil {
		logging.Warn().Err(err).Str("session", in.SessionID).Msg("session-start init failed")
	}
	return wire.Empty(), nil
}

func handleUserPromptSubmit(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.Prompt == "" {
		return wire.Empty(), nil
	}
	kind, confidence, category := guidance.Classify(in.Prompt)
	if !kind.Retained() {
		return wire.Empty(), nil
	}

	run := d.currentRun()
	if run == nil {
		return wire.Empty(), nil
	}

	g := wire.Guidance{
		ID:         requestID,
		RunID:      run.State().RunID,
		Type:       kind,
		Content:    in.Prompt,
		Category:   category,
		Confidence: confidence,
	}
	if last := run.State().LastInjection; last != nil {
		g.Preceding = &wire.PrecedingContext{File: last.File, PacksInjected: last.Packs}
	}
	run.RecordGuidance(g)
	return wire.Empty(), nil
}

func handlePreToolUse(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.ToolName == "bash" || in.ToolName == "Bash" {
		return handleBashPreToolUse(ctx, d, requestID, in)
	}
	return handleEditPreToolUse(ctx, d, requestID, in)
}

func handleBashPreToolUse(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID != "" {
		if state, err := d.sessionStateFor(in.SessionID); err == nil {
			if v := mergegate.Check(in.Command, state); v.Blocked {
				return wire.Security(wire.HookPreToolUse, wire.DecisionDeny, v.Reason), nil
			} else if v.Warning != "" {
				logging.Info().Str("session", in.SessionID).Str("warning", v.Warning).Msg("merge-gate warning on commit/push")
			}
		}
	}

	verdict, err := d.gate.Check(ctx, requestID, in.Command, in.Description)
	if err != nil {
		logging.Warn().Err(err).Str("command", in.Command).Msg("security gate check failed")
		return wire.Empty(), nil
	}
	return wire.Security(wire.HookPreToolUse, verdict.Decision, verdict.Reason), nil
}

func handleEditPreToolUse(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.FilePath == "" || d.packsCache == nil {
		return wire.Empty(), nil
	}
	file := cleanedFile(d, in.FilePath)

	correctionsByCategory, categories := recentGuidanceSignals(d.currentRun())

	var inputs []relevance.Input
	for _, p := range d.packsCache.All() {
		correctionCount := 0
		for _, c := range p.Categories {
			correctionCount += correctionsByCategory[c]
		}
		inputs = append(inputs, relevance.Input{
			Pack:                     p,
			FilePath:                 file,
			RecentCorrectionCount:    correctionCount,
			RecentGuidanceCategories: categories,
		})
	}
	selected := relevance.Select(inputs)
	if len(selected) == 0 {
		return wire.Empty(), nil
	}

	result := injection.Format(file, selected, d.dedup)
	if result.Text == "" {
		return wire.Empty(), nil
	}

	if run := d.currentRun(); run != nil {
		run.RecordInjection(file, result.LessonsInjected, result.PacksInjected, result.LessonPack, result.Scores)
	}
	return wire.InjectContext(wire.HookPreToolUse, result.Text), nil
}

func handlePostToolUse(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	success := in.Success == nil || *in.Success
	if run := d.currentRun(); run != nil {
		run.RecordToolCall(in.ToolName, in.InputSummary, in.OutputSummary, success)
	}

	if in.SessionID == "" {
		return wire.Empty(), nil
	}
	state, err := d.sessionStateFor(in.SessionID)
	if err != nil {
		return wire.Empty(), nil
	}
	if in.ToolName == "bash" || in.ToolName == "Bash" {
		state.ObserveCommand(in.Command)
		if success {
			if _, err := d.gate.Approve(in.Command, in.SessionID); err != nil {
				logging.Debug().Err(err).Str("command", in.Command).Msg("no pending decision to approve on post-tool-use")
			}
		}
	} else if in.FilePath != "" && success {
		state.ObserveEdit(in.FilePath)
	}
	return wire.Empty(), nil
}

func handlePostToolUseFailure(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if run := d.currentRun(); run != nil {
		run.RecordToolCall(in.ToolName, in.InputSummary, in.OutputSummary, false)
	}
	return wire.Empty(), nil
}

func handleStop(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	d.Stop()
	return wire.Empty(), nil
}

func handlePreCompact(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	d.dedup.Clear()
	if in.SessionID == "" {
		return wire.Empty(), nil
	}
	path, err := compactionHandoffPath(in.SessionID)
	if err != nil {
		return wire.Empty(), nil
	}
	if err := d.registry.SerializeForCompaction(in.SessionID, path); err != nil {
		logging.Warn().Err(err).Str("session", in.SessionID).Msg("failed to serialize agents before compaction")
	}
	return wire.Empty(), nil
}

func handlePostCompactAgents(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" {
		return wire.Empty(), nil
	}
	path, err := compactionHandoffPath(in.SessionID)
	if err != nil {
		return wire.Empty(), nil
	}
	summary := d.registry.Summarize(in.SessionID, path)
	return wire.SystemMessage(summary), nil
}

func handleSessionEnd(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" {
		return wire.Empty(), nil
	}
	d.endSession(in.SessionID, d.onIdleCallback())
	return wire.Empty(), nil
}

func handleSubagentStart(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" || in.AgentID == "" {
		return wire.Empty(), nil
	}
	d.registry.Register(in.SessionID, in.AgentID, in.AgentType)
	return wire.Empty(), nil
}

func handleSubagentStop(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" || in.AgentID == "" {
		return wire.Empty(), nil
	}
	if in.ErrorMessage != "" {
		d.registry.Error(in.SessionID, in.AgentID, in.ErrorMessage)
	} else {
		d.registry.Complete(in.SessionID, in.AgentID, in.TranscriptPath, in.ResultSummary)
	}
	return wire.Empty(), nil
}

func handleTeammateIdle(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	if in.SessionID == "" || in.Name == "" {
		return wire.Empty(), nil
	}
	d.registry.TrackTeammate(in.SessionID, in.Name, in.Team)
	return wire.Empty(), nil
}

func handleNoop(ctx context.Context, d *Daemon, requestID string, in wire.HookInput) (*wire.Response, error) {
	return wire.Empty(), nil
}

func cleanedFile(d *Daemon, path string) string {
	return cmdparse.RelativeToRoot(d.root, path)
}

// recentGuidanceSignals gathers the recent-correction counts per category
// and the category set relevance.Score weighs (§4.8 "Scoring signals")
// from the run's guidance log, bounded to entries within
// relevance.RecentWindow. Corrections without a category are not counted.
func recentGuidanceSignals(run *runstate.Run) (map[string]int, []string) {
	if run == nil {
		return nil, nil
	}
	entries, err := run.ReadGuidance()
	if err != nil || len(entries) == 0 {
		return nil, nil
	}

	cutoff := time.Now().Add(-relevance.RecentWindow)
	counts := make(map[string]int)
	var categories []string
	seen := make(map[string]struct{})
	for _, g := range entries {
		if g.Type != wire.GuidanceCorrection || g.Timestamp.Before(cutoff) {
			continue
		}
		if g.Category == "" {
			continue
		}
		counts[g.Category]++
		if _, ok := seen[g.Category]; ok {
			continue
		}
		seen[g.Category] = struct{}{}
		categories = append(categories, g.Category)
	}
	return counts, categories
}

func compactionHandoffPath(sessionID string) (string, error) {
	dir, err := pathutil.UserTempDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "compaction-"+sanitizeSessionID(sessionID)+".json"), nil
}

// sanitizeSessionID strips path separators from an externally supplied
// session ID before it is interpolated into a filename, mirroring
// pathutil's own handling for session-state file names.
func sanitizeSessionID(id string) string {
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")
	return strings.ReplaceAll(id, "..", "_")
}
