// Package registry tracks subagent lifecycles and teammate presence per
// session, swept by age rather than reachability (§4.11, §9).
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/wire"
)

type sessionBucket struct {
	agents    map[string]*wire.AgentEntry
	teammates map[string]string // name -> team
}

// Registry is the per-daemon, session-scoped agent/teammate lifecycle
// tracker (§3 "Agent entry", §4.11).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionBucket
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*sessionBucket)}
}

func (r *Registry) bucket(session string) *sessionBucket {
	b, ok := r.sessions[session]
	if !ok {
		b = &sessionBucket{agents: make(map[string]*wire.AgentEntry), teammates: make(map[string]string)}
		r.sessions[session] = b
	}
	return b
}

// Register records a newly launched agent as running.
func (r *Registry) Register(session, agentID, agentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(session).agents[agentID] = &wire.AgentEntry{
		ID: agentID, AgentType: agentType, SessionID: session,
		Status: wire.AgentRunning, LaunchTime: time.Now(),
	}
}

// Complete marks an agent completed with an optional transcript path.
func (r *Registry) Complete(session, agentID, transcriptPath, resultSummary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bucket(session).agents[agentID]
	if !ok {
		return
	}
	now := time.Now()
	e.Status = wire.AgentCompleted
	e.CompletedTime = &now
	e.TranscriptPath = transcriptPath
	e.ResultSummary = resultSummary
}

// Error marks an agent errored with a message.
func (r *Registry) Error(session, agentID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bucket(session).agents[agentID]
	if !ok {
		return
	}
	now := time.Now()
	e.Status = wire.AgentErrored
	e.CompletedTime = &now
	e.ErrorMessage = msg
}

// List returns every agent entry for a session.
func (r *Registry) List(session string) []*wire.AgentEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[session]
	if !ok {
		return nil
	}
	out := make([]*wire.AgentEntry, 0, len(b.agents))
	for _, e := range b.agents {
		out = append(out, e)
	}
	return out
}

// TrackTeammate records that name is present on team for session.
func (r *Registry) TrackTeammate(session, name, team string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(session).teammates[name] = team
}

// GetTeam returns the teammates tracked for a session as name->team.
func (r *Registry) GetTeam(session string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[session]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(b.teammates))
	for k, v := range b.teammates {
		out[k] = v
	}
	return out
}

// ClearSession drops all state for a session (called on session-end).
func (r *Registry) ClearSession(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, session)
}

// Sweep removes agent entries older than wire.AgentTTL (measured from
// CompletedTime if set, else LaunchTime) and drops sessions left with no
// agents and no teammates (§4.11 "Background sweeper").
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for session, b := range r.sessions {
		for id, e := range b.agents {
			age := now.Sub(e.LaunchTime)
			if e.CompletedTime != nil {
				age = now.Sub(*e.CompletedTime)
			}
			if age > wire.AgentTTL {
				delete(b.agents, id)
				removed++
			}
		}
		if len(b.agents) == 0 && len(b.teammates) == 0 {
			delete(r.sessions, session)
		}
	}
	return removed
}

// handoffDoc is the on-disk shape written before compaction (§4.11
// "Compaction handoff").
type handoffDoc struct {
	Agents []*wire.AgentEntry `json:"agents"`
}

// SerializeForCompaction writes the session's current agent list to path
// so a post-compaction handler can recover it even across a daemon
// restart (§4.11).
func (r *Registry) SerializeForCompaction(session, path string) error {
	agents := r.List(session)
	return pathutil.WriteJSONAtomic(path, handoffDoc{Agents: agents}, 0o600)
}

// maxSummaryLen bounds the post-compaction summary text (§4.11).
const maxSummaryLen = 2000

// Summarize builds the tabular post-compaction summary, reading the
// in-memory registry first and falling back to the handoff file if the
// session has no in-memory entries (daemon-restart case). The handoff
// file is unlinked regardless of which source was used (§4.11).
func (r *Registry) Summarize(session, handoffPath string) string {
	agents := r.List(session)
	if len(agents) == 0 {
		var doc handoffDoc
		if err := pathutil.ReadJSON(handoffPath, &doc); err == nil {
			agents = doc.Agents
		}
	}
	defer func() {
		if err := removeIfExists(handoffPath); err != nil {
			logging.Warn().Err(err).Str("path", handoffPath).Msg("failed to unlink compaction handoff file")
		}
	}()

	if len(agents) == 0 {
		return "No subagents were active."
	}

	var b strings.Builder
	b.WriteString("| ID | Type | Status | Result |\n|---|---|---|---|\n")
	for _, e := range agents {
		result := e.ResultSummary
		if e.Status == wire.AgentErrored {
			result = e.ErrorMessage
		}
		line := fmt.Sprintf("| %s | %s | %s | %s |\n", e.ID, e.AgentType, e.Status, result)
		if b.Len()+len(line) > maxSummaryLen {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	return pathutil.RemoveIfExists(path)
}
