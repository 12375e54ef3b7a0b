// Package sessionstate tracks per-session pre-commit/merge readiness
// flags, persisted one file per session (§4.10, §3 "Session state").
package sessionstate

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/wire"
)

// detectors match a bash command against one of the four check kinds,
// covering both single-package and workspace-wide invocation shapes
// (§4.10 "Detection").
var detectors = map[string]*regexp.Regexp{
	"lint":      regexp.MustCompile(`\b(eslint|golangci-lint|ruff|flake8)\b|\b(npm|pnpm|yarn)\s+(run\s+)?lint\b`),
	"test":      regexp.MustCompile(`\bgo\s+test\b|\bpytest\b|\bjest\b|\bvitest\b|\b(npm|pnpm|yarn)\s+(run\s+)?test\b`),
	"build":     regexp.MustCompile(`\bgo\s+build\b|\b(npm|pnpm|yarn)\s+(run\s+)?build\b|\bmake\s+build\b`),
	"typecheck": regexp.MustCompile(`\btsc\b|\bmypy\b|\b(npm|pnpm|yarn)\s+(run\s+)?(typecheck|type-check)\b`),
}

// sourceExtensions invalidate lint/typecheck/test on a successful edit
// (§4.10 "Invalidation").
var sourceExtensions = map[string]bool{
	"ts": true, "tsx": true, "js": true, "jsx": true, "go": true,
	"py": true, "rb": true, "java": true, "rs": true,
}

// Manager owns one session's readiness state and its persistence path.
type Manager struct {
	mu    sync.Mutex
	path  string
	state wire.SessionState
}

// Load reads (or initializes) the session-state file for sessionID. A
// file whose sessionId doesn't match is discarded (§4.10 "Persistence").
func Load(path, sessionID string) (*Manager, error) {
	m := &Manager{path: path}
	var s wire.SessionState
	if err := pathutil.ReadJSON(path, &s); err == nil && s.SessionID == sessionID {
		m.state = s
		return m, nil
	}
	now := time.Now()
	m.state = wire.SessionState{SessionID: sessionID, StartedAt: now, LastUpdated: now}
	return m, nil
}

// ObserveCommand matches a post-tool-use bash command against the four
// detectors, setting the corresponding flag and timestamp on a match.
func (m *Manager) ObserveCommand(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	lower := strings.ToLower(command)
	changed := false
	if detectors["lint"].MatchString(lower) {
		m.state.PreCommit.LintPassed, m.state.PreCommit.LintAt = true, &now
		changed = true
	}
	if detectors["test"].MatchString(lower) {
		m.state.PreCommit.TestPassed, m.state.PreCommit.TestAt = true, &now
		changed = true
	}
	if detectors["build"].MatchString(lower) {
		m.state.PreCommit.BuildPassed, m.state.PreCommit.BuildAt = true, &now
		changed = true
	}
	if detectors["typecheck"].MatchString(lower) {
		m.state.PreCommit.TypecheckPassed, m.state.PreCommit.TypecheckAt = true, &now
		changed = true
	}
	if changed {
		m.state.LastUpdated = now
		m.persistLocked()
	}
}

// ObserveEdit invalidates lint/typecheck/test when a source file was
// successfully edited or written (§4.10 "Invalidation"); build is left
// untouched.
func (m *Manager) ObserveEdit(path string) {
	ext := extensionOf(path)
	if !sourceExtensions[ext] {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PreCommit.LintPassed = false
	m.state.PreCommit.TypecheckPassed = false
	m.state.PreCommit.TestPassed = false
	m.state.LastUpdated = time.Now()
	m.persistLocked()
}

func extensionOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

// Readiness is the result of a pre-commit or merge gate query.
type Readiness struct {
	Ready   bool
	Missing []string
}

// CheckPreCommit reports readiness for a commit: lint and typecheck must
// have passed (§4.10).
func (m *Manager) CheckPreCommit() Readiness {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	if !m.state.PreCommit.LintPassed {
		missing = append(missing, "lint")
	}
	if !m.state.PreCommit.TypecheckPassed {
		missing = append(missing, "typecheck")
	}
	return Readiness{Ready: len(missing) == 0, Missing: missing}
}

// CheckMerge reports readiness for a merge: lint, typecheck, and test must
// have passed (§4.10).
func (m *Manager) CheckMerge() Readiness {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	if !m.state.PreCommit.LintPassed {
		missing = append(missing, "lint")
	}
	if !m.state.PreCommit.TypecheckPassed {
		missing = append(missing, "typecheck")
	}
	if !m.state.PreCommit.TestPassed {
		missing = append(missing, "test")
	}
	return Readiness{Ready: len(missing) == 0, Missing: missing}
}

func (m *Manager) persistLocked() {
	if err := pathutil.WriteJSONAtomic(m.path, m.state, 0o600); err != nil {
		logging.Warn().Err(err).Str("path", m.path).Msg("failed to persist session state")
	}
}
