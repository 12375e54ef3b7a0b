package learned

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/rules"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Store is the in-memory, mutex-guarded learned-rule cache backed by a
// single {"rules": [...]} JSON document on disk, which is rewritten whole
// and atomically on every Learn; no append-only log of rules is kept
// (§4.4 "Persistence", §5 sharing discipline: single-writer JSON file,
// coarse lock around the in-memory list).
type Store struct {
	mu    sync.RWMutex
	path  string
	rules []wire.LearnedRule
}

type fileDoc struct {
	Rules []wire.LearnedRule `json:"rules"`
}

// Open loads the learned-rule file at path, or starts empty if it does not
// exist yet (§4.4 "the learned store starts empty for a new project").
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	var doc fileDoc
	if err := pathutil.ReadJSON(path, &doc); err != nil {
		logging.Debug().Str("path", path).Msg("no learned-rule file yet, starting empty")
		return s, nil
	}
	s.rules = doc.Rules
	return s, nil
}

// All returns a snapshot of the current learned rules.
func (s *Store) All() []wire.LearnedRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wire.LearnedRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Match checks the learned rules the same way rules.Set does: prefix,
// contains, or regex against the raw and normalized command (§4.4 "Matching
// reuses the same match semantics as the static rule sets").
func (s *Store) Match(command string) *wire.LearnedRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.rules {
		r := s.rules[i].Rule
		if rules.MatchCommand(r, command) {
			found := s.rules[i]
			return &found
		}
	}
	return nil
}

// Learn appends a new learned rule if one with the same pattern doesn't
// already exist, persisting atomically (§4.4 "Learning a rule"). Safety
// must already have been checked by the caller via Safe().
func (s *Store) Learn(pattern string, ruleType wire.RuleType, reason, approvedCommand, sessionID string) (wire.LearnedRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.Type == ruleType && r.Pattern == pattern {
			return r, nil // already known, no-op (§4.4 idempotent learning)
		}
	}

	lr := wire.LearnedRule{
		Rule: wire.Rule{
			ID:      "learned-" + uuid.NewString(),
			Type:    ruleType,
			Pattern: pattern,
			Reason:  reason,
		},
		LearnedAt:       time.Now(),
		ApprovedCommand: approvedCommand,
		SessionID:       sessionID,
	}
	s.rules = append(s.rules, lr)

	if err := s.persistLocked(); err != nil {
		return lr, err
	}
	return lr, nil
}

func (s *Store) persistLocked() error {
	doc := fileDoc{Rules: s.rules}
	return pathutil.WriteJSONAtomic(s.path, doc, 0o600)
}

// MarshalSnapshot is a convenience for diagnostics/status commands.
func (s *Store) MarshalSnapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(fileDoc{Rules: s.rules}, "", "  ")
}
