// Package rules owns the allowlist and denylist rule sets and matches
// commands against them, including the compound-command asymmetry that
// keeps a safe suffix from laundering a dangerous segment (§4.3).
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/marveldaemon/mhd/internal/cmdparse"
	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/wire"
)

// dangerousRegexMeta rejects a pattern that could exhibit catastrophic
// backtracking or otherwise isn't safely literal-ish (§4.3 "must reject
// obviously dangerous patterns", §4.4 "Regex hardening").
var dangerousRegexMeta = regexp.MustCompile(`(\([^)]*[+*]\)[+*])|(\.\*){2,}`)

// Set holds one loaded rule list (allowlist or denylist).
type Set struct {
	rules []wire.Rule
}

// fileDoc is the on-disk {rules: [...]} shape (§4.3 "Loading").
type fileDoc struct {
	Rules []wire.Rule `json:"rules"`
}

// Load reads a rule file, skipping invalid individual rules with a warning;
// a missing or malformed file falls back to defaults rather than failing
// the whole load (§4.3 "Loading").
func Load(path string, defaults []wire.Rule) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("rule file unreadable, using defaults")
		return &Set{rules: defaults}, nil
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("rule file malformed, using defaults")
		return &Set{rules: defaults}, nil
	}

	var valid []wire.Rule
	seen := map[string]bool{}
	for _, r := range doc.Rules {
		if err := validate(r); err != nil {
			logging.Warn().Err(err).Str("id", r.ID).Msg("skipping invalid rule")
			continue
		}
		if seen[r.ID] {
			logging.Warn().Str("id", r.ID).Msg("skipping duplicate rule id")
			continue
		}
		seen[r.ID] = true
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return &Set{rules: defaults}, nil
	}
	return &Set{rules: valid}, nil
}

func validate(r wire.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.Pattern == "" {
		return fmt.Errorf("missing pattern")
	}
	switch r.Type {
	case wire.RulePrefix, wire.RuleContains, wire.RuleRegex:
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	if r.Type == wire.RuleRegex {
		if dangerousRegexMeta.MatchString(r.Pattern) {
			return fmt.Errorf("regex pattern rejected as dangerous: %q", r.Pattern)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
	}
	return nil
}

// matchOne tests a single rule against a single string.
func matchOne(r wire.Rule, s string) bool {
	switch r.Type {
	case wire.RulePrefix:
		return strings.HasPrefix(s, r.Pattern)
	case wire.RuleContains:
		return strings.Contains(s, r.Pattern)
	case wire.RuleRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return false // malformed regex matches nothing (§4.3)
		}
		return re.MatchString(s)
	}
	return false
}

// MatchCommand tests a rule against the raw command and its normalized
// form. Exported so internal/learned can apply the exact same match
// semantics to learned rules (§4.4 "Matching reuses the same match
// semantics as the static rule sets").
func MatchCommand(r wire.Rule, command string) bool {
	if matchOne(r, strings.TrimSpace(command)) {
		return true
	}
	return matchOne(r, cmdparse.Normalize(command))
}

// matchCommand is the package-local alias used by Set's own methods.
func matchCommand(r wire.Rule, command string) bool {
	return MatchCommand(r, command)
}

// MatchAllowlist requires every segment of a compound command to
// independently match an allowlist rule; it returns the last matched rule
// as the explanation, or nil if any segment fails (§4.3 "Allowlist").
func (s *Set) MatchAllowlist(command string) *wire.Rule {
	segments := cmdparse.Split(command)
	if len(segments) == 0 {
		segments = []string{command}
	}

	var last *wire.Rule
	for _, seg := range segments {
		matched := s.matchFirst(seg)
		if matched == nil {
			return nil
		}
		last = matched
	}
	return last
}

// MatchDenylist returns the first matching rule across the whole command and
// every individual segment — deny-if-any (§4.3 "Denylist"). This asymmetry
// with MatchAllowlist is what prevents `rm -rf / && git status` from being
// allowed by the presence of a safe suffix.
func (s *Set) MatchDenylist(command string) *wire.Rule {
	if r := s.matchFirst(command); r != nil {
		return r
	}
	for _, seg := range cmdparse.Split(command) {
		if r := s.matchFirst(seg); r != nil {
			return r
		}
	}
	return nil
}

func (s *Set) matchFirst(command string) *wire.Rule {
	for i := range s.rules {
		if matchCommand(s.rules[i], command) {
			r := s.rules[i]
			return &r
		}
	}
	return nil
}

// Rules returns the loaded rule list (read-only use, e.g. for diagnostics).
func (s *Set) Rules() []wire.Rule { return s.rules }
