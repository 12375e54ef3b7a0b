package rules

import "github.com/marveldaemon/mhd/internal/wire"

// DefaultAllowlist is used when no allowlist.json is present or it is
// malformed (§4.3 "Loading").
func DefaultAllowlist() []wire.Rule {
	return []wire.Rule{
		{ID: "default-git-status", Type: wire.RulePrefix, Pattern: "git status", Reason: "read-only"},
		{ID: "default-git-diff", Type: wire.RulePrefix, Pattern: "git diff", Reason: "read-only"},
		{ID: "default-git-log", Type: wire.RulePrefix, Pattern: "git log", Reason: "read-only"},
		{ID: "default-ls", Type: wire.RulePrefix, Pattern: "ls", Reason: "read-only"},
		{ID: "default-pwd", Type: wire.RulePrefix, Pattern: "pwd", Reason: "read-only"},
		{ID: "default-echo", Type: wire.RulePrefix, Pattern: "echo", Reason: "no side effects"},
	}
}

// DefaultDenylist is used when no denylist.json is present or it is
// malformed (§4.3 "Loading").
func DefaultDenylist() []wire.Rule {
	return []wire.Rule{
		{ID: "default-rm-rf-root", Type: wire.RuleContains, Pattern: "rm -rf /", Reason: "destroys the filesystem root"},
		{ID: "default-fork-bomb", Type: wire.RuleContains, Pattern: ":(){ :|:& };:", Reason: "fork bomb"},
		{ID: "default-curl-pipe-sh", Type: wire.RuleRegex, Pattern: `curl[^|]*\|\s*sh`, Reason: "pipes untrusted download into a shell"},
		{ID: "default-dd-disk", Type: wire.RulePrefix, Pattern: "dd if=/dev/zero of=/dev/", Reason: "overwrites a block device"},
		{ID: "default-chmod-777-root", Type: wire.RuleContains, Pattern: "chmod -R 777 /", Reason: "removes filesystem permissions wholesale"},
	}
}
