package cmdparse

import (
	"path/filepath"
	"regexp"
	"strings"
)

// RelativeToRoot rewrites an absolute path that starts with root into the
// project-relative remainder; paths outside root pass through unchanged
// (§4.2 "Path normalization").
func RelativeToRoot(root, path string) string {
	root = filepath.Clean(root)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) && path != root {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

var (
	leadingCD        = regexp.MustCompile(`^cd\s+\S+\s*&&\s*`)
	leadingAssign    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*=\S+\s+)+`)
	trailingDevNull  = regexp.MustCompile(`\s*2>/dev/null\s*$`)
	trailingDevNull2 = regexp.MustCompile(`\s*>\s*/dev/null\s+2>&1\s*$`)
	trailingEcho     = regexp.MustCompile(`\s*;\s*echo\s+.*$`)
	pnpmFilter       = regexp.MustCompile(`^pnpm\s+--filter\s+\S+\s+`)
)

// Normalize collapses a command into the canonical form used for rule
// matching and pending-decision keys: strip a leading "cd path &&", leading
// VAR=value assignments, trailing redirection/echo noise, and a pnpm
// --filter prefix, then collapse whitespace (§4.3 "Matching rules", §3
// "Pending decision").
func Normalize(command string) string {
	s := command
	s = leadingCD.ReplaceAllString(s, "")
	s = leadingAssign.ReplaceAllString(s, "")
	s = trailingDevNull.ReplaceAllString(s, "")
	s = trailingDevNull2.ReplaceAllString(s, "")
	s = trailingEcho.ReplaceAllString(s, "")
	s = pnpmFilter.ReplaceAllString(s, "")
	return collapseWhitespace(s)
}

// collapseWhitespace trims and collapses runs of whitespace to single
// spaces — Normalize is idempotent because this is its final step and is
// itself idempotent (§8 "Command normalization is idempotent").
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
