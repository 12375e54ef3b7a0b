// Package learned owns the session-local and persistent learned-rule
// store: pattern extraction from an approved command, the safety check
// that keeps the store from ever widening the blast radius, and matching
// against both raw and normalized command forms (§4.4).
package learned

import (
	"strings"

	"github.com/marveldaemon/mhd/internal/cmdparse"
)

// alwaysDangerous commands can never be learned as a bare pattern (§4.4).
var alwaysDangerous = map[string]bool{
	"sudo": true, "su": true, "doas": true,
}

// requiresSubcommand commands may not be learned as the bare executable
// alone — the pattern must include a subcommand (§4.4).
var requiresSubcommand = map[string]bool{
	"git": true, "docker": true, "kubectl": true, "npm": true, "pnpm": true,
	"yarn": true, "cargo": true, "go": true, "gh": true, "aws": true,
	"gcloud": true, "terraform": true,
}

// vcsRefusal names a version-control subcommand (with its destructive flag
// shape) that must never be learned; dangerousVCS lists them (§4.4).
type vcsRefusal struct {
	subcommand string
	flagSubstr string // if non-empty, only refuse when this substring is present
}

var dangerousVCS = []vcsRefusal{
	{subcommand: "push", flagSubstr: "--force"},
	{subcommand: "push", flagSubstr: "-f"},
	{subcommand: "reset", flagSubstr: "--hard"},
	{subcommand: "clean"},
	{subcommand: "branch", flagSubstr: "-D"},
	{subcommand: "branch", flagSubstr: "--delete --force"},
	{subcommand: "stash", flagSubstr: "drop"},
	{subcommand: "checkout", flagSubstr: "--"},
	{subcommand: "restore"},
}

// MinPatternLength is the minimum acceptable pattern length (§4.4).
const MinPatternLength = 5

// Safe reports whether the pattern extracted (or suggested) for command is
// safe to persist as a learned rule (§4.4 "Safety check"). All conditions
// must pass.
func Safe(command, pattern string) bool {
	seg := cmdparse.Parse(cmdparse.Meaningful(command))
	if seg == nil {
		return false
	}

	if alwaysDangerous[seg.Executable] {
		return false
	}

	if len(pattern) < MinPatternLength {
		return false
	}

	if requiresSubcommand[seg.Executable] && strings.TrimSpace(pattern) == seg.Executable {
		return false
	}

	if seg.Executable == "git" && isDangerousGit(seg.Args) {
		return false
	}

	if isBareAssignment(cmdparse.Meaningful(command)) {
		return false
	}

	return true
}

func isDangerousGit(args []string) bool {
	if len(args) == 0 {
		return false
	}
	sub := args[0]
	rest := strings.Join(args[1:], " ")
	for _, d := range dangerousVCS {
		if d.subcommand != sub {
			continue
		}
		if d.flagSubstr == "" {
			return true
		}
		if strings.Contains(rest, d.flagSubstr) {
			return true
		}
	}
	return false
}

func isBareAssignment(segment string) bool {
	fields := strings.Fields(segment)
	if len(fields) != 1 {
		return false
	}
	eq := strings.IndexByte(fields[0], '=')
	return eq > 0
}

// flagSubcommandExes map an executable + its "run inline code" flag to the
// pattern "<exe> <flag>" extraction rule (§4.4 "Pattern extraction").
var flagSubcommandExes = map[string][]string{
	"node":   {"-e", "--eval"},
	"python":  {"-c", "-m"},
	"python3": {"-c", "-m"},
	"ruby":    {"-e"},
	"perl":    {"-e"},
}

// subcommandPrefixingExes list executables whose pattern is "<exe> <subcmd>".
var subcommandPrefixingExes = map[string]bool{
	"git": true, "docker": true, "kubectl": true, "npm": true, "pnpm": true,
	"yarn": true, "cargo": true, "go": true, "gh": true, "aws": true,
	"gcloud": true, "terraform": true, "brew": true, "systemctl": true,
}

// Extract derives a learned-rule pattern from a command's meaningful
// segment when no evaluator hint is available (§4.4 "Pattern extraction").
func Extract(root, command string) string {
	seg := cmdparse.Parse(cmdparse.Meaningful(command))
	if seg == nil {
		return ""
	}

	if flags, ok := flagSubcommandExes[seg.Executable]; ok && len(seg.Args) > 0 {
		for _, f := range flags {
			if seg.Args[0] == f {
				return seg.Executable + " " + f
			}
		}
	}

	if subcommandPrefixingExes[seg.Executable] && len(seg.Args) > 0 {
		return seg.Executable + " " + seg.Args[0]
	}

	if len(seg.Args) > 0 {
		p := seg.Args[0]
		if !strings.HasPrefix(p, "-") {
			rel := cmdparse.RelativeToRoot(root, p)
			if dir := firstDir(rel); dir != "" {
				return seg.Executable + " " + dir + "/"
			}
		}
	}

	return seg.Executable
}

func firstDir(path string) string {
	path = strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(path, '/')
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
