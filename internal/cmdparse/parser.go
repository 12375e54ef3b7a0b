// Package cmdparse tokenizes compound shell commands the way the bash
// security gate needs: split on top-level control operators, classify
// preamble segments, and extract the single "meaningful" command (§4.2).
//
// Grounded on the teacher's internal/permission/bash_parser.go, which
// already wraps mvdan.cc/sh/v3/syntax for command extraction; this package
// generalizes that single-command extraction into the compound-aware
// splitter and preamble classifier the gate's pipeline requires.
package cmdparse

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Segment is one top-level piece of a compound command.
type Segment struct {
	Raw        string // the segment's original source text
	Executable string
	Args       []string
}

// preambleCommands never count as the "meaningful" command on their own.
var preambleCommands = map[string]bool{
	"cd": true, "pushd": true, "popd": true, "set": true, "shopt": true,
	"source": true, ".": true, "export": true, "unset": true,
	"true": true, "false": true,
}

// isAssignment reports whether a trimmed segment is a bare VAR=value form.
func isAssignment(segment string) bool {
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return false
	}
	eq := strings.IndexByte(fields[0], '=')
	if eq <= 0 {
		return false
	}
	name := fields[0][:eq]
	for i, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	// Only a pure assignment (no following command) counts; "VAR=x cmd" has
	// more fields after the assignment and is not itself preamble.
	return len(fields) == 1
}

// isPreamble classifies a trimmed segment per §4.2 step 3.
func isPreamble(segment string) bool {
	seg := Parse(segment)
	if seg == nil {
		return false
	}
	if preambleCommands[seg.Executable] {
		return true
	}
	return isAssignment(segment)
}

// stripComments drops leading comment and blank lines (§4.2 step 1).
func stripComments(command string) string {
	lines := strings.Split(command, "\n")
	start := 0
	for start < len(lines) {
		t := strings.TrimSpace(lines[start])
		if t == "" || strings.HasPrefix(t, "#") {
			start++
			continue
		}
		break
	}
	return strings.Join(lines[start:], "\n")
}

// Split breaks command into top-level segments on &&, ||, and ;, respecting
// single quotes, double quotes (with backslash escapes), and balanced $()
// subshells. Pipes are not split points (§4.2 step 2).
func Split(command string) []string {
	command = stripComments(command)

	var segments []string
	var cur strings.Builder

	runes := []rune(command)
	i := 0
	n := len(runes)

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			segments = append(segments, s)
		}
		cur.Reset()
	}

	for i < n {
		c := runes[i]
		switch {
		case c == '\'':
			cur.WriteRune(c)
			i++
			for i < n && runes[i] != '\'' {
				cur.WriteRune(runes[i])
				i++
			}
			if i < n {
				cur.WriteRune(runes[i])
				i++
			}
		case c == '"':
			cur.WriteRune(c)
			i++
			for i < n && runes[i] != '"' {
				if runes[i] == '\\' && i+1 < n {
					cur.WriteRune(runes[i])
					i++
				}
				cur.WriteRune(runes[i])
				i++
			}
			if i < n {
				cur.WriteRune(runes[i])
				i++
			}
		case c == '$' && i+1 < n && runes[i+1] == '(':
			depth := 0
			start := i
			for i < n {
				if runes[i] == '(' {
					depth++
				} else if runes[i] == ')' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
				i++
			}
			cur.WriteString(string(runes[start:i]))
		case c == '&' && i+1 < n && runes[i+1] == '&':
			flush()
			i += 2
		case c == '|' && i+1 < n && runes[i+1] == '|':
			flush()
			i += 2
		case c == ';':
			flush()
			i++
		default:
			cur.WriteRune(c)
			i++
		}
	}
	flush()

	return segments
}

// Meaningful returns the first non-preamble segment of a (possibly
// compound) command, or the last segment as a fallback if every segment is
// preamble (§4.2 step 4).
func Meaningful(command string) string {
	segments := Split(command)
	if len(segments) == 0 {
		return strings.TrimSpace(command)
	}
	for _, seg := range segments {
		if !isPreamble(seg) {
			return seg
		}
	}
	return segments[len(segments)-1]
}

// Parse tokenizes a single segment into {raw, executable, args} via
// mvdan.cc/sh/v3/syntax, falling back to whitespace splitting if the parser
// chokes on a fragment (e.g. one side of a pipeline) (§4.2 step 5).
func Parse(segment string) *Segment {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return nil
	}

	p := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))
	file, err := p.Parse(strings.NewReader(trimmed), "")
	if err == nil {
		var words []string
		syntax.Walk(file, func(node syntax.Node) bool {
			if call, ok := node.(*syntax.CallExpr); ok && words == nil {
				for _, w := range call.Args {
					words = append(words, wordToString(w))
				}
			}
			return true
		})
		if len(words) > 0 {
			seg := &Segment{Raw: trimmed, Executable: words[0]}
			if len(words) > 1 {
				seg.Args = words[1:]
			}
			return seg
		}
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil
	}
	return &Segment{Raw: trimmed, Executable: fields[0], Args: fields[1:]}
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
