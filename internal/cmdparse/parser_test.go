package cmdparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "git status", []string{"git status"}},
		{"and_and", "git status && rm -rf /", []string{"git status", "rm -rf /"}},
		{"semicolon", "echo a; echo b", []string{"echo a", "echo b"}},
		{"pipe_not_split", "ps aux | grep foo", []string{"ps aux | grep foo"}},
		{"quoted_and", `echo "a && b"`, []string{`echo "a && b"`}},
		{"subshell", "echo $(echo a && echo b)", []string{"echo $(echo a && echo b)"}},
		{"comment_stripped", "# a comment\ngit status", []string{"git status"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Split(tc.in))
		})
	}
}

func TestMeaningful(t *testing.T) {
	assert.Equal(t, "npm test", Meaningful("cd backend && npm test"))
	assert.Equal(t, "true", Meaningful("true"))
	assert.Equal(t, "FOO=bar git status", Meaningful("FOO=bar git status"))
}

func TestParse(t *testing.T) {
	seg := Parse("git commit -m 'fix bug'")
	require.NotNil(t, seg)
	assert.Equal(t, "git", seg.Executable)
	assert.Equal(t, []string{"commit", "-m", "fix bug"}, seg.Args)
}

func TestNormalizeIdempotent(t *testing.T) {
	cmds := []string{
		"cd backend && npm test 2>/dev/null",
		"FOO=1 BAR=2 git status",
		"pnpm --filter @app/web build",
		"ls    -la",
	}
	for _, c := range cmds {
		once := Normalize(c)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "normalize not idempotent for %q", c)
	}
}

func TestRelativeToRoot(t *testing.T) {
	assert.Equal(t, "src/main.go", RelativeToRoot("/proj", "/proj/src/main.go"))
	assert.Equal(t, "/other/file", RelativeToRoot("/proj", "/other/file"))
}
