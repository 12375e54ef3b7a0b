package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchDenylistPrecedence(t *testing.T) {
	set := &Set{rules: DefaultDenylist()}
	r := set.MatchDenylist("git status && rm -rf /")
	require.NotNil(t, r)
	assert.Equal(t, "default-rm-rf-root", r.ID)
}

func TestMatchAllowlistRequiresAllSegments(t *testing.T) {
	set := &Set{rules: DefaultAllowlist()}
	assert.Nil(t, set.MatchAllowlist("git status && rm -rf /"))
	assert.NotNil(t, set.MatchAllowlist("git status && git diff"))
}

func TestLoadFallsBackOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	set, err := Load(filepath.Join(dir, "missing.json"), DefaultDenylist())
	require.NoError(t, err)
	assert.Len(t, set.Rules(), len(DefaultDenylist()))
}

func TestLoadSkipsInvalidRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "denylist.json")
	body := `{"rules": [
		{"id": "ok", "type": "prefix", "pattern": "rm -rf", "reason": "dangerous"},
		{"id": "bad-type", "type": "nope", "pattern": "x", "reason": "y"},
		{"id": "", "type": "prefix", "pattern": "x", "reason": "y"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	set, err := Load(path, DefaultDenylist())
	require.NoError(t, err)
	require.Len(t, set.Rules(), 1)
	assert.Equal(t, "ok", set.Rules()[0].ID)
}
