package mergegate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/sessionstate"
)

func newManager(t *testing.T) *sessionstate.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	m, err := sessionstate.Load(path, "sess-1")
	require.NoError(t, err)
	return m
}

func TestMergeBlockedWithoutReadiness(t *testing.T) {
	m := newManager(t)
	v := Check("git merge origin/main", m)
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Reason, "lint")
}

func TestMergeAllowedWhenReady(t *testing.T) {
	m := newManager(t)
	m.ObserveCommand("golangci-lint run")
	m.ObserveCommand("go test ./...")
	m.ObserveCommand("tsc --noEmit")

	v := Check("gh pr merge 42", m)
	assert.False(t, v.Blocked)
}

func TestCommitWarnsWithoutLint(t *testing.T) {
	m := newManager(t)
	v := Check("git commit -m wip", m)
	assert.False(t, v.Blocked)
	assert.NotEmpty(t, v.Warning)
}

func TestCommitNotGatedOnTest(t *testing.T) {
	m := newManager(t)
	m.ObserveCommand("golangci-lint run")
	m.ObserveCommand("tsc --noEmit")

	v := Check("git push origin main", m)
	assert.Empty(t, v.Warning)
}

func TestUnrelatedCommandUngated(t *testing.T) {
	m := newManager(t)
	v := Check("npm install", m)
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Warning)
}
