package learned

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/wire"
)

func TestSafeRejectsAlwaysDangerous(t *testing.T) {
	assert.False(t, Safe("sudo rm -rf /tmp/x", "sudo"))
}

func TestSafeRejectsBareSubcommandExecutable(t *testing.T) {
	assert.False(t, Safe("git status", "git"))
}

func TestSafeRejectsDangerousGit(t *testing.T) {
	assert.False(t, Safe("git push --force origin main", "git push"))
	assert.False(t, Safe("git reset --hard HEAD~1", "git reset"))
}

func TestSafeAcceptsOrdinaryPattern(t *testing.T) {
	assert.True(t, Safe("npm test", "npm test"))
}

func TestSafeRejectsShortPattern(t *testing.T) {
	assert.False(t, Safe("ls", "ls"))
}

func TestExtractSubcommand(t *testing.T) {
	assert.Equal(t, "git commit", Extract("/proj", "git commit -m 'x'"))
	assert.Equal(t, "node -e", Extract("/proj", "node -e 'console.log(1)'"))
}

func TestExtractDirectory(t *testing.T) {
	assert.Equal(t, "rm scripts/", Extract("/proj", "rm /proj/scripts/build.sh"))
}

func TestStoreLearnIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learned.json")
	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Learn("npm test", wire.RulePrefix, "approved previously", "npm test", "sess-1")
	require.NoError(t, err)
	_, err = store.Learn("npm test", wire.RulePrefix, "approved previously", "npm test", "sess-2")
	require.NoError(t, err)

	assert.Len(t, store.All(), 1)
}

func TestStoreMatchAfterReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learned.json")
	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Learn("npm run build", wire.RulePrefix, "approved", "npm run build", "sess-1")
	require.NoError(t, err)

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.Match("npm run build --verbose"))
}
