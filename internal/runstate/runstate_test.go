package runstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/wire"
)

func wireGuidance(kind wire.GuidanceType, content string) wire.Guidance {
	return wire.Guidance{ID: "g-" + content, Timestamp: time.Now(), Type: kind, Content: content}
}

func TestToolCallCountMatchesRecords(t *testing.T) {
	dir := t.TempDir()
	run, err := New(dir, "run_1")
	require.NoError(t, err)

	run.RecordToolCall("Bash", "git status", "clean", true)
	run.RecordToolCall("Edit", "app.ts", "ok", true)

	calls, err := run.ReadToolCalls()
	require.NoError(t, err)
	assert.Len(t, calls, 2)
	assert.Equal(t, len(calls), run.State().ToolCallCount)
}

func TestRecordInjectionUpdatesActivePacks(t *testing.T) {
	dir := t.TempDir()
	run, err := New(dir, "run_1")
	require.NoError(t, err)

	run.RecordInjection("app.ts", []string{"lesson-a"}, []string{"security"}, map[string]string{"lesson-a": "security"}, map[string]float64{"security": 30})
	assert.Contains(t, run.State().ActivePacks, "security")
	require.NotNil(t, run.State().LastInjection)
	assert.Equal(t, "app.ts", run.State().LastInjection.File)
}

func TestRecordGuidanceTracksCorrectionCount(t *testing.T) {
	dir := t.TempDir()
	run, err := New(dir, "run_1")
	require.NoError(t, err)

	run.RecordGuidance(wireGuidance(wire.GuidanceCorrection, "fix this"))
	run.RecordGuidance(wireGuidance(wire.GuidanceCorrection, "and this"))

	assert.Equal(t, 2, run.State().CorrectionCount)
}

func TestPersistedFileMatchesState(t *testing.T) {
	dir := t.TempDir()
	run, err := New(dir, "run_1")
	require.NoError(t, err)
	run.RecordToolCall("Bash", "x", "y", true)

	assert.FileExists(t, filepath.Join(dir, "run.json"))
	assert.FileExists(t, filepath.Join(dir, "tool_calls.jsonl"))
}
