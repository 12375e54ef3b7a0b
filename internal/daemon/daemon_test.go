package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/config"
	"github.com/marveldaemon/mhd/internal/learned"
	"github.com/marveldaemon/mhd/internal/outcome"
	"github.com/marveldaemon/mhd/internal/rules"
	"github.com/marveldaemon/mhd/internal/security"
	"github.com/marveldaemon/mhd/internal/wire"
)

// noopEvaluator never resolves anything itself; Check falls through to ask.
type noopEvaluator struct{}

func (noopEvaluator) Evaluate(ctx context.Context, root, command, description string) (security.EvalResult, error) {
	return security.EvalResult{Decision: wire.DecisionAsk, RequiresHuman: true}, nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	root := t.TempDir()
	allow, err := rules.Load(filepath.Join(root, "marvel", "security", "allowlist.json"), nil)
	require.NoError(t, err)
	deny, err := rules.Load(filepath.Join(root, "marvel", "security", "denylist.json"), nil)
	require.NoError(t, err)
	store, err := learned.Open(filepath.Join(root, "marvel", "security", "learned.json"))
	require.NoError(t, err)

	cfg := config.Default(root)
	cfg.ShutdownGrace = 20 * time.Millisecond
	return New(root, cfg, allow, deny, store, noopEvaluator{})
}

func TestSessionMultiplexSharesOneRun(t *testing.T) {
	d := newTestDaemon(t)

	run1, err := d.startSession("sess-a")
	require.NoError(t, err)
	require.NotNil(t, run1)

	run2, err := d.startSession("sess-b")
	require.NoError(t, err)
	assert.Same(t, run1, run2, "a second concurrent session-start must reuse the first run")

	assert.Equal(t, 2, d.ActiveSessionCount())
}

func TestEndSessionKeepsRunUntilLastLeaves(t *testing.T) {
	d := newTestDaemon(t)

	_, err := d.startSession("sess-a")
	require.NoError(t, err)
	_, err = d.startSession("sess-b")
	require.NoError(t, err)

	done := make(chan struct{})
	d.endSession("sess-a", func() { close(done) })

	assert.Equal(t, 1, d.ActiveSessionCount())
	select {
	case <-done:
		t.Fatal("shutdown callback must not fire while a session remains active")
	case <-time.After(30 * time.Millisecond):
	}

	d.endSession("sess-b", func() { close(done) })
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("shutdown callback should fire after the grace period once the last session ends")
	}
}

func TestSessionStartReinitializesAfterFullTeardown(t *testing.T) {
	d := newTestDaemon(t)

	run1, err := d.startSession("sess-a")
	require.NoError(t, err)
	d.endSession("sess-a", func() {})

	run2, err := d.startSession("sess-b")
	require.NoError(t, err)
	assert.NotSame(t, run1, run2, "a fresh run should be created once every session has ended")
}

func TestStopCorrelatesOnlyNewInjectionsSinceLastCall(t *testing.T) {
	d := newTestDaemon(t)
	run, err := d.startSession("sess-a")
	require.NoError(t, err)

	run.RecordInjection("a.go", []string{"lesson-1"}, []string{"pack-1"}, map[string]string{"lesson-1": "pack-1"}, nil)

	d.Stop()
	assert.Equal(t, 1, d.lastInjIdx, "first stop should advance the cursor past the one injection recorded so far")

	d.Stop()
	assert.Equal(t, 1, d.lastInjIdx, "a stop with no new injections must not move the cursor backward or reprocess")

	run.RecordInjection("b.go", []string{"lesson-2"}, []string{"pack-1"}, map[string]string{"lesson-2": "pack-1"}, nil)
	d.Stop()
	assert.Equal(t, 2, d.lastInjIdx, "a later stop should only advance by the newly recorded injections")
}

func TestEndSessionCorrelatesTrailingInjections(t *testing.T) {
	d := newTestDaemon(t)
	run, err := d.startSession("sess-a")
	require.NoError(t, err)

	run.RecordInjection("a.go", []string{"lesson-1"}, []string{"pack-1"}, map[string]string{"lesson-1": "pack-1"}, nil)

	done := make(chan struct{})
	d.endSession("sess-a", func() { close(done) })

	injections, err := run.ReadInjections()
	require.NoError(t, err)
	assert.Len(t, injections, 1)
}

func TestCorrelateAndPersistIsIdempotentWithNoNewInjections(t *testing.T) {
	d := newTestDaemon(t)
	run, err := d.startSession("sess-a")
	require.NoError(t, err)

	d.correlateAndPersist(run)
	assert.Equal(t, 0, d.lastInjIdx, "no injections recorded, so the cursor stays at zero")
	d.correlateAndPersist(run)
	assert.Equal(t, 0, d.lastInjIdx, "a second pass with no new injections leaves the cursor where it was")

	calls, err := run.ReadToolCalls()
	require.NoError(t, err)
	assert.Empty(t, calls)
}

// sanity-check that outcome.Correlate itself treats guidance/tool-calls as
// read-only context rather than something that accumulates per call, which
// is what makes passing the full slices on every correlateAndPersist safe.
func TestOutcomeCorrelateIsPureOverItsInputs(t *testing.T) {
	injections := []wire.Injection{{File: "a.go", LessonsInjected: []string{"l1"}, PacksInjected: []string{"p1"}, LessonPack: map[string]string{"l1": "p1"}}}
	first := outcome.Correlate(injections, nil, nil, nil)
	second := outcome.Correlate(injections, nil, nil, nil)
	assert.Equal(t, first, second)
}
