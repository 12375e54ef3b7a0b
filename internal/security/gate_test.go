package security

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/learned"
	"github.com/marveldaemon/mhd/internal/pending"
	"github.com/marveldaemon/mhd/internal/rules"
	"github.com/marveldaemon/mhd/internal/wire"
)

func newGate(t *testing.T, eval Evaluator) *Gate {
	t.Helper()
	store, err := learned.Open(filepath.Join(t.TempDir(), "learned.json"))
	require.NoError(t, err)
	allowSet, err := rules.Load(filepath.Join(t.TempDir(), "missing.json"), rules.DefaultAllowlist())
	require.NoError(t, err)
	denySet, err := rules.Load(filepath.Join(t.TempDir(), "missing2.json"), rules.DefaultDenylist())
	require.NoError(t, err)
	return New("/proj", allowSet, denySet, store, pending.New(), eval)
}

func TestCheckDenylistWinsOverLearnedAndAllowlist(t *testing.T) {
	g := newGate(t, nil)
	v, err := g.Check(context.Background(), "req-1", "git status && rm -rf /", "")
	require.NoError(t, err)
	assert.Equal(t, wire.DecisionDeny, v.Decision)
	assert.Equal(t, "denylist", v.Layer)
}

func TestCheckAllowlistMatch(t *testing.T) {
	g := newGate(t, nil)
	v, err := g.Check(context.Background(), "req-1", "git status", "")
	require.NoError(t, err)
	assert.Equal(t, wire.DecisionAllow, v.Decision)
	assert.Equal(t, "allowlist", v.Layer)
}

func TestCheckFallsBackToAskWithoutEvaluator(t *testing.T) {
	g := newGate(t, nil)
	v, err := g.Check(context.Background(), "req-1", "npm test", "run tests")
	require.NoError(t, err)
	assert.Equal(t, wire.DecisionAsk, v.Decision)
	assert.Equal(t, "req-1", v.RequestID)
}

type fakeEvaluator struct {
	result EvalResult
	err    error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, root, command, description string) (EvalResult, error) {
	return f.result, f.err
}

func TestCheckEvaluatorAllow(t *testing.T) {
	g := newGate(t, &fakeEvaluator{result: EvalResult{Decision: wire.DecisionAllow, Reason: "looks safe"}})
	v, err := g.Check(context.Background(), "req-1", "npm test", "")
	require.NoError(t, err)
	assert.Equal(t, wire.DecisionAllow, v.Decision)
	assert.Equal(t, "evaluator", v.Layer)
}

func TestApproveLearnsSafePattern(t *testing.T) {
	g := newGate(t, nil)
	v, err := g.Check(context.Background(), "req-1", "npm test", "run tests")
	require.NoError(t, err)
	require.Equal(t, wire.DecisionAsk, v.Decision)

	lr, err := g.Approve("npm test", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, lr)
	assert.Equal(t, "npm test", lr.Pattern)

	v2, err := g.Check(context.Background(), "req-2", "npm test --watch", "")
	require.NoError(t, err)
	assert.Equal(t, wire.DecisionAllow, v2.Decision)
	assert.Equal(t, "learned", v2.Layer)
}

func TestApproveResolvesByNormalizedCommandNotRequestID(t *testing.T) {
	g := newGate(t, nil)
	// pre-tool-use asks under one request ID...
	v, err := g.Check(context.Background(), "req-pretool-1", "npm test", "run tests")
	require.NoError(t, err)
	require.Equal(t, wire.DecisionAsk, v.Decision)

	// ...and post-tool-use reports a different request ID for the same
	// command, as an external dispatcher issuing a fresh ID per hook call
	// would. Approve must still resolve it since it's keyed on command.
	lr, err := g.Approve("npm test", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, lr)
}

func TestDenyConsumesPendingWithoutLearning(t *testing.T) {
	g := newGate(t, nil)
	_, err := g.Check(context.Background(), "req-1", "npm test", "")
	require.NoError(t, err)

	require.NoError(t, g.Deny("npm test"))
	err = g.Deny("npm test")
	assert.Error(t, err, "second deny should fail, decision already consumed")
}
