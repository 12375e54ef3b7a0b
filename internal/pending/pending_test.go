package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marveldaemon/mhd/internal/wire"
)

func TestAddAndResolve(t *testing.T) {
	tr := New()
	tr.Add("npm test", wire.PendingDecision{Command: "npm test"})

	d, ok := tr.Resolve("npm test")
	assert.True(t, ok)
	assert.Equal(t, "npm test", d.Command)

	_, ok = tr.Resolve("npm test")
	assert.False(t, ok, "resolve should consume the entry")
}

func TestResolveUnknown(t *testing.T) {
	tr := New()
	_, ok := tr.Resolve("missing")
	assert.False(t, ok)
}

func TestResolveIsKeyedOnNormalizedCommandNotRequestID(t *testing.T) {
	tr := New()
	tr.Add("npm   test", wire.PendingDecision{Command: "npm   test"})

	// A different literal spelling of the same normalized command must
	// still resolve the entry; this is what lets a post-tool-use hook
	// with a different (or absent) request ID than the original
	// pre-tool-use ask still approve the right pending decision.
	d, ok := tr.Resolve("npm test")
	assert.True(t, ok)
	assert.Equal(t, "npm   test", d.Command)
}

func TestLen(t *testing.T) {
	tr := New()
	tr.Add("git status", wire.PendingDecision{})
	tr.Add("npm test", wire.PendingDecision{})
	assert.Equal(t, 2, tr.Len())
}
