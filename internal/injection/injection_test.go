package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marveldaemon/mhd/internal/relevance"
	"github.com/marveldaemon/mhd/internal/wire"
)

func pack(name string, titles ...string) *wire.Pack {
	p := &wire.Pack{Name: name}
	for _, t := range titles {
		p.Lessons = append(p.Lessons, wire.Lesson{Title: t, Actionable: "do " + t})
	}
	return p
}

func TestFormatBasic(t *testing.T) {
	p := pack("security", "validate-input", "escape-output")
	dedup := NewDedup()
	res := Format("app.ts", []relevance.Result{{Pack: p, Score: 30}}, dedup)

	assert.Contains(t, res.Text, "app.ts")
	assert.Contains(t, res.Text, "validate-input")
	assert.Equal(t, []string{"security"}, res.PacksInjected)
}

func TestFormatDedupSuppressesSecondInjection(t *testing.T) {
	p := pack("security", "validate-input")
	dedup := NewDedup()

	first := Format("a.ts", []relevance.Result{{Pack: p, Score: 30}}, dedup)
	require.NotEmpty(t, first.Text)

	second := Format("b.ts", []relevance.Result{{Pack: p, Score: 30}}, dedup)
	assert.Empty(t, second.Text, "already-injected lesson must be suppressed")
}

func TestFormatCapsPerPackAtThree(t *testing.T) {
	p := pack("p", "a", "b", "c", "d", "e")
	dedup := NewDedup()
	res := Format("x.ts", []relevance.Result{{Pack: p, Score: 30}}, dedup)
	assert.Len(t, res.LessonsInjected, MaxLessonsPerPack)
}

func TestFormatCapsTotalAtTen(t *testing.T) {
	var selected []relevance.Result
	for i := 0; i < 5; i++ {
		p := pack(string(rune('a'+i)), "l1", "l2", "l3")
		selected = append(selected, relevance.Result{Pack: p, Score: 30})
	}
	dedup := NewDedup()
	res := Format("x.ts", selected, dedup)
	assert.LessOrEqual(t, len(res.LessonsInjected), MaxLessonsTotal)
}

func TestDedupClearResetsState(t *testing.T) {
	dedup := NewDedup()
	assert.False(t, dedup.SeenOrMark("p", "l"))
	assert.True(t, dedup.SeenOrMark("p", "l"))
	dedup.Clear()
	assert.False(t, dedup.SeenOrMark("p", "l"))
}
