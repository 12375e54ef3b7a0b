package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marveldaemon/mhd/internal/wire"
)

func TestScoreExcludesPathForcesZero(t *testing.T) {
	p := &wire.Pack{
		Name:           "p",
		References:     wire.References{CodePaths: []string{"src/"}},
		ExcludesPaths:  []string{"node_modules/"},
	}
	r := Score(Input{Pack: p, FilePath: "/proj/node_modules/foo/src/index.ts"})
	assert.Equal(t, 0.0, r.Score)
}

func TestScoreExtensionOnly(t *testing.T) {
	p := &wire.Pack{Name: "p", AppliesTo: wire.AppliesTo{Extensions: []string{"ts"}}}
	r := Score(Input{Pack: p, FilePath: "/proj/src/app.ts"})
	assert.Equal(t, weightExtension, r.Score)
	assert.False(t, r.Strong)
}

func TestScoreSensitivePathGlob(t *testing.T) {
	p := &wire.Pack{Name: "p", SensitivePaths: []string{"**/.env"}}
	r := Score(Input{Pack: p, FilePath: "proj/config/.env"})
	assert.Equal(t, weightSensitivePath, r.Score)
	assert.True(t, r.Strong)
}

func TestScoreRecentCorrectionCapped(t *testing.T) {
	p := &wire.Pack{Name: "p"}
	r := Score(Input{Pack: p, FilePath: "x.go", RecentCorrectionCount: 10})
	assert.Equal(t, weightRecentCorrection*3, r.Score)
}

func TestSelectBoundaryThresholds(t *testing.T) {
	strongPack := &wire.Pack{Name: "strong", References: wire.References{CodePaths: []string{"src/"}}}
	weakPackAt21 := &wire.Pack{Name: "weak21", Categories: []string{"security"}, AppliesTo: wire.AppliesTo{Extensions: []string{"ts"}}}
	weakPackAt13 := &wire.Pack{Name: "weak13", Categories: []string{"security"}, AppliesTo: wire.AppliesTo{Extensions: []string{"ts"}}}
	inputs := []Input{
		// code path only: 15, strong, clears StrongThreshold (10)
		{Pack: strongPack, FilePath: "src/auth/login.ts"},
		// extension 5 + category alignment 8 + path keyword 8 = 21, clears WeakThreshold (20)
		{Pack: weakPackAt21, FilePath: "src/auth/login.ts", RecentGuidanceCategories: []string{"security"}},
		// extension 5 + path keyword 8 = 13, below WeakThreshold
		{Pack: weakPackAt13, FilePath: "src/auth/login.ts"},
	}
	results := Select(inputs)
	assert.Len(t, results, 2)
	var names []string
	for _, r := range results {
		names = append(names, r.Pack.Name)
	}
	assert.Equal(t, []string{"weak21", "strong"}, names)
}

func TestSelectCapsAtFour(t *testing.T) {
	var inputs []Input
	for i := 0; i < 6; i++ {
		p := &wire.Pack{Name: "p", References: wire.References{CodePaths: []string{"src/"}}}
		inputs = append(inputs, Input{Pack: p, FilePath: "src/app.ts"})
	}
	assert.LessOrEqual(t, len(Select(inputs)), MaxSelected)
}
