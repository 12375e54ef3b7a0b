// Package relevance scores knowledge packs against a target file using the
// weighted signals of §4.8 and selects the packs to inject.
package relevance

import (
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/marveldaemon/mhd/internal/packs"
	"github.com/marveldaemon/mhd/internal/wire"
)

const (
	weightExtension       = 5.0
	weightCodePath        = 15.0
	weightSensitivePath   = 20.0
	weightRecentCorrection = 20.0
	maxRecentCorrectionK  = 3
	weightCategoryAlign   = 8.0
	weightPathKeyword     = 8.0

	// StrongThreshold/WeakThreshold select packs (§4.8 "Thresholds").
	StrongThreshold = 10.0
	WeakThreshold   = 20.0

	// RecentWindow bounds what guidance counts as "recent" (§4.8).
	RecentWindow = 30 * time.Minute

	// MaxSelected is the top-k cap on selected packs (§4.8).
	MaxSelected = 4
)

// pathKeywordCategory maps a path keyword to the category it implies
// (§4.8 "Path keyword → category").
var pathKeywordCategory = map[string]string{
	"test":      "testing",
	"spec":      "testing",
	"auth":      "security",
	"middleware": "security",
	"config":    "configuration",
	"env":       "configuration",
	"schema":    "data",
	"migration": "data",
}

// RecentGuidance is the slice of signals the caller supplies for scoring;
// kept narrow so relevance doesn't need to know about session-state
// internals.
type RecentGuidance struct {
	Category string
	Recent   bool // true if within RecentWindow
}

// Input is what Score needs to weigh one pack against one file (§4.8
// "Scoring signals"). RecentCorrectionCount is the number of recent
// guidance entries of type correction with a category in Pack.Categories;
// the caller passes it uncapped and Score clamps it to 3.
type Input struct {
	Pack                   *wire.Pack
	FilePath               string
	RecentCorrectionCount  int
	RecentGuidanceCategories []string
}

// Result is one pack's scored outcome.
type Result struct {
	Pack  *wire.Pack
	Score float64
	Strong bool
}

// Score computes relevance(p, f) per §4.8, including the exclusion rule
// (excludes_paths forces 0 regardless of any other signal).
func Score(in Input) Result {
	p := in.Pack

	for _, excl := range p.ExcludesPaths {
		if strings.Contains(in.FilePath, excl) {
			return Result{Pack: p, Score: 0, Strong: false}
		}
	}

	var score float64
	strong := false

	ext := packs.ExtensionOf(in.FilePath)
	for _, e := range p.AppliesTo.Extensions {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			score += weightExtension
			break
		}
	}

	for _, cp := range p.References.CodePaths {
		if cp != "" && strings.Contains(in.FilePath, cp) {
			score += weightCodePath
			strong = true
			break
		}
	}

	for _, sp := range p.SensitivePaths {
		ok, _ := doublestar.Match(sp, in.FilePath)
		if ok {
			score += weightSensitivePath
			strong = true
			break
		}
	}

	k := in.RecentCorrectionCount
	if k > maxRecentCorrectionK {
		k = maxRecentCorrectionK
	}
	if k > 0 {
		score += weightRecentCorrection * float64(k)
		strong = true
	}

	if categoryMatches(p.Categories, in.RecentGuidanceCategories) {
		score += weightCategoryAlign
	}

	if kw := keywordIn(in.FilePath); kw != "" {
		if mapped, ok := pathKeywordCategory[kw]; ok && containsStr(p.Categories, mapped) {
			score += weightPathKeyword
		}
	}

	return Result{Pack: p, Score: score, Strong: strong}
}

func categoryMatches(packCategories, recent []string) bool {
	for _, r := range recent {
		if containsStr(packCategories, r) {
			return true
		}
	}
	return false
}

func keywordIn(path string) string {
	lower := strings.ToLower(path)
	for kw := range pathKeywordCategory {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Select scores every pack and returns at most MaxSelected, keeping a pack
// only if it clears StrongThreshold (when it has a strong signal) or
// WeakThreshold otherwise (§4.8 "Thresholds and selection").
func Select(inputs []Input) []Result {
	var candidates []Result
	for _, in := range inputs {
		r := Score(in)
		threshold := WeakThreshold
		if r.Strong {
			threshold = StrongThreshold
		}
		if r.Score >= threshold {
			candidates = append(candidates, r)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > MaxSelected {
		candidates = candidates[:MaxSelected]
	}
	return candidates
}
