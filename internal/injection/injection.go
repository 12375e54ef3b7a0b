// Package injection formats selected packs' lessons into the additional
// context text returned on a pre-edit hook, and tracks which (pack,
// lesson) pairs have already been surfaced this daemon lifetime (§4.9).
package injection

import (
	"container/list"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marveldaemon/mhd/internal/relevance"
	"github.com/marveldaemon/mhd/internal/wire"
)

const (
	// MaxLessonsPerPack and MaxLessonsTotal bound the injected payload (§4.9).
	MaxLessonsPerPack = 3
	MaxLessonsTotal   = 10
	// DedupCapacity is the LRU bound on the already-injected set (§4.9).
	DedupCapacity = 200
)

// Dedup is an LRU-bounded set of (pack, lesson title) pairs already
// injected this daemon lifetime. Cleared on compaction and on
// session-start independently (§4.9, §9 open question resolution).
type Dedup struct {
	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

// NewDedup builds an empty dedup set.
func NewDedup() *Dedup {
	return &Dedup{order: list.New(), index: make(map[string]*list.Element)}
}

func key(pack, lesson string) string { return pack + "\x00" + lesson }

// SeenOrMark reports whether (pack, lesson) was already injected; if not,
// it marks it injected and evicts the oldest entry once over capacity.
func (d *Dedup) SeenOrMark(pack, lesson string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(pack, lesson)
	if el, ok := d.index[k]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(k)
	d.index[k] = el
	if d.order.Len() > DedupCapacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}

// Clear empties the dedup set (compaction, session-start).
func (d *Dedup) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order = list.New()
	d.index = make(map[string]*list.Element)
}

// Result is what Format returns: the text to inject plus the bookkeeping
// the caller needs to persist an injection record.
type Result struct {
	Text            string
	PacksInjected   []string
	LessonsInjected []string
	LessonPack      map[string]string
	Scores          map[string]float64
}

// Format builds the additional-context block for a file given its scored,
// selected packs, skipping lessons already seen in dedup and capping per
// pack and overall (§4.9 "Contract").
func Format(file string, selected []relevance.Result, dedup *Dedup) Result {
	var blocks []string
	var packsInjected, lessonsInjected []string
	lessonPack := make(map[string]string)
	scores := make(map[string]float64)
	total := 0

	for _, sel := range selected {
		if total >= MaxLessonsTotal {
			break
		}
		p := sel.Pack
		lessons := sortedByUtility(p.Lessons)

		var items []string
		perPack := 0
		for _, l := range lessons {
			if perPack >= MaxLessonsPerPack || total >= MaxLessonsTotal {
				break
			}
			if dedup.SeenOrMark(p.Name, l.Title) {
				continue
			}
			items = append(items, fmt.Sprintf("- %s: %s", l.Title, l.Actionable))
			lessonsInjected = append(lessonsInjected, l.Title)
			lessonPack[l.Title] = p.Name
			perPack++
			total++
		}
		if len(items) == 0 {
			continue
		}

		scores[p.Name] = sel.Score
		packsInjected = append(packsInjected, p.Name)
		blocks = append(blocks, fmt.Sprintf("## %s\n%s", p.Name, strings.Join(items, "\n")))
	}

	if len(blocks) == 0 {
		return Result{Scores: scores}
	}

	text := fmt.Sprintf("# Guidance for %s\n\n%s", file, strings.Join(blocks, "\n\n"))
	return Result{Text: text, PacksInjected: packsInjected, LessonsInjected: lessonsInjected, LessonPack: lessonPack, Scores: scores}
}

func sortedByUtility(lessons []wire.Lesson) []wire.Lesson {
	out := make([]wire.Lesson, len(lessons))
	copy(out, lessons)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Utility() > out[j].Utility()
	})
	return out
}
