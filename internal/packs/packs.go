// Package packs loads knowledge packs from the project tree and caches
// them in memory for the lifetime of the daemon (§4.8 "Loading").
package packs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Cache holds every pack loaded from one project's packs directory,
// loaded exactly once per daemon lifetime (§4.8 "idempotent for a daemon
// lifetime; packs are cached in memory").
type Cache struct {
	mu    sync.RWMutex
	packs map[string]*wire.Pack
	dirs  map[string]string
}

// NewCache loads every pack directory under dir. A malformed individual
// pack or lesson entry is skipped with a warning; loading never fails as
// a whole (mirrors rules.Load's fallback philosophy, §4.3/§4.8).
func NewCache(dir string) (*Cache, error) {
	c := &Cache{packs: make(map[string]*wire.Pack), dirs: make(map[string]string)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.Debug().Str("dir", dir).Msg("no packs directory yet")
		return c, nil
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := loadOne(filepath.Join(dir, e.Name()), e.Name())
		if err != nil {
			logging.Warn().Err(err).Str("pack", e.Name()).Msg("skipping malformed pack")
			continue
		}
		if p.Name != e.Name() {
			logging.Warn().Str("dir", e.Name()).Str("name", p.Name).Msg("pack name does not match directory, skipping")
			continue
		}
		if _, dup := c.packs[p.Name]; dup {
			logging.Warn().Str("pack", p.Name).Msg("duplicate pack name, keeping first")
			continue
		}
		c.packs[p.Name] = p
		c.dirs[p.Name] = filepath.Join(dir, e.Name())
	}

	return c, nil
}

func loadOne(dir, name string) (*wire.Pack, error) {
	meta, err := os.ReadFile(filepath.Join(dir, "pack.json"))
	if err != nil {
		return nil, err
	}
	var p wire.Pack
	if err := json.Unmarshal(meta, &p); err != nil {
		return nil, err
	}

	lessonsPath := filepath.Join(dir, "lessons.jsonl")
	var lessons []wire.Lesson
	err = pathutil.ReadJSONL(lessonsPath, func(raw json.RawMessage) error {
		var l wire.Lesson
		if err := json.Unmarshal(raw, &l); err != nil {
			return err
		}
		lessons = append(lessons, l)
		return nil
	})
	if err != nil {
		logging.Debug().Str("pack", name).Msg("no lessons file yet")
	}
	p.Lessons = lessons

	return &p, nil
}

// All returns every loaded pack, in stable name order.
func (c *Cache) All() []*wire.Pack {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*wire.Pack, 0, len(c.packs))
	for _, p := range c.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one pack by name.
func (c *Cache) Get(name string) (*wire.Pack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.packs[name]
	return p, ok
}

// UpdateLesson replaces one lesson (matched by title) within a pack, both
// in the in-memory cache and on disk, as a full lessons.jsonl rewrite (the
// file is small and scores change infrequently, so a rewrite is simpler
// than an in-place patch) (§4.12 "persisting the updated utility score").
func (c *Cache) UpdateLesson(packName string, updated wire.Lesson) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.packs[packName]
	if !ok {
		return nil
	}
	found := false
	for i := range p.Lessons {
		if p.Lessons[i].Title == updated.Title {
			p.Lessons[i] = updated
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	dir, ok := c.dirs[packName]
	if !ok {
		return nil
	}
	path := filepath.Join(dir, "lessons.jsonl")
	var lines [][]byte
	for _, l := range p.Lessons {
		raw, err := json.Marshal(l)
		if err != nil {
			return err
		}
		lines = append(lines, raw)
	}
	return pathutil.WriteLinesAtomic(path, lines, 0o600)
}

// ExtensionOf returns the lowercased final dotted suffix of a file name,
// or "" if there is none (Open Question in spec resolved: exact match on
// the final extension only, §9).
func ExtensionOf(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}
