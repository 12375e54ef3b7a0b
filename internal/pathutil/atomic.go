package pathutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marveldaemon/mhd/internal/logging"
)

// WriteJSONAtomic marshals v and writes it to path via a temp-file-then-rename
// so concurrent readers never observe a partial write (§3 "atomic file ops").
// Failures are logged at warn and returned; callers treat this as best-effort
// per §7(b).
func WriteJSONAtomic(path string, v any, mode os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to marshal json")
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		logging.Warn().Err(err).Str("path", tmp).Msg("failed to write temp file")
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		logging.Warn().Err(err).Str("path", path).Msg("failed to rename into place")
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. Returns os.ErrNotExist (wrapped)
// when the file is absent so callers can distinguish "missing" from
// "corrupt".
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to unmarshal json")
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// AppendJSONL appends one JSON-encoded line to path, creating the file and
// its parent directory if needed. Append-only files (§3 invariant, §5 table)
// need no cross-writer coordination beyond O_APPEND, but a flock still
// guards against torn writes from concurrent goroutines inside this process.
func AppendJSONL(path string, v any) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	lock := NewFileLock(path)
	if err := lock.Lock(); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to lock jsonl file")
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to marshal jsonl entry")
		return fmt.Errorf("marshal entry for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to open jsonl file for append")
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to append jsonl entry")
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

// ReadJSONL reads every line of path and calls fn with the decoded raw
// message. Malformed lines are skipped with a warning rather than failing
// the whole read (§4.8 "malformed entries are skipped").
func ReadJSONL(path string, fn func(line json.RawMessage) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(trim(line)) == 0 {
				continue
			}
			if !json.Valid(line) {
				logging.Warn().Str("path", path).Msg("skipping malformed jsonl line")
				continue
			}
			if err := fn(json.RawMessage(line)); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteLinesAtomic writes lines, one per row, to path via a temp-file-then-
// rename so concurrent readers never observe a partially rewritten file
// (§3 "atomic file ops"). Used for full jsonl rewrites, as opposed to
// AppendJSONL's single-entry append.
func WriteLinesAtomic(path string, lines [][]byte, mode os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		logging.Warn().Err(err).Str("path", tmp).Msg("failed to write temp file")
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		logging.Warn().Err(err).Str("path", path).Msg("failed to rename into place")
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// RemoveIfExists deletes path, treating "already gone" as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func trim(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}
