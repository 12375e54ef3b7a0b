// Package pathutil locates the project root and run/temp directories the
// daemon operates against, and provides atomic, logged file operations
// shared by every other component that touches disk.
package pathutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/marveldaemon/mhd/internal/logging"
)

// socketPathLimit mirrors the platform sun_path limit (§4.1, §8 boundary
// behavior); a path at or beyond this length makes the socket unbindable.
const socketPathLimit = 103

// FindProjectRoot walks upward from startDir looking for a .git directory
// and returns its parent. If none is found, startDir itself (made absolute)
// is the project root — mirrors the teacher's internal/project git-dir walk,
// simplified because the daemon keys state on the path, not the VCS history.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	current := abs
	for {
		if info, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			_ = info
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		current = parent
	}
}

// ProjectHash returns the first 12 hex characters of SHA-256(root), the
// stable short identifier used in socket/PID/run-directory names (§2, §6).
func ProjectHash(root string) string {
	h := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(h[:])[:12]
}

// UserTempDir returns $TMPDIR/mhd-{uid}, creating it mode 0700 if needed.
func UserTempDir() (string, error) {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = os.TempDir()
	}
	dir := filepath.Join(tmp, fmt.Sprintf("mhd-%s", currentUID()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create user temp dir %s: %w", dir, err)
	}
	return dir, nil
}

func currentUID() string {
	if runtime.GOOS == "windows" {
		if u := os.Getenv("USERNAME"); u != "" {
			return u
		}
		return "user"
	}
	return strconv.Itoa(os.Getuid())
}

// SocketPath returns the Unix socket path for a project and validates it
// stays below the platform sun_path limit (§4.1, §7 fatal condition).
func SocketPath(root string) (string, error) {
	tmp, err := UserTempDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(tmp, fmt.Sprintf("p-project-%s.sock", ProjectHash(root)))
	if len(p) >= socketPathLimit {
		return "", fmt.Errorf("socket path %q (%d bytes) exceeds sun_path limit (%d)", p, len(p), socketPathLimit)
	}
	return p, nil
}

// PidPath returns the sibling PID file path for a project's socket.
func PidPath(root string) (string, error) {
	tmp, err := UserTempDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(tmp, fmt.Sprintf("p-project-%s.pid", ProjectHash(root))), nil
}

// SessionStatePath returns the per-session state file path.
func SessionStatePath(sessionID string) (string, error) {
	tmp, err := UserTempDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(tmp, fmt.Sprintf("session-%s.json", sanitizeID(sessionID))), nil
}

// sanitizeID strips path separators from an externally supplied ID before
// it is interpolated into a filename.
func sanitizeID(id string) string {
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")
	return strings.ReplaceAll(id, "..", "_")
}

// MarvelDir returns {project}/marvel.
func MarvelDir(root string) string {
	return filepath.Join(root, "marvel")
}

// RunsDir returns {project}/marvel/runs.
func RunsDir(root string) string {
	return filepath.Join(MarvelDir(root), "runs")
}

// NewRunDir allocates {project}/marvel/runs/run_YYYYMMDD_HHMMSS for the
// given start time and creates it.
func NewRunDir(root string, startedAt time.Time) (string, error) {
	dir := filepath.Join(RunsDir(root), "run_"+startedAt.Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir %s: %w", dir, err)
	}
	return dir, nil
}

// PacksDir returns {project}/marvel/packs.
func PacksDir(root string) string {
	return filepath.Join(MarvelDir(root), "packs")
}

// SecurityDir returns {project}/marvel/security.
func SecurityDir(root string) string {
	return filepath.Join(MarvelDir(root), "security")
}

// GuidanceArchivePath returns {project}/marvel/guidance-archive.jsonl.
func GuidanceArchivePath(root string) string {
	return filepath.Join(MarvelDir(root), "guidance-archive.jsonl")
}

// EnsureDir creates dir (and parents) if missing, logging failures at warn
// per the best-effort I/O discipline of §7(b).
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("failed to create directory")
		return err
	}
	return nil
}
