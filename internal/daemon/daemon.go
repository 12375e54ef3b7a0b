// Package daemon wires every subsystem into the per-hook dispatcher: a
// session multiplex that shares one run directory across concurrently
// attached sessions, a static handler table keyed on the hook enum, and
// per-hook timeout racing (§4.1, §9).
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/marveldaemon/mhd/internal/config"
	"github.com/marveldaemon/mhd/internal/eventbus"
	"github.com/marveldaemon/mhd/internal/injection"
	"github.com/marveldaemon/mhd/internal/learned"
	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/outcome"
	"github.com/marveldaemon/mhd/internal/packs"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/pending"
	"github.com/marveldaemon/mhd/internal/registry"
	"github.com/marveldaemon/mhd/internal/rules"
	"github.com/marveldaemon/mhd/internal/runstate"
	"github.com/marveldaemon/mhd/internal/security"
	"github.com/marveldaemon/mhd/internal/sessionstate"
	"github.com/marveldaemon/mhd/internal/wire"
)

// recursionGuardEnv is the process-wide environment flag the evaluator
// subprocess is launched with; its presence means the current process is
// (transitively) the evaluator, and every hook it fires must be allowed
// immediately rather than re-entering the gate (§4.6 "Subprocess
// isolation", §7(d) "Recursion").
const recursionGuardEnv = "MHD_EVALUATOR_SUBPROCESS"

// DefaultEvaluatorURL environment key lets the evaluator subprocess know
// where to report back to, if it needs to call home; unused by the daemon
// itself but kept alongside recursionGuardEnv for symmetry with the
// teacher's subprocess-launch env wiring.
const DefaultEvaluatorURL = "MHD_EVALUATOR_URL"

// Daemon owns every subsystem for one project root and multiplexes
// concurrently attached sessions over it.
type Daemon struct {
	root string
	cfg  config.Config

	allowlist *rules.Set
	denylist  *rules.Set
	learned   *learned.Store
	pendingTr *pending.Tracker
	gate      *security.Gate

	packsCache *packs.Cache
	dedup      *injection.Dedup
	registry   *registry.Registry
	bus        *eventbus.Bus

	mu             sync.Mutex
	activeSessions map[string]struct{}
	sessionStates  map[string]*sessionstate.Manager
	run            *runstate.Run
	runStarted     bool
	lastInjIdx     int // injections already correlated by a prior stop/session-end
	shutdownTimer  *time.Timer
	sweepStop      chan struct{}

	onIdle func() // invoked once the daemon has fully shut down; set by cmd/hookd
}

// New assembles a Daemon from already-loaded rule sets and stores. The
// caller (cmd/hookd's serve command) is responsible for loading the
// allowlist/denylist/learned files and constructing the evaluator client
// before calling this.
func New(root string, cfg config.Config, allowlist, denylist *rules.Set, store *learned.Store, eval security.Evaluator) *Daemon {
	def := config.Default(root)
	if !gronx.IsValid(cfg.PendingSweepCron) {
		logging.Warn().Str("cron", cfg.PendingSweepCron).Msg("invalid pending_sweep_cron, falling back to default")
		cfg.PendingSweepCron = def.PendingSweepCron
	}
	if !gronx.IsValid(cfg.RegistrySweepCron) {
		logging.Warn().Str("cron", cfg.RegistrySweepCron).Msg("invalid registry_sweep_cron, falling back to default")
		cfg.RegistrySweepCron = def.RegistrySweepCron
	}

	tracker := pending.New()
	gate := security.New(root, allowlist, denylist, store, tracker, eval)

	d := &Daemon{
		root:           root,
		cfg:            cfg,
		allowlist:      allowlist,
		denylist:       denylist,
		learned:        store,
		pendingTr:      tracker,
		gate:           gate,
		dedup:          injection.NewDedup(),
		registry:       registry.New(),
		bus:            eventbus.New(),
		activeSessions: make(map[string]struct{}),
		sessionStates:  make(map[string]*sessionstate.Manager),
	}
	return d
}

// SetOnIdle registers the callback invoked once the daemon has torn down
// its last session and its shutdown-grace period has elapsed; cmd/hookd
// uses this to stop accepting connections and exit the process.
func (d *Daemon) SetOnIdle(f func()) {
	d.mu.Lock()
	d.onIdle = f
	d.mu.Unlock()
}

// IsRecursed reports whether this process is running as (or beneath) the
// evaluator subprocess, in which case every hook must allow immediately
// (§7(d)).
func IsRecursed() bool {
	return os.Getenv(recursionGuardEnv) != ""
}

// RecursionGuardEnv exposes the env var name so cmd/hookd can set it when
// spawning the evaluator subprocess.
func RecursionGuardEnv() string { return recursionGuardEnv }

// sessionStateFor returns (creating if needed) the sessionstate.Manager
// for a session, persisted under the user temp directory keyed by session
// ID (§4.10 "Persistence").
func (d *Daemon) sessionStateFor(sessionID string) (*sessionstate.Manager, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.sessionStates[sessionID]; ok {
		return m, nil
	}
	path, err := pathutil.SessionStatePath(sessionID)
	if err != nil {
		return nil, err
	}
	m, err := sessionstate.Load(path, sessionID)
	if err != nil {
		return nil, err
	}
	d.sessionStates[sessionID] = m
	return m, nil
}

// startSession registers sessionID as active, performing full
// lazy-initialization the first time the active-session set transitions
// from empty to non-empty (§4.1 "Session multiplex"). The dedup set is
// cleared on every session-start, independently of compaction, per the
// resolved open question in §9.
func (d *Daemon) startSession(sessionID string) (*runstate.Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dedup.Clear()

	if len(d.activeSessions) == 0 {
		if err := d.initRunLocked(); err != nil {
			return nil, err
		}
	}
	d.activeSessions[sessionID] = struct{}{}

	if d.shutdownTimer != nil {
		d.shutdownTimer.Stop()
		d.shutdownTimer = nil
	}

	d.bus.Publish(eventbus.Event{Kind: eventbus.SessionStarted, Data: sessionID})
	return d.run, nil
}

// initRunLocked loads packs, creates a fresh run directory, and marks the
// daemon initialized. Called with d.mu held.
func (d *Daemon) initRunLocked() error {
	cache, err := packs.NewCache(pathutil.PacksDir(d.root))
	if err != nil {
		return fmt.Errorf("load packs: %w", err)
	}
	d.packsCache = cache

	now := time.Now()
	dir, err := pathutil.NewRunDir(d.root, now)
	if err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	run, err := runstate.New(dir, filepath.Base(dir))
	if err != nil {
		return fmt.Errorf("init run state: %w", err)
	}
	d.run = run
	d.runStarted = true
	d.lastInjIdx = 0

	logging.Info().Str("root", d.root).Str("run", filepath.Base(dir)).Msg("daemon session-start: initialized run")
	return nil
}

// endSession removes sessionID from the active set; when it was the last
// one, the run is finalized and a shutdown grace timer is started
// (§4.1 "session-end removes the ID; when the set becomes empty...").
// shutdown is the callback the caller (cmd/hookd serve) provides to
// actually tear the process down once the grace period elapses.
func (d *Daemon) endSession(sessionID string, shutdown func()) {
	d.mu.Lock()
	delete(d.activeSessions, sessionID)
	delete(d.sessionStates, sessionID)
	d.registry.ClearSession(sessionID)

	empty := len(d.activeSessions) == 0
	run := d.run
	d.mu.Unlock()

	d.bus.Publish(eventbus.Event{Kind: eventbus.SessionEnded, Data: sessionID})

	if !empty {
		return
	}

	if run != nil {
		d.correlateAndPersist(run)
		run.End()
	}

	d.mu.Lock()
	d.runStarted = false
	d.run = nil
	if d.shutdownTimer != nil {
		d.shutdownTimer.Stop()
	}
	d.shutdownTimer = time.AfterFunc(d.cfg.ShutdownGrace, func() {
		d.bus.Publish(eventbus.Event{Kind: eventbus.DaemonShutdown})
		if shutdown != nil {
			shutdown()
		}
	})
	d.mu.Unlock()
}

// correlateAndPersist correlates only the injections recorded since the
// last call (tracked by d.lastInjIdx) into lesson-outcome records,
// persists updated utility scores back into the packs cache, and
// snapshots the security gate's metrics (§4.12, §4.6). It is called once
// per stop (end of turn, may fire many times per run) and once more at
// session-end for any trailing, not-yet-correlated injections — reusing
// the full run history at every stop would recount earlier turns and
// reapply decay to state ApplyDecay already advanced.
func (d *Daemon) correlateAndPersist(run *runstate.Run) {
	injections, err := run.ReadInjections()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to read injections for outcome correlation")
	}
	guidanceEntries, err := run.ReadGuidance()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to read guidance for outcome correlation")
	}
	toolCalls, err := run.ReadToolCalls()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to read tool calls for outcome correlation")
	}

	d.mu.Lock()
	start := d.lastInjIdx
	if start > len(injections) {
		start = len(injections) // defensive: run was reset underneath us
	}
	newInjections := injections[start:]
	d.lastInjIdx = len(injections)
	d.mu.Unlock()

	run.PersistSecurityMetrics(d.gate.Metrics())

	if len(newInjections) == 0 {
		return
	}

	// guidance and toolCalls are passed in full: outcome.Correlate only
	// reads them to find a matching correction/failure for each new
	// injection, it never counts them, so no double-counting risk there.
	packCategories := make(map[string][]string)
	if d.packsCache != nil {
		for _, p := range d.packsCache.All() {
			packCategories[p.Name] = p.Categories
		}
	}

	accruals := outcome.Correlate(newInjections, guidanceEntries, toolCalls, packCategories)
	if len(accruals) == 0 {
		return
	}

	now := time.Now()
	outcomes := make([]wire.LessonOutcome, 0, len(accruals))
	for _, a := range accruals {
		outcomes = append(outcomes, wire.LessonOutcome{
			Pack: a.Pack, Lesson: a.Lesson, Injected: a.Injected, FollowedByCorrection: a.CorrectedWeight,
		})

		if d.packsCache == nil {
			continue
		}
		p, ok := d.packsCache.Get(a.Pack)
		if !ok {
			continue
		}
		var prior wire.Lesson
		found := false
		for _, l := range p.Lessons {
			if l.Title == a.Lesson {
				prior, found = l, true
				break
			}
		}
		if !found {
			continue
		}
		updated := outcome.ApplyDecay(prior, a, now)
		if err := d.packsCache.UpdateLesson(a.Pack, updated); err != nil {
			logging.Warn().Err(err).Str("pack", a.Pack).Str("lesson", a.Lesson).Msg("failed to persist updated lesson utility")
		}
	}
	run.RecordLessonOutcomes(outcomes)
}

// Stop runs per-turn outcome correlation for the stop hook (§4.12). It
// does not end the run; session-end is what tears the run down.
func (d *Daemon) Stop() {
	d.mu.Lock()
	run := d.run
	d.mu.Unlock()
	if run == nil {
		return
	}
	d.correlateAndPersist(run)
}

// startSweepers launches the two background sweepers the spec calls for:
// pending-decision eviction once a minute, and agent-registry TTL sweep
// once an hour (§4.5, §4.11), driven off the configured cron expressions
// so an operator can retune cadence without a rebuild. Cron resolution is
// one minute, so a single minute-granularity ticker checks both
// schedules via gronx rather than running two separate timers.
func (d *Daemon) startSweepers(ctx context.Context) {
	d.sweepStop = make(chan struct{})
	cron := gronx.New()
	ticker := time.NewTicker(time.Minute)

	checkAndFire := func(now time.Time) {
		if due, err := cron.IsDue(d.cfg.PendingSweepCron, now); err != nil {
			logging.Warn().Err(err).Str("cron", d.cfg.PendingSweepCron).Msg("invalid pending-sweep cron expression")
		} else if due {
			if n := d.pendingTr.Sweep(); n > 0 {
				logging.Debug().Int("evicted", n).Msg("swept expired pending decisions")
			}
		}
		if due, err := cron.IsDue(d.cfg.RegistrySweepCron, now); err != nil {
			logging.Warn().Err(err).Str("cron", d.cfg.RegistrySweepCron).Msg("invalid registry-sweep cron expression")
		} else if due {
			if n := d.registry.Sweep(); n > 0 {
				d.bus.Publish(eventbus.Event{Kind: eventbus.AgentSwept, Data: n})
				logging.Debug().Int("evicted", n).Msg("swept stale agent entries")
			}
		}
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.sweepStop:
				return
			case now := <-ticker.C:
				checkAndFire(now)
			}
		}
	}()
}

// Start launches the background sweepers. Called once by cmd/hookd's
// serve command after the socket listener is up.
func (d *Daemon) Start(ctx context.Context) {
	d.startSweepers(ctx)
}

// Shutdown stops the sweepers and unlinks the socket and PID files. The
// listener itself is closed by the caller (cmd/hookd serve owns the
// net.Listener lifecycle).
func (d *Daemon) Shutdown() {
	if d.sweepStop != nil {
		close(d.sweepStop)
	}
	if sockPath, err := pathutil.SocketPath(d.root); err == nil {
		pathutil.RemoveIfExists(sockPath)
	}
	if pidPath, err := pathutil.PidPath(d.root); err == nil {
		pathutil.RemoveIfExists(pidPath)
	}
}

// Bus exposes the daemon's event bus for diagnostics/status commands.
func (d *Daemon) Bus() *eventbus.Bus { return d.bus }

// Registry exposes the agent/teammate registry for diagnostics commands.
func (d *Daemon) Registry() *registry.Registry { return d.registry }

// Metrics exposes the security gate's decision tally for status commands.
func (d *Daemon) Metrics() security.Metrics { return d.gate.Metrics() }

func (d *Daemon) onIdleCallback() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onIdle
}

// currentRun returns the active run, or nil if no session is active.
func (d *Daemon) currentRun() *runstate.Run {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.run
}

// ActiveSessionCount reports the number of currently attached sessions.
func (d *Daemon) ActiveSessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.activeSessions)
}
