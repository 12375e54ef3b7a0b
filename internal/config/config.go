// Package config loads the daemon's project-level configuration, adapted
// from the teacher's global-then-project-then-environment precedence: the
// daemon has exactly one project root, so there is no XDG global tier,
// only project config then environment.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
)

// Evaluator holds the external-evaluator adapter's tunables (§4.7).
type Evaluator struct {
	URL               string        `json:"url"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	CostCapUSD        float64       `json:"cost_cap_usd"`
	LowConfidenceDeny float64       `json:"low_confidence_deny_threshold"`
	ResumeGrace       time.Duration `json:"resume_grace"`
}

// DefaultEvaluator mirrors §4.7's suggested defaults.
func DefaultEvaluator() Evaluator {
	return Evaluator{
		URL:               "http://127.0.0.1:8765/evaluate",
		IdleTimeout:       10 * time.Minute,
		CostCapUSD:        0.50,
		LowConfidenceDeny: 0.6,
		ResumeGrace:       2 * time.Second,
	}
}

// Config is the daemon's resolved configuration for one project root.
type Config struct {
	ProjectRoot       string        `json:"-"`
	Debug             bool          `json:"debug"`
	ShutdownGrace     time.Duration `json:"shutdown_grace"`
	SecurityTimeout   time.Duration `json:"security_timeout"`
	DefaultTimeout    time.Duration `json:"default_timeout"`
	Evaluator         Evaluator     `json:"evaluator"`
	PendingSweepCron  string        `json:"pending_sweep_cron"`
	RegistrySweepCron string        `json:"registry_sweep_cron"`
}

// Default returns the configuration baseline before any file/env
// overrides, matching the timeout budgets named in §4.1. The sweep
// schedules mirror the spec's stated cadence (pending decisions once a
// minute, agent registry once an hour) expressed as cron expressions so
// an operator can retune them without a code change.
func Default(projectRoot string) Config {
	return Config{
		ProjectRoot:       projectRoot,
		ShutdownGrace:     500 * time.Millisecond,
		SecurityTimeout:   35 * time.Second,
		DefaultTimeout:    9 * time.Second,
		Evaluator:         DefaultEvaluator(),
		PendingSweepCron:  "* * * * *",
		RegistrySweepCron: "0 * * * *",
	}
}

// Load resolves configuration for root: defaults, then
// {root}/marvel/security/config.json if present, then a project .env
// (teacher already depends on godotenv for this), then direct process
// environment overrides (§6 "Environment variables read").
func Load(root string) (Config, error) {
	cfg := Default(root)

	envPath := filepath.Join(root, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logging.Debug().Str("path", envPath).Msg("no .env file, continuing with process environment")
	}

	configPath := filepath.Join(pathutil.SecurityDir(root), "config.json")
	if err := loadFile(configPath, &cfg); err != nil {
		logging.Debug().Str("path", configPath).Msg("no daemon config file, using defaults")
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = stripJSONComments(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("malformed daemon config, using defaults")
		return err
	}
	mergeInto(cfg, &fileCfg)
	return nil
}

func mergeInto(target, source *Config) {
	if source.Debug {
		target.Debug = source.Debug
	}
	if source.ShutdownGrace > 0 {
		target.ShutdownGrace = source.ShutdownGrace
	}
	if source.SecurityTimeout > 0 {
		target.SecurityTimeout = source.SecurityTimeout
	}
	if source.DefaultTimeout > 0 {
		target.DefaultTimeout = source.DefaultTimeout
	}
	if source.Evaluator.URL != "" {
		target.Evaluator.URL = source.Evaluator.URL
	}
	if source.Evaluator.IdleTimeout > 0 {
		target.Evaluator.IdleTimeout = source.Evaluator.IdleTimeout
	}
	if source.Evaluator.CostCapUSD > 0 {
		target.Evaluator.CostCapUSD = source.Evaluator.CostCapUSD
	}
	if source.Evaluator.LowConfidenceDeny > 0 {
		target.Evaluator.LowConfidenceDeny = source.Evaluator.LowConfidenceDeny
	}
	if source.Evaluator.ResumeGrace > 0 {
		target.Evaluator.ResumeGrace = source.Evaluator.ResumeGrace
	}
	if source.PendingSweepCron != "" {
		target.PendingSweepCron = source.PendingSweepCron
	}
	if source.RegistrySweepCron != "" {
		target.RegistrySweepCron = source.RegistrySweepCron
	}
}

func applyEnvOverrides(cfg *Config) {
	if os.Getenv("MHD_DEBUG") != "" {
		cfg.Debug = true
	}
	if url := os.Getenv("MHD_EVALUATOR_URL"); url != "" {
		cfg.Evaluator.URL = url
	}
}

// stripJSONComments removes // and /* */ comments, same approach the
// teacher uses for its JSONC config files.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	return multiLine.ReplaceAll(data, nil)
}

// Save persists cfg to path, creating parent directories as needed.
func Save(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
