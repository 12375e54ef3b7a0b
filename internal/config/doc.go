// Package config resolves the daemon's per-project configuration.
//
// Unlike the teacher's global/project/XDG precedence chain, the daemon has
// exactly one project root per process, so loading has three tiers:
//
//  1. Built-in defaults (Default).
//  2. {root}/marvel/security/config.json, if present, JSONC comments
//     stripped the same way the teacher strips them from opencode.jsonc.
//  3. Environment overrides, loaded from a project .env file via godotenv
//     and then the process environment directly (MHD_DEBUG,
//     MHD_EVALUATOR_URL).
//
// Project-relative paths (run directories, socket paths, pack directories)
// live in internal/pathutil, not here — this package only owns the
// Config/Evaluator value shapes and their precedence.
package config
