// Package redact is the single funnel every persisted string passes
// through before it reaches a JSONL archive, guidance record, or learned
// rule reason (§7 "Redaction"). New persistence paths must route through
// it rather than writing raw strings.
package redact

import "regexp"

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// patterns covers the token shapes spec.md names explicitly: JWTs, common
// provider API key formats, SSH private keys, database connection
// strings, and inline secret flags.
var patterns = []pattern{
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), "[REDACTED-JWT]"},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`), "[REDACTED-API-KEY]"},
	{regexp.MustCompile(`\bsk-ant-[A-Za-z0-9-]{20,}\b`), "[REDACTED-API-KEY]"},
	{regexp.MustCompile(`\bghp_[A-Za-z0-9]{30,}\b`), "[REDACTED-TOKEN]"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[REDACTED-AWS-KEY]"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED-PRIVATE-KEY]"},
	{regexp.MustCompile(`\b(postgres|postgresql|mysql|mongodb(?:\+srv)?|redis)://[^:\s]+:[^@\s]+@[^\s]+`), "$1://[REDACTED]@[REDACTED-HOST]"},
	{regexp.MustCompile(`(?i)(--token|--password|--api-key|--secret)(=|\s+)\S+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`(?i)Authorization:\s*Bearer\s+\S+`), "Authorization: Bearer [REDACTED]"},
}

// String applies every pattern in order and returns the redacted copy.
// Pure and side-effect free so callers can use it inline before any write.
func String(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}
