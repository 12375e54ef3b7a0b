package wire

import "time"

// ActivityEvent is one entry in a run's bounded recent-activity ring.
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// MaxActivityRing is the bound on RunState.RecentActivity (§3).
const MaxActivityRing = 20

// LastInjection summarizes the most recent injection for a run.
type LastInjection struct {
	File            string             `json:"file"`
	Packs           []string           `json:"packs"`
	RelevanceScores map[string]float64 `json:"relevance_scores"`
	LessonTitles    []string           `json:"lesson_titles"`
}

// RunState is the daemon's per-run checkpoint persisted to run.json (§3, §6).
type RunState struct {
	RunID           string          `json:"runId"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         *time.Time      `json:"endedAt,omitempty"`
	ActivePacks     []string        `json:"activePacks"`
	ToolCallCount   int             `json:"toolCallCount"`
	CorrectionCount int             `json:"correctionCount"`
	RecentActivity  []ActivityEvent `json:"recentActivity"`
	LastInjection   *LastInjection  `json:"lastInjection,omitempty"`
}

// PushActivity appends an event, keeping the ring bounded to MaxActivityRing.
func (r *RunState) PushActivity(ev ActivityEvent) {
	r.RecentActivity = append(r.RecentActivity, ev)
	if len(r.RecentActivity) > MaxActivityRing {
		r.RecentActivity = r.RecentActivity[len(r.RecentActivity)-MaxActivityRing:]
	}
}

// RuleType enumerates the matching strategies for external/learned rules.
type RuleType string

const (
	RulePrefix   RuleType = "prefix"
	RuleContains RuleType = "contains"
	RuleRegex    RuleType = "regex"
)

// Rule is an external allow/deny rule entry (§3 "External rule").
type Rule struct {
	ID      string   `json:"id"`
	Type    RuleType `json:"type"`
	Pattern string   `json:"pattern"`
	Reason  string   `json:"reason"`
}

// LearnedRule extends Rule with provenance (§3 "Learned rule").
type LearnedRule struct {
	Rule
	LearnedAt       time.Time `json:"learnedAt"`
	ApprovedCommand string    `json:"approvedCommand"`
	SessionID       string    `json:"sessionId"`
}

// PendingDecision is an approval awaiting post-execution confirmation
// (§3 "Pending decision").
type PendingDecision struct {
	Command       string    `json:"command"`
	Description   string    `json:"description,omitempty"`
	Reason        string    `json:"reason"`
	SuggestedRule *Rule     `json:"suggestedRule,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PendingTTL is how long a pending decision survives unconsumed (§3, §4.5).
const PendingTTL = 5 * time.Minute

// PreCommitState is the four boolean readiness flags for a session (§3).
type PreCommitState struct {
	LintPassed        bool       `json:"lintPassed"`
	LintAt            *time.Time `json:"lintAt,omitempty"`
	TestPassed        bool       `json:"testPassed"`
	TestAt            *time.Time `json:"testAt,omitempty"`
	BuildPassed       bool       `json:"buildPassed"`
	BuildAt           *time.Time `json:"buildAt,omitempty"`
	TypecheckPassed   bool       `json:"typecheckPassed"`
	TypecheckAt       *time.Time `json:"typecheckAt,omitempty"`
}

// SessionState is the per-session persisted record (§3 "Session state").
type SessionState struct {
	SessionID   string         `json:"sessionId"`
	StartedAt   time.Time      `json:"startedAt"`
	LastUpdated time.Time      `json:"lastUpdated"`
	PreCommit   PreCommitState `json:"preCommit"`
}

// AgentStatus is the lifecycle state of a registered agent/subagent.
type AgentStatus string

const (
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentErrored   AgentStatus = "errored"
)

// AgentEntry tracks one subagent's lifecycle (§3 "Agent entry").
type AgentEntry struct {
	ID             string      `json:"id"`
	AgentType      string      `json:"agentType"`
	SessionID      string      `json:"sessionId"`
	Status         AgentStatus `json:"status"`
	LaunchTime     time.Time   `json:"launchTime"`
	CompletedTime  *time.Time  `json:"completedTime,omitempty"`
	TranscriptPath string      `json:"transcriptPath,omitempty"`
	ResultSummary  string      `json:"resultSummary,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
}

// AgentTTL is the sweep age for completed/errored agent entries (§4.11).
const AgentTTL = time.Hour
