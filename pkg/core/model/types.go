// Package model defines the data shapes shared by every component of a
// debate: agent and debate configuration, rounds, contributions, summaries,
// the persisted debate state, and the synthesized solution.
package model

import "time"

// AgentRole identifies the perspective a Role Agent argues from.
type AgentRole string

const (
	RoleArchitect   AgentRole = "architect"
	RolePerformance AgentRole = "performance"
	RoleSecurity    AgentRole = "security"
	RoleTesting     AgentRole = "testing"
	RoleGeneralist  AgentRole = "generalist"
)

// ProviderName identifies the LLM backend an agent is bound to.
type ProviderName string

const (
	ProviderGemini    ProviderName = "gemini"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderQwen      ProviderName = "qwen"
	ProviderDeepSeek  ProviderName = "deepseek"
	ProviderMock      ProviderName = "mock"
)

// AgentConfig describes one participant in a debate. id and name must be
// unique within a debate; temperature must be finite and within [0,1].
type AgentConfig struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        AgentRole    `json:"role"`
	Model       string       `json:"model"`
	Provider    ProviderName `json:"provider"`
	Temperature float64      `json:"temperature"`
	Enabled     *bool        `json:"enabled,omitempty"`
}

// IsEnabled returns true unless the config explicitly opts out.
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// TerminationConditionType selects how a debate decides it is done.
type TerminationConditionType string

const (
	TerminationFixed       TerminationConditionType = "fixed"
	TerminationConvergence TerminationConditionType = "convergence"
	TerminationQuality     TerminationConditionType = "quality"
)

// TerminationCondition controls round termination. Only Fixed is required
// to be implemented; the others are accepted but rejected at config
// validation time.
type TerminationCondition struct {
	Type      TerminationConditionType `json:"type"`
	Threshold float64                  `json:"threshold,omitempty"`
}

// SynthesisMethod selects how the final Solution is produced. Only Judge is
// required to be implemented.
type SynthesisMethod string

const (
	SynthesisJudge  SynthesisMethod = "judge"
	SynthesisVoting SynthesisMethod = "voting"
	SynthesisMerge  SynthesisMethod = "merge"
)

// SummarizationConfig governs when and how agents compress their history.
type SummarizationConfig struct {
	Enabled   bool   `json:"enabled"`
	Threshold int    `json:"threshold"`
	MaxLength int    `json:"maxLength"`
	Method    string `json:"method,omitempty"`
}

// DebateConfig is the full set of options for one Run.
type DebateConfig struct {
	Rounds              int                   `json:"rounds"`
	TerminationCondition TerminationCondition `json:"terminationCondition"`
	SynthesisMethod     SynthesisMethod       `json:"synthesisMethod"`
	IncludeFullHistory  bool                  `json:"includeFullHistory"`
	TimeoutPerRound     time.Duration         `json:"timeoutPerRound"`
	Summarization       *SummarizationConfig  `json:"summarization,omitempty"`
	Trace               string                `json:"trace,omitempty"`
	MaxToolIterations   int                   `json:"maxToolIterations,omitempty"`
	ClarificationsEnabled bool                `json:"clarificationsEnabled,omitempty"`
	MaxClarificationsPerAgent int            `json:"maxClarificationsPerAgent,omitempty"`
}

// ContributionType distinguishes the three phases of a round.
type ContributionType string

const (
	ContributionProposal   ContributionType = "proposal"
	ContributionCritique   ContributionType = "critique"
	ContributionRefinement ContributionType = "refinement"
)

// ToolCall is a single tool invocation requested by a provider.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"argumentsJson"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
}

// ContributionMetadata carries per-call accounting alongside a Contribution.
type ContributionMetadata struct {
	LatencyMs    int64        `json:"latencyMs"`
	TokensUsed   int          `json:"tokensUsed"`
	Model        string       `json:"model"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults  []ToolResult `json:"toolResults,omitempty"`
}

// Contribution is a single agent output persisted within a round.
type Contribution struct {
	AgentID        string                `json:"agentId"`
	AgentRole      AgentRole             `json:"agentRole"`
	Type           ContributionType      `json:"type"`
	Content        string                `json:"content"`
	TargetAgentID  string                `json:"targetAgentId,omitempty"`
	Metadata       ContributionMetadata  `json:"metadata"`
}

// SummaryMetadata records the provenance and shape of a DebateSummary.
type SummaryMetadata struct {
	BeforeChars int       `json:"beforeChars"`
	AfterChars  int       `json:"afterChars"`
	Method      string    `json:"method"`
	Timestamp   time.Time `json:"timestamp"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	TokensUsed  int       `json:"tokensUsed,omitempty"`
	LatencyMs   int64     `json:"latencyMs,omitempty"`
}

// DebateSummary is a compressed view of one agent's relevant history.
type DebateSummary struct {
	AgentID   string          `json:"agentId"`
	AgentRole AgentRole       `json:"agentRole"`
	Summary   string          `json:"summary"`
	Metadata  SummaryMetadata `json:"metadata"`
}

// DebateRound is one iteration of proposal -> critique -> refinement.
// roundNumber is 1-indexed and equals the round's position in Rounds.
type DebateRound struct {
	RoundNumber   int                       `json:"roundNumber"`
	Contributions []Contribution            `json:"contributions"`
	Summaries     map[string]*DebateSummary `json:"summaries,omitempty"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// DebateStatus is the lifecycle state of a DebateState.
type DebateStatus string

const (
	StatusPending   DebateStatus = "pending"
	StatusRunning   DebateStatus = "running"
	StatusCompleted DebateStatus = "completed"
	StatusFailed    DebateStatus = "failed"
)

// Solution is the judge's synthesized output.
type Solution struct {
	Description                 string   `json:"description"`
	Tradeoffs                   []string `json:"tradeoffs"`
	Recommendations             []string `json:"recommendations"`
	Confidence                  int      `json:"confidence"`
	SynthesizedBy               string   `json:"synthesizedBy"`
	UnfulfilledMajorRequirements []string `json:"unfulfilledMajorRequirements,omitempty"`
	OpenQuestions               []string `json:"openQuestions,omitempty"`
}

// ClarificationItem is one question/answer pair collected before round 1.
type ClarificationItem struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AgentClarifications groups the clarification items one agent asked for.
type AgentClarifications struct {
	AgentID string              `json:"agentId"`
	Items   []ClarificationItem `json:"items"`
}

// DebateState is the persistent record owned exclusively by the State
// Store. currentRound always equals len(Rounds); status=completed iff
// FinalSolution is non-nil.
type DebateState struct {
	ID             string                 `json:"id"`
	Problem        string                 `json:"problem"`
	Context        string                 `json:"context,omitempty"`
	Status         DebateStatus           `json:"status"`
	CurrentRound   int                    `json:"currentRound"`
	Rounds         []DebateRound          `json:"rounds"`
	Clarifications []AgentClarifications  `json:"clarifications,omitempty"`
	FinalSolution  *Solution              `json:"finalSolution,omitempty"`
	UserFeedback   *int                   `json:"userFeedback,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// DebateResultMetadata carries run-level accounting alongside a DebateResult.
type DebateResultMetadata struct {
	TotalRounds int   `json:"totalRounds"`
	TotalTokens int   `json:"totalTokens,omitempty"`
	DurationMs  int64 `json:"durationMs"`
}

// DebateResult is what Run returns on success.
type DebateResult struct {
	DebateID string                `json:"debateId"`
	Solution Solution              `json:"solution"`
	Rounds   []DebateRound         `json:"rounds"`
	Metadata DebateResultMetadata  `json:"metadata"`
}

// DebateContext is the per-call view of a debate passed by value to agents.
// It is never persisted.
type DebateContext struct {
	Problem            string
	Context            string
	History            []DebateRound
	Summary            *DebateSummary
	Clarifications     []AgentClarifications
	IncludeFullHistory bool
	TracingContext      any
}
