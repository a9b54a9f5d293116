// Package judge implements the Judge Agent: synthesis of a debate's final
// round into a single Solution, grounded on the teacher's two-stage
// (markdown narrative, then fenced-JSON extraction) synthesis pattern,
// collapsed here into one structured-output call since the Judge's prompt
// asks directly for JSON rather than prose to be re-parsed.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/summarize"
	"github.com/slior/dialectic/pkg/core/utils"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// maxConfidenceWithUnfulfilled caps the synthesized confidence whenever the
// judge reports a major requirement the debate left unfulfilled: a solution
// can't be "highly confident" about something it admits is incomplete.
const maxConfidenceWithUnfulfilled = 40

// defaultParseFailureConfidence is what a Solution gets when the judge's
// response couldn't be parsed at all: low enough to signal trouble without
// being the hard floor reserved for an explicitly unfulfilled requirement.
const defaultParseFailureConfidence = 50

// synthesisPayload mirrors the JSON schema the judge's system prompt
// demands the model return.
type synthesisPayload struct {
	SolutionMarkdown             string   `json:"solutionMarkdown"`
	Tradeoffs                    []string `json:"tradeoffs"`
	Recommendations              []string `json:"recommendations"`
	Confidence                   int      `json:"confidence"`
	UnfulfilledMajorRequirements []string `json:"unfulfilledMajorRequirements"`
	OpenQuestions                []string `json:"openQuestions"`
}

// Judge synthesizes a debate's contributions into a final Solution.
type Judge struct {
	Config       model.AgentConfig
	Provider     llm.Provider
	SystemPrompt string
}

// New builds a Judge bound to the given provider/system prompt.
func New(cfg model.AgentConfig, provider llm.Provider, systemPrompt string) *Judge {
	return &Judge{Config: cfg, Provider: provider, SystemPrompt: systemPrompt}
}

// Synthesize produces the final Solution. It uses the full round history
// unless useSummarizedView(cfg, rounds) is true, in which case only
// the final round's proposals and refinements are sent — the judge's own
// summarization trigger, distinct from (and broader than) a single role
// agent's: it looks at every participant's final-round output, not just
// its own.
func (j *Judge) Synthesize(ctx context.Context, cfg model.DebateConfig, rounds []model.DebateRound, problem string) model.Solution {
	user := buildSynthesisPrompt(problem, rounds, j.useSummarizedView(cfg, rounds))

	result, err := j.Provider.Complete(ctx, llm.CompletionRequest{
		Model:        j.Config.Model,
		SystemPrompt: j.SystemPrompt,
		UserPrompt:   user,
		Temperature:  j.Config.Temperature,
	})
	if err != nil {
		return model.Solution{
			Description:   fmt.Sprintf("synthesis failed: %v", err),
			Confidence:    0,
			SynthesizedBy: j.Config.ID,
		}
	}

	payload, ok := extractPayload(result.Text)
	if !ok {
		// Parsing failed entirely: fall back to the raw text as the
		// description rather than erroring the whole debate over it.
		return finalize(j.Config.ID, synthesisPayload{
			SolutionMarkdown: result.Text,
			Confidence:       defaultParseFailureConfidence,
		})
	}

	return finalize(j.Config.ID, payload)
}

// useSummarizedView decides whether Synthesize should only see the final
// round: true iff summarization is enabled, rounds is non-empty, and the
// character count of the final round's proposals+refinements (across all
// agents) meets cfg.Summarization.Threshold.
func (j *Judge) useSummarizedView(cfg model.DebateConfig, rounds []model.DebateRound) bool {
	if cfg.Summarization == nil || len(rounds) == 0 {
		return false
	}
	last := rounds[len(rounds)-1]
	chars := 0
	for _, c := range last.Contributions {
		if c.Type == model.ContributionProposal || c.Type == model.ContributionRefinement {
			chars += len(c.Content)
		}
	}
	return summarize.ShouldSummarize(cfg.Summarization, chars)
}

func finalize(judgeID string, payload synthesisPayload) model.Solution {
	confidence := clampConfidence(payload.Confidence)
	if len(payload.UnfulfilledMajorRequirements) > 0 && confidence > maxConfidenceWithUnfulfilled {
		confidence = maxConfidenceWithUnfulfilled
	}

	description := payload.SolutionMarkdown
	if description == "" {
		description = "(no solution text returned)"
	}
	description += "\n\n---\n\n## Judge Assessment\n"
	description += renderAssessmentSections(payload.UnfulfilledMajorRequirements, payload.OpenQuestions, payload.Recommendations, payload.Tradeoffs, confidence)

	return model.Solution{
		Description:                  description,
		Tradeoffs:                    orEmpty(payload.Tradeoffs),
		Recommendations:              orEmpty(payload.Recommendations),
		Confidence:                   confidence,
		SynthesizedBy:                judgeID,
		UnfulfilledMajorRequirements: orEmpty(payload.UnfulfilledMajorRequirements),
		OpenQuestions:                orEmpty(payload.OpenQuestions),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// renderAssessmentSections renders the confidence line first, followed by
// the sections in the fixed canonical order other components rely on:
// Unfulfilled Major Requirements, Open Questions, Recommendations,
// Trade-offs (sections omitted when empty).
func renderAssessmentSections(unfulfilled, openQuestions, recommendations, tradeoffs []string, confidence int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n**Confidence Score**: %d/100\n", confidence)

	if len(unfulfilled) > 0 {
		sb.WriteString("\n### ⚠️ Unfulfilled Major Requirements\n")
		for _, r := range unfulfilled {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	if len(openQuestions) > 0 {
		sb.WriteString("\n### Open Questions\n")
		for _, q := range openQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	if len(recommendations) > 0 {
		sb.WriteString("\n### Recommendations\n")
		for _, r := range recommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	if len(tradeoffs) > 0 {
		sb.WriteString("\n### Trade-offs\n")
		for _, t := range tradeoffs {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
	}
	return sb.String()
}

// EvaluateConfidence inspects only the latest round's refinements (not the
// full history) and returns a 0-100 confidence estimate, used by a
// convergence-style termination check without paying for a full synthesis.
// Returns 0 immediately if there are no refinements to evaluate.
func (j *Judge) EvaluateConfidence(ctx context.Context, latestRound model.DebateRound) int {
	var refinements []model.Contribution
	for _, c := range latestRound.Contributions {
		if c.Type == model.ContributionRefinement {
			refinements = append(refinements, c)
		}
	}
	if len(refinements) == 0 {
		return 0
	}

	var sb strings.Builder
	sb.WriteString("Refinements from the latest round:\n")
	for _, c := range refinements {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", c.AgentID, c.AgentRole, c.Content)
	}
	sb.WriteString("\nRate overall consensus as a single JSON object: {\"confidence\": <0-100>}. " +
		"Bands: 0-40 no consensus, 41-70 partial, 71-89 mostly aligned, 90-100 strong consensus. " +
		"Prefer a score under 50 when the evidence is ambiguous.")

	result, err := j.Provider.Complete(ctx, llm.CompletionRequest{
		Model:        j.Config.Model,
		SystemPrompt: j.SystemPrompt,
		UserPrompt:   sb.String(),
		Temperature:  j.Config.Temperature,
	})
	if err != nil {
		return defaultParseFailureConfidence
	}

	var payload struct {
		Confidence int `json:"confidence"`
	}
	raw := stripFence(result.Text)
	if _, err := utils.SmartParse(raw, &payload); err != nil {
		return defaultParseFailureConfidence
	}

	return clampConfidence(payload.Confidence)
}

func buildSynthesisPrompt(problem string, rounds []model.DebateRound, finalRoundOnly bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Problem:\n%s\n\n", problem)

	if finalRoundOnly && len(rounds) > 0 {
		sb.WriteString("Final round proposals and refinements:\n")
		writeRoundProposalsAndRefinements(&sb, rounds[len(rounds)-1])
	} else {
		sb.WriteString("Full debate transcript:\n")
		for _, r := range rounds {
			fmt.Fprintf(&sb, "### Round %d\n", r.RoundNumber)
			for _, c := range r.Contributions {
				fmt.Fprintf(&sb, "- [%s/%s] %s: %s\n", c.AgentRole, c.Type, c.AgentID, c.Content)
			}
		}
	}

	sb.WriteString("\nSynthesize a single recommended solution as a JSON object with fields: " +
		"solutionMarkdown (string), tradeoffs (array), recommendations (array), confidence (0-100), " +
		"unfulfilledMajorRequirements (array), openQuestions (array). Respond with JSON only.")
	return sb.String()
}

func writeRoundProposalsAndRefinements(sb *strings.Builder, r model.DebateRound) {
	fmt.Fprintf(sb, "### Round %d\n", r.RoundNumber)
	for _, c := range r.Contributions {
		if c.Type != model.ContributionProposal && c.Type != model.ContributionRefinement {
			continue
		}
		fmt.Fprintf(sb, "- [%s/%s] %s: %s\n", c.AgentRole, c.Type, c.AgentID, c.Content)
	}
}

func extractPayload(raw string) (synthesisPayload, bool) {
	var payload synthesisPayload

	braced, ok := extractBracedObject(stripFence(raw))
	if !ok {
		return synthesisPayload{}, false
	}
	if _, err := utils.SmartParse(braced, &payload); err != nil {
		return synthesisPayload{}, false
	}
	return payload, true
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractBracedObject finds the first balanced {...} span by brace
// counting, for responses that include explanatory prose around the JSON.
func extractBracedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// RenderMarkdown re-renders a full, standalone Markdown view of a Solution
// in the same canonical section order used inside Synthesize, for callers
// (transport handlers) that want to display a Solution outside of the
// description field's embedded assessment.
func RenderMarkdown(s model.Solution) string {
	var sb strings.Builder
	sb.WriteString("# Solution\n\n")
	sb.WriteString(s.Description)
	return sb.String()
}
