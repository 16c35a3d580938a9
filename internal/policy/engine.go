// Package policy evaluates rego rules that qualify intake submissions.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Tiers returned by the lead scoring policy.
const (
	TierHot  = "hot"
	TierWarm = "warm"
	TierCold = "cold"
)

// Decision is the policy verdict for one submission.
type Decision struct {
	Score   int      `json:"score"`
	Tier    string   `json:"tier"`
	Reasons []string `json:"reasons"`
}

// Input is the document the policy reads as `input`.
type Input struct {
	Budget       float64 `json:"budget"`
	TimelineDays int     `json:"timeline_days"`
	Role         string  `json:"role"`
	Company      string  `json:"company"`
	Source       string  `json:"source"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.lead_scoring.result"),
		rego.Module("lead_scoring.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate scores one submission.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy produced no result")
	}

	// The result is a generic JSON value; round-trip it into Decision.
	raw, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy result: %w", err)
	}
	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, fmt.Errorf("unexpected policy result %s: %w", raw, err)
	}
	if decision.Tier == "" {
		return nil, fmt.Errorf("policy result has no tier: %s", raw)
	}
	if decision.Reasons == nil {
		decision.Reasons = []string{}
	}
	return &decision, nil
}

// DefaultPolicy is the default lead scoring policy.
const DefaultPolicy = `
package lead_scoring

decision_titles = {"ceo", "cto", "cfo", "coo", "founder", "owner", "president", "vp", "head", "director"}

signals["budget_high"] = 40 {
	input.budget >= 50000
}

signals["budget_mid"] = 25 {
	input.budget >= 10000
	input.budget < 50000
}

signals["fast_timeline"] = 25 {
	input.timeline_days > 0
	input.timeline_days <= 30
}

signals["decision_maker"] = 20 {
	role := lower(input.role)
	some t
	decision_titles[t]
	contains(role, t)
}

signals["company"] = 10 {
	input.company != ""
}

signals["referral"] = 5 {
	lower(input.source) == "referral"
}

score = s {
	s := sum([v | v := signals[_]])
}

default tier = "cold"

tier = "hot" {
	score >= 60
}

tier = "warm" {
	score >= 30
	score < 60
}

reasons = r {
	r := sort([k | signals[k]])
}

result = {"score": score, "tier": tier, "reasons": reasons}
`
