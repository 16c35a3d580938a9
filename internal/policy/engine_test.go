package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyTiers(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   Input
		score   int
		tier    string
		reasons []string
	}{
		{
			name:    "hot",
			input:   Input{Budget: 60000, TimelineDays: 14, Role: "CEO", Company: "Acme"},
			score:   95,
			tier:    TierHot,
			reasons: []string{"budget_high", "company", "decision_maker", "fast_timeline"},
		},
		{
			name:    "warm",
			input:   Input{Budget: 20000, Company: "Acme", Source: "Referral"},
			score:   40,
			tier:    TierWarm,
			reasons: []string{"budget_mid", "company", "referral"},
		},
		{
			name:    "cold",
			input:   Input{Role: "engineer", TimelineDays: 120},
			score:   0,
			tier:    TierCold,
			reasons: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.score, decision.Score)
			assert.Equal(t, tt.tier, decision.Tier)
			assert.Equal(t, tt.reasons, decision.Reasons)
		})
	}
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package lead_scoring\nresult = {")
	assert.Error(t, err)
}

func TestLoadEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.rego")
	content := "package lead_scoring\n\nresult = {\"score\": 1, \"tier\": \"cold\", \"reasons\": [\"flat\"]}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	engine, err := LoadEngine(context.Background(), path)
	require.NoError(t, err)

	decision, err := engine.Evaluate(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, &Decision{Score: 1, Tier: TierCold, Reasons: []string{"flat"}}, decision)
}

func TestLoadEngineMissingFile(t *testing.T) {
	_, err := LoadEngine(context.Background(), filepath.Join(t.TempDir(), "nope.rego"))
	assert.Error(t, err)
}
