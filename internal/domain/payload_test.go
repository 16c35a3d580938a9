package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInputVariants(t *testing.T) {
	in, err := DecodeInput(AgentNova, json.RawMessage(`{"topic":"pricing","platform":"x","tone":"dry"}`))
	require.NoError(t, err)
	assert.Equal(t, &NovaInput{Topic: "pricing", Platform: "x", Tone: "dry"}, in)

	in, err = DecodeInput(AgentIris, json.RawMessage(`{"name":"A","email":"a@b.co","budget":12000,"timelineDays":30}`))
	require.NoError(t, err)
	assert.Equal(t, &IrisInput{Name: "A", Email: "a@b.co", Budget: 12000, TimelineDays: 30}, in)
}

func TestDecodeInputEmptyIsZeroVariant(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		in, err := DecodeInput(AgentNova, json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, &NovaInput{}, in)
		assert.Error(t, in.(*NovaInput).Validate())
	}
}

func TestDecodeInputErrors(t *testing.T) {
	_, err := DecodeInput("zeus", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownAgent)

	_, err = DecodeInput(AgentNova, json.RawMessage(`{"topic":`))
	assert.ErrorContains(t, err, "invalid input for agent nova")
}

func TestDecodeInputWrongTypeIsValidationError(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		raw     string
		field   string
		message string
	}{
		{"string budget", AgentIris, `{"budget":"lots"}`, "budget", "budget must be a number (got string)"},
		{"string timeline", AgentIris, `{"timelineDays":"30"}`, "timelineDays", "timelineDays must be an integer (got string)"},
		{"numeric topic", AgentNova, `{"topic":123,"platform":"linkedin"}`, "topic", "topic must be a string (got number)"},
		{"not an object", AgentNova, `"pricing"`, "input", "input must be an object (got string)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInput(tt.agentID, json.RawMessage(tt.raw))
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
			assert.EqualError(t, err, tt.message)
		})
	}
}

func TestRequestMetadataKeepsExtra(t *testing.T) {
	var req AgentRequest
	require.NoError(t, json.Unmarshal([]byte(
		`{"userId":"u1","input":{},"metadata":{"trigger":"webhook","timestamp":"t0","persist":true,"formId":"f-9"}}`), &req))

	assert.Equal(t, TriggerWebhook, req.Metadata.Trigger)
	assert.Equal(t, "t0", req.Metadata.Timestamp)
	assert.True(t, req.Metadata.Persist)
	assert.Equal(t, map[string]any{"formId": "f-9"}, req.Metadata.Extra)

	out, err := json.Marshal(req.Metadata)
	require.NoError(t, err)
	assert.JSONEq(t, `{"trigger":"webhook","timestamp":"t0","persist":true,"formId":"f-9"}`, string(out))
}

func TestResponseEnvelopeShape(t *testing.T) {
	ok, err := json.Marshal(NewSuccessResponse(AgentNova, "e1", &NovaOutput{Draft: "hi"}))
	require.NoError(t, err)
	var success map[string]any
	require.NoError(t, json.Unmarshal(ok, &success))
	assert.Equal(t, true, success["success"])
	assert.Equal(t, map[string]any{"draft": "hi"}, success["output"])
	assert.Contains(t, success, "error")
	assert.Nil(t, success["error"])

	failed, err := json.Marshal(NewErrorResponse(AgentIris, "", "rate limited"))
	require.NoError(t, err)
	var failure map[string]any
	require.NoError(t, json.Unmarshal(failed, &failure))
	assert.Equal(t, false, failure["success"])
	assert.Contains(t, failure, "output")
	assert.Nil(t, failure["output"])
	assert.Equal(t, "rate limited", failure["error"])
	assert.NotContains(t, failure["metadata"], "executionId")
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "topic is required", (&ValidationError{Field: "topic", Reason: "is required"}).Error())
	assert.Equal(t, "llm error [429]: Too Many Requests",
		(&CollaboratorError{Collaborator: "llm", StatusCode: 429, Message: "Too Many Requests"}).Error())
}
