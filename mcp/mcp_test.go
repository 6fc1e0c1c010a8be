package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/careflow/decision"
	"github.com/spetersoncode/careflow/internal/fake"
	"github.com/spetersoncode/careflow/workflow"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func newTools(reply string) *tools {
	return &tools{
		registry:  workflow.DefaultRegistry(),
		evaluator: decision.NewEvaluator(&fake.Provider{Reply: reply}),
	}
}

func TestListBlockTypes(t *testing.T) {
	tl := newTools("")

	result, err := tl.listBlockTypes(context.Background(), callRequest(ToolListBlockTypes, nil))
	require.NoError(t, err)
	var all []BlockTypeInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &all))
	assert.Len(t, all, len(workflow.DefaultRegistry().Types()))
	assert.Equal(t, workflow.SendMessage, all[0].Type)
	assert.Equal(t, workflow.CategoryAction, all[0].Category)

	result, err = tl.listBlockTypes(context.Background(), callRequest(ToolListBlockTypes, map[string]any{"workflow_type": "practice"}))
	require.NoError(t, err)
	var practice []BlockTypeInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &practice))
	assert.Less(t, len(practice), len(all))
	for _, info := range practice {
		assert.NotEqual(t, workflow.Appointment, info.Type)
		assert.NotEqual(t, workflow.Order, info.Type)
	}

	result, err = tl.listBlockTypes(context.Background(), callRequest(ToolListBlockTypes, map[string]any{"workflow_type": "hospital"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetBlockSchema(t *testing.T) {
	tl := newTools("")

	result, err := tl.getBlockSchema(context.Background(), callRequest(ToolGetBlockSchema, map[string]any{"block_type": "task"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &schema))
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []any{"title", "assignee", "priority"}, schema["required"])

	result, err = tl.getBlockSchema(context.Background(), callRequest(ToolGetBlockSchema, map[string]any{"block_type": "fax"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = tl.getBlockSchema(context.Background(), callRequest(ToolGetBlockSchema, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestValidateWorkflow(t *testing.T) {
	tl := newTools("")

	valid := map[string]any{
		"workflow": map[string]any{
			"blocks": []any{
				map[string]any{"id": "b1", "type": "note", "config": map[string]any{"content": "Check chart"}},
			},
			"connections": []any{},
		},
	}
	result, err := tl.validateWorkflow(context.Background(), callRequest(ToolValidateWorkflow, valid))
	require.NoError(t, err)
	var got ValidationResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
	assert.True(t, got.Valid)
	assert.Empty(t, got.Violations)

	invalid := map[string]any{
		"workflow": map[string]any{
			"blocks": []any{
				map[string]any{"id": "b1", "type": "note", "config": map[string]any{"content": "Check chart"}},
			},
			"connections": []any{map[string]any{"from": "b1", "to": "b9"}},
		},
	}
	result, err = tl.validateWorkflow(context.Background(), callRequest(ToolValidateWorkflow, invalid))
	require.NoError(t, err)
	got = ValidationResult{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
	assert.False(t, got.Valid)
	require.Len(t, got.Violations, 1)
	assert.Equal(t, workflow.CodeUnresolvedEndpoint, got.Violations[0].Code)

	wrongTyped := map[string]any{
		"workflow": map[string]any{
			"blocks":      []any{map[string]any{"id": 1, "type": "note", "config": map[string]any{}}},
			"connections": []any{},
		},
	}
	result, err = tl.validateWorkflow(context.Background(), callRequest(ToolValidateWorkflow, wrongTyped))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	got = ValidationResult{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
	assert.False(t, got.Valid)
	require.Len(t, got.Violations, 1)
	assert.Equal(t, workflow.CodeWrongKind, got.Violations[0].Code)
	assert.Equal(t, "blocks[0].id", got.Violations[0].Field)

	result, err = tl.validateWorkflow(context.Background(), callRequest(ToolValidateWorkflow, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestEvaluateTools(t *testing.T) {
	tl := newTools(`{"decision":"false","reasoning":"form still pending","confidence":0.8}`)
	result, err := tl.evaluateCondition(context.Background(), callRequest(ToolEvaluateCondition, map[string]any{
		"condition_description": "Patient completed the intake form",
		"workflow_context":      map[string]any{"intake": "pending"},
	}))
	require.NoError(t, err)
	var cond decision.Condition
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &cond))
	assert.Equal(t, decision.OutcomeFalse, cond.Decision)
	assert.Equal(t, "form still pending", cond.Reasoning)

	result, err = tl.evaluateCondition(context.Background(), callRequest(ToolEvaluateCondition, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	tl = newTools(`{"action":"break","reasoning":"patient replied"}`)
	result, err = tl.evaluateLoop(context.Background(), callRequest(ToolEvaluateLoop, map[string]any{
		"continue_rule":   "no reply",
		"break_rule":      "patient replied",
		"iteration_count": 3,
	}))
	require.NoError(t, err)
	var loop decision.Loop
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &loop))
	assert.Equal(t, decision.ActionBreak, loop.Action)

	result, err = tl.evaluateLoop(context.Background(), callRequest(ToolEvaluateLoop, map[string]any{"continue_rule": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func startClient(t *testing.T, eval *decision.Evaluator) *client.Client {
	t.Helper()
	s := NewServer(nil, eval, WithName("test-server"), WithVersion("1.0.0"))
	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "test-client",
				Version: "1.0.0",
			},
		},
	})
	require.NoError(t, err)
	return c
}

func TestServerIntegration(t *testing.T) {
	t.Run("lists tools", func(t *testing.T) {
		c := startClient(t, decision.NewEvaluator(nil))

		result, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)

		names := make([]string, len(result.Tools))
		for i, tool := range result.Tools {
			names[i] = tool.Name
		}
		assert.ElementsMatch(t, []string{
			ToolListBlockTypes, ToolGetBlockSchema, ToolValidateWorkflow,
			ToolEvaluateCondition, ToolEvaluateLoop,
		}, names)
	})

	t.Run("omits decision tools without an evaluator", func(t *testing.T) {
		c := startClient(t, nil)

		result, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)
		assert.Len(t, result.Tools, 3)
	})

	t.Run("escalates without a credential", func(t *testing.T) {
		c := startClient(t, decision.NewEvaluator(nil))

		result, err := c.CallTool(context.Background(), callRequest(ToolEvaluateCondition, map[string]any{
			"condition_description": "Lab results are normal",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		var cond decision.Condition
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &cond))
		assert.Equal(t, decision.OutcomeEscalate, cond.Decision)
	})

	t.Run("reports unknown block types as tool errors", func(t *testing.T) {
		c := startClient(t, nil)

		result, err := c.CallTool(context.Background(), callRequest(ToolGetBlockSchema, map[string]any{"block_type": "fax"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}
