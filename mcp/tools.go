package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spetersoncode/careflow/decision"
	"github.com/spetersoncode/careflow/workflow"
)

// Tool names.
const (
	ToolListBlockTypes    = "list_block_types"
	ToolGetBlockSchema    = "get_block_schema"
	ToolValidateWorkflow  = "validate_workflow"
	ToolEvaluateCondition = "evaluate_condition"
	ToolEvaluateLoop      = "evaluate_loop"
)

var validateWorkflowSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "workflow": {
      "type": "object",
      "description": "workflow document with blocks and connections",
      "properties": {
        "blocks": {"type": "array", "items": {"type": "object"}},
        "connections": {"type": "array", "items": {"type": "object"}}
      },
      "required": ["blocks"]
    }
  },
  "required": ["workflow"]
}`)

var evaluateConditionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "condition_description": {"type": "string", "description": "natural-language condition"},
    "workflow_context": {"type": "object", "description": "workflow execution state"},
    "referenced_block_ids": {"type": "array", "items": {"type": "string"}},
    "instance_id": {"type": "string"}
  },
  "required": ["condition_description"]
}`)

var evaluateLoopSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "continue_rule": {"type": "string"},
    "break_rule": {"type": "string"},
    "escalation_rule": {"type": "string"},
    "workflow_context": {"type": "object"},
    "referenced_block_ids": {"type": "array", "items": {"type": "string"}},
    "iteration_count": {"type": "integer", "minimum": 0},
    "instance_id": {"type": "string"}
  },
  "required": ["continue_rule", "break_rule"]
}`)

func listBlockTypesTool() mcp.Tool {
	return mcp.NewTool(ToolListBlockTypes,
		mcp.WithDescription("List the workflow block types, optionally only those offered for one workflow type"),
		mcp.WithString("workflow_type",
			mcp.Description("patient or practice"),
			mcp.Enum(string(workflow.TypePatient), string(workflow.TypePractice)),
		),
	)
}

func getBlockSchemaTool() mcp.Tool {
	return mcp.NewTool(ToolGetBlockSchema,
		mcp.WithDescription("Get the JSON Schema of a block type's configuration"),
		mcp.WithString("block_type",
			mcp.Required(),
			mcp.Description("block type, e.g. send-message"),
		),
	)
}

func validateWorkflowTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(ToolValidateWorkflow,
		"Validate a workflow document against the block registry", validateWorkflowSchema)
}

func evaluateConditionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(ToolEvaluateCondition,
		"Decide whether a workflow branch condition holds", evaluateConditionSchema)
}

func evaluateLoopTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(ToolEvaluateLoop,
		"Decide whether a workflow loop continues, breaks or escalates", evaluateLoopSchema)
}

type tools struct {
	registry  *workflow.Registry
	evaluator *decision.Evaluator
}

// BlockTypeInfo is one entry of the list_block_types result.
type BlockTypeInfo struct {
	Type        workflow.BlockType `json:"type"`
	Category    workflow.Category  `json:"category"`
	Description string             `json:"description"`
}

// ValidationResult is the validate_workflow result.
type ValidationResult struct {
	Valid      bool                 `json:"valid"`
	Violations []workflow.Violation `json:"violations"`
}

func (t *tools) listBlockTypes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(req)
	types := t.registry.Types()
	if s, _ := args["workflow_type"].(string); s != "" {
		wt := workflow.Type(s)
		if !wt.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown workflow type %q", s)), nil
		}
		offered := make(map[workflow.BlockType]bool)
		for _, group := range t.registry.TypesFor(wt) {
			for _, bt := range group {
				offered[bt] = true
			}
		}
		filtered := types[:0]
		for _, bt := range types {
			if offered[bt] {
				filtered = append(filtered, bt)
			}
		}
		types = filtered
	}

	infos := make([]BlockTypeInfo, 0, len(types))
	for _, bt := range types {
		spec, _ := t.registry.Lookup(bt)
		infos = append(infos, BlockTypeInfo{Type: bt, Category: spec.Category, Description: spec.Description})
	}
	return jsonResult(infos)
}

func (t *tools) getBlockSchema(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bt, _ := getArgs(req)["block_type"].(string)
	if bt == "" {
		return mcp.NewToolResultError("block_type is required"), nil
	}
	if !t.registry.Has(workflow.BlockType(bt)) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown block type %q", bt)), nil
	}
	schema, err := t.registry.JSONSchema(workflow.BlockType(bt))
	if err != nil {
		return nil, err
	}
	return jsonResult(schema)
}

func (t *tools) validateWorkflow(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Workflow json.RawMessage `json:"workflow"`
	}
	if err := decodeArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(args.Workflow) == 0 || string(args.Workflow) == "null" {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	_, violations := t.registry.ValidateJSON(args.Workflow)
	if violations == nil {
		violations = []workflow.Violation{}
	}
	return jsonResult(ValidationResult{Valid: len(violations) == 0, Violations: violations})
}

func (t *tools) evaluateCondition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args decision.ConditionRequest
	if err := decodeArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := t.evaluator.EvaluateCondition(ctx, args)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(d)
}

func (t *tools) evaluateLoop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args decision.LoopRequest
	if err := decodeArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := t.evaluator.EvaluateLoop(ctx, args)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(d)
}

// getArgs extracts arguments from request as map[string]any.
func getArgs(req mcp.CallToolRequest) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// decodeArgs round-trips the request arguments through JSON into v.
func decodeArgs(req mcp.CallToolRequest, v any) error {
	data := []byte("{}")
	if req.Params.Arguments != nil {
		var err error
		data, err = json.Marshal(req.Params.Arguments)
		if err != nil {
			return fmt.Errorf("failed to marshal arguments: %w", err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports request errors to the client as tool errors and
// everything else as a protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, decision.ErrInvalidRequest) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}
