// Package mcp exposes the block registry, the workflow validator and the
// decision evaluator as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetersoncode/careflow/decision"
	"github.com/spetersoncode/careflow/workflow"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// NewServer creates an MCP server with the registry tools
// (list_block_types, get_block_schema, validate_workflow) and, when eval is
// non-nil, the decision tools (evaluate_condition, evaluate_loop).
// A nil registry uses workflow.DefaultRegistry.
//
// Example:
//
//	s := mcp.NewServer(workflow.DefaultRegistry(), decision.NewEvaluator(c),
//	    mcp.WithName("careflow"),
//	    mcp.WithVersion("1.0.0"),
//	)
//	server.ServeStdio(s)
func NewServer(reg *workflow.Registry, eval *decision.Evaluator, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "careflow-mcp-server",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if reg == nil {
		reg = workflow.DefaultRegistry()
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)

	t := &tools{registry: reg, evaluator: eval}
	s.AddTool(listBlockTypesTool(), t.listBlockTypes)
	s.AddTool(getBlockSchemaTool(), t.getBlockSchema)
	s.AddTool(validateWorkflowTool(), t.validateWorkflow)
	if eval != nil {
		s.AddTool(evaluateConditionTool(), t.evaluateCondition)
		s.AddTool(evaluateLoopTool(), t.evaluateLoop)
	}
	return s
}

// ServeStdio starts an MCP server that communicates over stdin/stdout.
func ServeStdio(reg *workflow.Registry, eval *decision.Evaluator, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(reg, eval, opts...))
}
