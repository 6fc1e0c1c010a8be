package generator

import (
	"fmt"
	"strings"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/workflow"
)

const exampleDocument = `{
  "blocks": [
    {"id": "block_1", "type": "send-message", "config": {"channel": "email", "message": "Welcome! Please complete your registration forms."}},
    {"id": "block_2", "type": "document", "config": {"documentType": "form", "title": "Patient Registration", "requireSignature": true}},
    {"id": "block_3", "type": "wait", "config": {"waitType": "time", "duration": 24, "unit": "hours"}},
    {"id": "block_4", "type": "task", "config": {"title": "Review registration", "assignee": "front desk", "priority": "medium"}}
  ],
  "connections": [
    {"from": "block_1", "to": "block_2"},
    {"from": "block_2", "to": "block_3"},
    {"from": "block_3", "to": "block_4"}
  ]
}`

// systemPrompt describes the output contract and the block vocabulary the
// registry offers for wt.
func systemPrompt(reg *workflow.Registry, wt workflow.Type, marker string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a healthcare workflow automation expert. Your ONLY job is to output a valid workflow after the marker %s.\n\n", marker)
	sb.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&sb, "1. ALWAYS output %s when the user requests or changes a workflow\n", marker)
	fmt.Fprintf(&sb, "2. Format: %s {\"blocks\": [...], \"connections\": [...]}\n", marker)
	sb.WriteString("3. Put a brief one-sentence explanation BEFORE the marker, then the complete JSON and nothing after it\n")
	sb.WriteString("4. Every block needs a unique id; every connection and condition path target must reference an existing id\n\n")
	fmt.Fprintf(&sb, "WORKFLOW TYPE: %s\n\n", wt)
	sb.WriteString("VALID BLOCK TYPES (exact type names, config fields):\n")
	sb.WriteString(reg.PromptDoc(wt))
	sb.WriteString("\nEXAMPLE RESPONSE to \"Create a patient intake workflow\":\n")
	sb.WriteString("Patient intake workflow with registration, document collection and staff review.\n\n")
	fmt.Fprintf(&sb, "%s %s\n", marker, exampleDocument)
	return sb.String()
}

// userPrompt frames the request with block-count context and the trailing
// conversation window.
func userPrompt(req Request, existing int, window []careflow.Message, marker string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User wants a %s workflow.\n\n", req.WorkflowType)

	if existing > 0 {
		fmt.Fprintf(&sb, "Current workflow has %d blocks.\n\n", existing)
	} else {
		fmt.Fprintf(&sb, "IMPORTANT: Output %s with the complete workflow structure.\n\n", marker)
	}

	if len(window) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, turn := range window {
			fmt.Fprintf(&sb, "%s: %s\n", roleLabel(turn.Role), turn.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User request: %s\n\nRemember: output %s format immediately!", req.Message, marker)
	return sb.String()
}

func roleLabel(r careflow.Role) string {
	switch r {
	case careflow.RoleAssistant:
		return "Assistant"
	case careflow.RoleSystem:
		return "System"
	default:
		return "User"
	}
}
