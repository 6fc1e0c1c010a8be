package workflow

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// FieldKind is the shape a configuration value must have.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "boolean"
	KindEnum   FieldKind = "enum"
	// KindPaths is a non-empty ordered list of {condition, target} objects.
	KindPaths FieldKind = "paths"
)

// Category groups block types for presentation.
type Category string

const (
	CategoryAction Category = "actions"
	CategoryLogic  Category = "logic"
)

// FieldSpec describes one configuration field of a block type.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	Enum     []string
	Min      *float64
	Max      *float64
	// ExclusiveMin makes Min a strict lower bound.
	ExclusiveMin bool
	Description  string
}

// Spec is the registry entry for one block type.
type Spec struct {
	Type        BlockType
	Category    Category
	Description string
	Fields      []FieldSpec
	// Audiences restricts the workflow types the block is offered for.
	// Empty means every workflow type.
	Audiences []Type
}

// Field returns the named field spec.
func (s Spec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// offeredFor reports whether the block type is offered for workflow type wt.
func (s Spec) offeredFor(wt Type) bool {
	return len(s.Audiences) == 0 || slices.Contains(s.Audiences, wt)
}

// Registry is the closed mapping from block type to configuration schema.
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	specs   map[BlockType]Spec
	schemas map[BlockType]*jsonschema.Schema
	order   []BlockType
}

// NewRegistry builds a registry from specs. It fails if the table itself is
// malformed: duplicate types or fields, enum fields without values, or
// inverted numeric bounds. Each type's configuration schema is compiled
// once here.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs:   make(map[BlockType]Spec, len(specs)),
		schemas: make(map[BlockType]*jsonschema.Schema, len(specs)),
	}
	for _, s := range specs {
		if s.Type == "" {
			return nil, &RegistryError{Msg: "empty block type"}
		}
		if _, dup := r.specs[s.Type]; dup {
			return nil, &RegistryError{Type: s.Type, Msg: "duplicate block type"}
		}
		seen := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			if err := checkField(s.Type, f, seen); err != nil {
				return nil, err
			}
		}
		r.specs[s.Type] = s
		r.order = append(r.order, s.Type)

		compiled, err := r.compile(s.Type)
		if err != nil {
			return nil, err
		}
		r.schemas[s.Type] = compiled
	}
	return r, nil
}

func (r *Registry) compile(t BlockType) (*jsonschema.Schema, error) {
	schema, err := r.JSONSchema(t)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, &RegistryError{Type: t, Msg: fmt.Sprintf("encode schema: %v", err)}
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, &RegistryError{Type: t, Msg: fmt.Sprintf("compile schema: %v", err)}
	}
	return compiled, nil
}

func checkField(t BlockType, f FieldSpec, seen map[string]bool) error {
	if f.Name == "" {
		return &RegistryError{Type: t, Msg: "field with empty name"}
	}
	if seen[f.Name] {
		return &RegistryError{Type: t, Field: f.Name, Msg: "duplicate field"}
	}
	seen[f.Name] = true

	switch f.Kind {
	case KindEnum:
		if len(f.Enum) == 0 {
			return &RegistryError{Type: t, Field: f.Name, Msg: "enum field without values"}
		}
	case KindString, KindNumber, KindBool, KindPaths:
		if len(f.Enum) > 0 {
			return &RegistryError{Type: t, Field: f.Name, Msg: "values given for non-enum field"}
		}
	default:
		return &RegistryError{Type: t, Field: f.Name, Msg: fmt.Sprintf("unknown kind %q", f.Kind)}
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return &RegistryError{Type: t, Field: f.Name, Msg: "minimum exceeds maximum"}
	}
	return nil
}

// MustRegistry is like NewRegistry but panics on a malformed table.
func MustRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return MustRegistry(defaultSpecs()...)
})

// DefaultRegistry returns the shared registry of built-in block types.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Lookup returns the spec for a block type.
func (r *Registry) Lookup(t BlockType) (Spec, bool) {
	s, ok := r.specs[t]
	return s, ok
}

// Has reports whether t is a registered block type.
func (r *Registry) Has(t BlockType) bool {
	_, ok := r.specs[t]
	return ok
}

// Types returns all registered block types in registration order.
func (r *Registry) Types() []BlockType {
	return slices.Clone(r.order)
}

// TypesFor returns the block types offered for a workflow type, grouped by
// category.
func (r *Registry) TypesFor(wt Type) map[Category][]BlockType {
	out := make(map[Category][]BlockType)
	for _, t := range r.order {
		s := r.specs[t]
		if s.offeredFor(wt) {
			out[s.Category] = append(out[s.Category], t)
		}
	}
	return out
}

// PromptDoc renders the block vocabulary offered for wt as prompt text.
func (r *Registry) PromptDoc(wt Type) string {
	var sb strings.Builder
	for _, t := range r.order {
		s := r.specs[t]
		if !s.offeredFor(wt) {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", t, s.Description)
		for _, f := range s.Fields {
			fmt.Fprintf(&sb, "    %s: %s", f.Name, describeField(f))
			if !f.Required {
				sb.WriteString(" (optional)")
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func describeField(f FieldSpec) string {
	var desc string
	switch f.Kind {
	case KindEnum:
		desc = "string (" + strings.Join(f.Enum, "|") + ")"
	case KindPaths:
		desc = `array of {"condition": string, "target": block id}, at least one`
	default:
		desc = string(f.Kind)
	}
	if f.Min != nil && f.Max != nil {
		desc += fmt.Sprintf(" %g-%g", *f.Min, *f.Max)
	} else if f.Min != nil && f.ExclusiveMin {
		desc += fmt.Sprintf(" > %g", *f.Min)
	} else if f.Min != nil {
		desc += fmt.Sprintf(" >= %g", *f.Min)
	}
	if f.Description != "" {
		desc += " - " + f.Description
	}
	return desc
}

// JSONSchema returns a JSON Schema object describing the configuration of
// block type t.
func (r *Registry) JSONSchema(t BlockType) (map[string]any, error) {
	s, ok := r.specs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
	props := make(map[string]any, len(s.Fields))
	required := []string{}
	for _, f := range s.Fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":        "object",
		"description": s.Description,
		"properties":  props,
		"required":    required,
	}, nil
}

func fieldSchema(f FieldSpec) map[string]any {
	node := map[string]any{}
	switch f.Kind {
	case KindEnum:
		node["type"] = "string"
		node["enum"] = f.Enum
	case KindPaths:
		node["type"] = "array"
		node["minItems"] = 1
		node["items"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"condition": map[string]any{"type": "string", "pattern": `\S`},
				"target":    map[string]any{"type": "string", "minLength": 1},
			},
			"required": pathKeys,
		}
	default:
		node["type"] = string(f.Kind)
	}
	if f.Min != nil && f.ExclusiveMin {
		node["exclusiveMinimum"] = *f.Min
	} else if f.Min != nil {
		node["minimum"] = *f.Min
	}
	if f.Max != nil {
		node["maximum"] = *f.Max
	}
	if f.Description != "" {
		node["description"] = f.Description
	}
	return node
}

// pathKeys are the members every condition path must carry.
var pathKeys = []string{"condition", "target"}

func bound(v float64) *float64 { return &v }

func defaultSpecs() []Spec {
	return []Spec{
		{
			Type: SendMessage, Category: CategoryAction,
			Description: "send a message to the patient or staff",
			Fields: []FieldSpec{
				{Name: "channel", Kind: KindEnum, Required: true, Enum: []string{"sms", "email", "in-app"}},
				{Name: "message", Kind: KindString, Required: true, Description: "message content"},
				{Name: "template", Kind: KindString, Description: "template id"},
			},
		},
		{
			Type: Appointment, Category: CategoryAction,
			Description: "schedule an appointment",
			Audiences:   []Type{TypePatient},
			Fields: []FieldSpec{
				{Name: "type", Kind: KindEnum, Required: true, Enum: []string{"virtual", "in-person"}},
				{Name: "duration", Kind: KindNumber, Required: true, Min: bound(1), Description: "minutes"},
				{Name: "provider", Kind: KindString, Description: "provider id"},
			},
		},
		{
			Type: Task, Category: CategoryAction,
			Description: "create a task for a staff member",
			Fields: []FieldSpec{
				{Name: "title", Kind: KindString, Required: true},
				{Name: "assignee", Kind: KindString, Required: true, Description: "role or person"},
				{Name: "priority", Kind: KindEnum, Required: true, Enum: []string{"low", "medium", "high"}},
				{Name: "dueInDays", Kind: KindNumber, Min: bound(0)},
			},
		},
		{
			Type: DocumentBlock, Category: CategoryAction,
			Description: "send a document or form",
			Fields: []FieldSpec{
				{Name: "documentType", Kind: KindEnum, Required: true, Enum: []string{"consent", "form", "educational"}},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "requireSignature", Kind: KindBool, Required: true},
			},
		},
		{
			Type: Order, Category: CategoryAction,
			Description: "place a clinical order",
			Audiences:   []Type{TypePatient},
			Fields: []FieldSpec{
				{Name: "orderType", Kind: KindEnum, Required: true, Enum: []string{"lab", "medication", "imaging"}},
				{Name: "details", Kind: KindString, Required: true},
			},
		},
		{
			Type: Note, Category: CategoryAction,
			Description: "record an internal note",
			Fields: []FieldSpec{
				{Name: "content", Kind: KindString, Required: true},
				{Name: "category", Kind: KindString},
			},
		},
		{
			Type: NestedWorkflow, Category: CategoryLogic,
			Description: "run another saved workflow",
			Fields: []FieldSpec{
				{Name: "workflowId", Kind: KindString, Required: true},
			},
		},
		{
			Type: Wait, Category: CategoryLogic,
			Description: "pause before continuing",
			Fields: []FieldSpec{
				{Name: "waitType", Kind: KindEnum, Required: true, Enum: []string{"time", "event", "input"}},
				{Name: "duration", Kind: KindNumber, Required: true, Min: bound(0), ExclusiveMin: true},
				{Name: "unit", Kind: KindEnum, Required: true, Enum: []string{"minutes", "hours", "days", "weeks"}},
				{Name: "event", Kind: KindString, Description: "event name for event waits"},
			},
		},
		{
			Type: Condition, Category: CategoryLogic,
			Description: "branch on a natural-language condition evaluated at runtime",
			Fields: []FieldSpec{
				{Name: "conditionType", Kind: KindEnum, Enum: []string{"ai-evaluation", "simple"}},
				{Name: "description", Kind: KindString, Required: true, Description: "what to check"},
				{Name: "paths", Kind: KindPaths, Required: true},
			},
		},
		{
			Type: Loop, Category: CategoryLogic,
			Description: "repeat until the exit rule holds or the bound is reached",
			Fields: []FieldSpec{
				{Name: "loopType", Kind: KindEnum, Enum: []string{"ai-evaluation", "count"}},
				{Name: "maxIterations", Kind: KindNumber, Required: true, Min: bound(1)},
				{Name: "continueRule", Kind: KindString, Required: true},
				{Name: "breakRule", Kind: KindString, Required: true},
				{Name: "escalationRule", Kind: KindString},
			},
		},
		{
			Type: SmartReview, Category: CategoryLogic,
			Description: "route to human review with optional AI pre-analysis",
			Fields: []FieldSpec{
				{Name: "reviewType", Kind: KindString, Required: true},
				{Name: "aiAnalysis", Kind: KindBool, Required: true},
				{Name: "escalationTimeout", Kind: KindNumber, Min: bound(0), Description: "hours before escalation"},
				{Name: "escalateTo", Kind: KindString},
			},
		},
		{
			Type: AITouch, Category: CategoryLogic,
			Description: "let the assistant analyze data and act",
			Fields: []FieldSpec{
				{Name: "analysisType", Kind: KindString, Required: true},
				{Name: "action", Kind: KindString, Required: true},
				{Name: "confidenceThreshold", Kind: KindNumber, Min: bound(0), Max: bound(1)},
			},
		},
	}
}
