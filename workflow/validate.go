package workflow

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// ViolationCode classifies a validation failure.
type ViolationCode string

const (
	CodeEmptyID            ViolationCode = "empty_id"
	CodeDuplicateID        ViolationCode = "duplicate_id"
	CodeUnknownType        ViolationCode = "unknown_type"
	CodeMissingField       ViolationCode = "missing_field"
	CodeWrongKind          ViolationCode = "wrong_kind"
	CodeEnumMismatch       ViolationCode = "enum_mismatch"
	CodeOutOfRange         ViolationCode = "out_of_range"
	CodeEmptyPaths         ViolationCode = "empty_paths"
	CodeInvalidPath        ViolationCode = "invalid_path"
	CodeUnresolvedTarget   ViolationCode = "unresolved_target"
	CodeUnresolvedEndpoint ViolationCode = "unresolved_endpoint"
)

// Violation is one structured validation failure.
type Violation struct {
	Code       ViolationCode `json:"code"`
	BlockID    string        `json:"blockId,omitempty"`
	Connection *Connection   `json:"connection,omitempty"`
	Field      string        `json:"field,omitempty"`
	Message    string        `json:"message"`
}

func (v Violation) String() string {
	switch {
	case v.Connection != nil:
		return fmt.Sprintf("connection %s->%s: %s", v.Connection.From, v.Connection.To, v.Message)
	case v.Field != "" && v.BlockID == "":
		return fmt.Sprintf("field %q: %s", v.Field, v.Message)
	case v.Field != "":
		return fmt.Sprintf("block %q field %q: %s", v.BlockID, v.Field, v.Message)
	default:
		return fmt.Sprintf("block %q: %s", v.BlockID, v.Message)
	}
}

// Validate checks doc against the registry. It returns nil when the
// document is valid, otherwise the violations in document order. The
// document is never modified.
func (r *Registry) Validate(doc *Document) []Violation {
	if doc == nil {
		return nil
	}
	var out []Violation
	ids := doc.BlockIDs()
	seen := make(map[string]bool, len(doc.Blocks))

	for _, b := range doc.Blocks {
		if strings.TrimSpace(b.ID) == "" {
			out = append(out, Violation{Code: CodeEmptyID, Message: fmt.Sprintf("%s block has no id", b.Type)})
		} else if seen[b.ID] {
			out = append(out, Violation{Code: CodeDuplicateID, BlockID: b.ID, Message: "duplicate block id"})
		}
		seen[b.ID] = true

		if !r.Has(b.Type) {
			out = append(out, Violation{
				Code:    CodeUnknownType,
				BlockID: b.ID,
				Message: fmt.Sprintf("unknown block type %q", b.Type),
			})
			continue
		}
		out = append(out, r.checkConfig(b, ids)...)
	}

	for i := range doc.Connections {
		c := doc.Connections[i]
		for _, end := range []string{c.From, c.To} {
			if !ids[end] {
				out = append(out, Violation{
					Code:       CodeUnresolvedEndpoint,
					Connection: &c,
					Message:    fmt.Sprintf("endpoint %q is not a block in this workflow", end),
				})
			}
		}
	}
	return out
}

// ValidateJSON decodes raw with DecodeDocument and validates the result.
// Members that could not be decoded are reported ahead of the registry's
// violations.
func (r *Registry) ValidateJSON(raw []byte) (*Document, []Violation) {
	doc, out := DecodeDocument(raw)
	return doc, append(out, r.Validate(doc)...)
}

// checkConfig validates one block's configuration against the compiled
// schema of its type, then decodes it into its typed variant to resolve
// path targets.
func (r *Registry) checkConfig(b Block, ids map[string]bool) []Violation {
	config, err := normalizeConfig(b.Config)
	if err != nil {
		return []Violation{{Code: CodeWrongKind, BlockID: b.ID, Field: "config", Message: err.Error()}}
	}
	spec := r.specs[b.Type]
	out := schemaViolations(b.ID, spec, config, r.schemas[b.Type].Validate(config))

	typed, err := b.Typed()
	if err != nil {
		if len(out) == 0 {
			out = append(out, Violation{Code: CodeWrongKind, BlockID: b.ID, Field: "config", Message: err.Error()})
		}
		return out
	}
	if cond, ok := typed.(ConditionConfig); ok {
		for i, p := range cond.Paths {
			if p.Target != "" && !ids[p.Target] {
				out = append(out, Violation{
					Code:    CodeUnresolvedTarget,
					BlockID: b.ID,
					Field:   fmt.Sprintf("paths[%d].target", i),
					Message: fmt.Sprintf("target %q is not a block in this workflow", p.Target),
				})
			}
		}
	}
	return out
}

// normalizeConfig gives the config its JSON shape: numbers become float64,
// typed slices become []any, and null members are dropped so they count as
// missing.
func normalizeConfig(config map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("config is not valid JSON: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("config is not valid JSON: %w", err)
	}
	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	return out, nil
}

// schemaError is one keyword failure reported by the schema evaluator.
type schemaError struct {
	path    []string
	keyword string
	message string
}

// collectErrors flattens an evaluation result. Keywords that only aggregate
// failures of nested values are skipped, and a type failure hides the other
// failures at the same location.
func collectErrors(res *jsonschema.EvaluationResult) []schemaError {
	var out []schemaError
	var walk func(r *jsonschema.EvaluationResult)
	walk = func(r *jsonschema.EvaluationResult) {
		if r == nil {
			return
		}
		path := pointerPath(r.InstanceLocation)
		if e, ok := r.Errors["type"]; ok {
			out = append(out, schemaError{path: path, keyword: "type", message: e.Error()})
		} else {
			for kw, e := range r.Errors {
				if kw == "properties" || kw == "items" {
					continue
				}
				out = append(out, schemaError{path: path, keyword: kw, message: e.Error()})
			}
		}
		for _, d := range r.Details {
			walk(d)
		}
	}
	walk(res)
	return out
}

func pointerPath(loc string) []string {
	loc = strings.TrimPrefix(strings.TrimPrefix(loc, "#"), "/")
	if loc == "" {
		return nil
	}
	segs := strings.Split(loc, "/")
	for i, s := range segs {
		segs[i] = strings.NewReplacer("~1", "/", "~0", "~").Replace(s)
	}
	return segs
}

// schemaViolations maps evaluator failures onto violation codes, sorts them
// by field declaration order, and drops repeats.
func schemaViolations(blockID string, spec Spec, config map[string]any, res *jsonschema.EvaluationResult) []Violation {
	if res == nil || res.Valid {
		return nil
	}
	var out []Violation
	add := func(code ViolationCode, field, msg string) {
		out = append(out, Violation{Code: code, BlockID: blockID, Field: field, Message: msg})
	}

	for _, e := range collectErrors(res) {
		switch len(e.path) {
		case 0:
			if e.keyword != "required" {
				add(CodeWrongKind, "", e.message)
				continue
			}
			for _, f := range spec.Fields {
				if _, ok := config[f.Name]; f.Required && !ok {
					add(CodeMissingField, f.Name, "required field is missing")
				}
			}
		case 1:
			add(fieldCode(spec, e.path[0], e.keyword), e.path[0], e.message)
		default:
			field := e.path[0] + "[" + e.path[1] + "]"
			if rest := e.path[2:]; len(rest) > 0 {
				field += "." + strings.Join(rest, ".")
			}
			if e.keyword != "required" || len(e.path) != 2 {
				add(CodeInvalidPath, field, e.message)
				continue
			}
			item, _ := lookupItem(config, e.path[0], e.path[1])
			for _, key := range pathKeys {
				if _, ok := item[key]; !ok {
					add(CodeInvalidPath, field+"."+key, "path needs a "+key)
				}
			}
		}
	}

	order := func(field string) int {
		name, _, _ := strings.Cut(field, "[")
		return slices.IndexFunc(spec.Fields, func(f FieldSpec) bool { return f.Name == name })
	}
	slices.SortStableFunc(out, func(a, b Violation) int {
		return cmp.Or(
			cmp.Compare(order(a.Field), order(b.Field)),
			cmp.Compare(a.Field, b.Field),
			cmp.Compare(a.Code, b.Code),
		)
	})
	return slices.CompactFunc(out, func(a, b Violation) bool {
		return a.Code == b.Code && a.Field == b.Field
	})
}

func fieldCode(spec Spec, name, keyword string) ViolationCode {
	switch keyword {
	case "enum":
		return CodeEnumMismatch
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		return CodeOutOfRange
	case "minItems":
		if f, ok := spec.Field(name); ok && f.Kind == KindPaths {
			return CodeEmptyPaths
		}
		return CodeOutOfRange
	}
	return CodeWrongKind
}

func lookupItem(config map[string]any, field, index string) (map[string]any, bool) {
	list, _ := config[field].([]any)
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= len(list) {
		return nil, false
	}
	item, ok := list[i].(map[string]any)
	return item, ok
}
