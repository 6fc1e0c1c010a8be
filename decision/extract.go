// Package decision interprets model output at workflow branch and loop
// points.
//
// Extraction never fails: text that cannot be interpreted yields a typed
// fallback. Conditions fall back to escalation so an unreadable answer never
// picks a branch; loops fall back to break so an unreadable answer never
// keeps iterating.
package decision

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Outcome is the result of a condition evaluation.
type Outcome string

const (
	OutcomeTrue     Outcome = "true"
	OutcomeFalse    Outcome = "false"
	OutcomeEscalate Outcome = "escalate"
)

// Action is the result of a loop evaluation.
type Action string

const (
	ActionContinue Action = "continue"
	ActionBreak    Action = "break"
	ActionEscalate Action = "escalate"
)

// DefaultReasoning is used when the model omits its reasoning or sends a
// non-string value. A reasoning string that is present is kept verbatim,
// even when empty.
const DefaultReasoning = "No reasoning provided."

// Condition is the decision taken at a branch point.
type Condition struct {
	Decision   Outcome  `json:"decision"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Loop is the decision taken at a loop iteration.
type Loop struct {
	Action     Action   `json:"action"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ExtractCondition reads a condition decision from model output.
func ExtractCondition(text string) Condition {
	obj, reason := locate(text)
	if reason != "" {
		return ConditionFallback("Could not parse model response: " + reason)
	}

	d := Condition{
		Decision:   OutcomeEscalate,
		Reasoning:  reasoning(obj),
		Confidence: confidence(obj),
	}
	switch word(obj.Get("decision")) {
	case "true":
		d.Decision = OutcomeTrue
	case "false":
		d.Decision = OutcomeFalse
	}
	return d
}

// ExtractLoop reads a loop decision from model output.
func ExtractLoop(text string) Loop {
	obj, reason := locate(text)
	if reason != "" {
		return LoopFallback("Could not parse model response: " + reason)
	}

	d := Loop{
		Action:     ActionBreak,
		Reasoning:  reasoning(obj),
		Confidence: confidence(obj),
	}
	switch word(obj.Get("action")) {
	case "continue":
		d.Action = ActionContinue
	case "escalate":
		d.Action = ActionEscalate
	}
	return d
}

// ConditionFallback is the escalating decision used when no answer could be
// obtained.
func ConditionFallback(reason string) Condition {
	return Condition{Decision: OutcomeEscalate, Reasoning: reason, Confidence: zero()}
}

// LoopFallback is the breaking decision used when no answer could be
// obtained.
func LoopFallback(reason string) Loop {
	return Loop{Action: ActionBreak, Reasoning: reason, Confidence: zero()}
}

// locate slices text from the first '{' to the last '}' and parses it. A
// non-empty reason describes why no object was found.
func locate(text string) (gjson.Result, string) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return gjson.Result{}, "no JSON object found"
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return gjson.Result{}, "invalid JSON"
	}
	return gjson.Parse(raw), ""
}

func word(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.ToLower(strings.TrimSpace(r.Str))
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	}
	return ""
}

func reasoning(obj gjson.Result) string {
	r := obj.Get("reasoning")
	if r.Type != gjson.String {
		return DefaultReasoning
	}
	return r.Str
}

func confidence(obj gjson.Result) *float64 {
	r := obj.Get("confidence")
	if r.Type != gjson.Number {
		return nil
	}
	c := min(max(r.Num, 0), 1)
	return &c
}

func zero() *float64 {
	var z float64
	return &z
}
