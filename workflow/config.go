package workflow

import (
	"encoding/json"
	"fmt"
)

// Config is the typed configuration of a block. The set of implementations
// is closed: one struct per registered block type.
type Config interface {
	BlockType() BlockType
	sealed()
}

type SendMessageConfig struct {
	Channel  string `json:"channel"`
	Message  string `json:"message"`
	Template string `json:"template,omitempty"`
}

type AppointmentConfig struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
	Provider string  `json:"provider,omitempty"`
}

type TaskConfig struct {
	Title     string  `json:"title"`
	Assignee  string  `json:"assignee"`
	Priority  string  `json:"priority"`
	DueInDays float64 `json:"dueInDays,omitempty"`
}

type DocumentConfig struct {
	DocumentType     string `json:"documentType"`
	Title            string `json:"title"`
	RequireSignature bool   `json:"requireSignature"`
}

type OrderConfig struct {
	OrderType string `json:"orderType"`
	Details   string `json:"details"`
}

type NoteConfig struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

type NestedWorkflowConfig struct {
	WorkflowID string `json:"workflowId"`
}

type WaitConfig struct {
	WaitType string  `json:"waitType"`
	Duration float64 `json:"duration"`
	Unit     string  `json:"unit"`
	Event    string  `json:"event,omitempty"`
}

// Path is one branch of a condition block.
type Path struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
}

type ConditionConfig struct {
	ConditionType string `json:"conditionType,omitempty"`
	Description   string `json:"description"`
	Paths         []Path `json:"paths"`
}

type LoopConfig struct {
	LoopType       string  `json:"loopType,omitempty"`
	MaxIterations  float64 `json:"maxIterations"`
	ContinueRule   string  `json:"continueRule"`
	BreakRule      string  `json:"breakRule"`
	EscalationRule string  `json:"escalationRule,omitempty"`
}

type SmartReviewConfig struct {
	ReviewType        string  `json:"reviewType"`
	AIAnalysis        bool    `json:"aiAnalysis"`
	EscalationTimeout float64 `json:"escalationTimeout,omitempty"`
	EscalateTo        string  `json:"escalateTo,omitempty"`
}

type AITouchConfig struct {
	AnalysisType        string  `json:"analysisType"`
	Action              string  `json:"action"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
}

func (SendMessageConfig) BlockType() BlockType    { return SendMessage }
func (AppointmentConfig) BlockType() BlockType    { return Appointment }
func (TaskConfig) BlockType() BlockType           { return Task }
func (DocumentConfig) BlockType() BlockType       { return DocumentBlock }
func (OrderConfig) BlockType() BlockType          { return Order }
func (NoteConfig) BlockType() BlockType           { return Note }
func (NestedWorkflowConfig) BlockType() BlockType { return NestedWorkflow }
func (WaitConfig) BlockType() BlockType           { return Wait }
func (ConditionConfig) BlockType() BlockType      { return Condition }
func (LoopConfig) BlockType() BlockType           { return Loop }
func (SmartReviewConfig) BlockType() BlockType    { return SmartReview }
func (AITouchConfig) BlockType() BlockType        { return AITouch }

func (SendMessageConfig) sealed()    {}
func (AppointmentConfig) sealed()    {}
func (TaskConfig) sealed()           {}
func (DocumentConfig) sealed()       {}
func (OrderConfig) sealed()          {}
func (NoteConfig) sealed()           {}
func (NestedWorkflowConfig) sealed() {}
func (WaitConfig) sealed()           {}
func (ConditionConfig) sealed()      {}
func (LoopConfig) sealed()           {}
func (SmartReviewConfig) sealed()    {}
func (AITouchConfig) sealed()        {}

// Typed decodes the block's raw configuration into its typed variant.
// Unknown fields are ignored. A value of the wrong JSON type fails the
// decode; Registry.Validate reports those through the block schema.
func (b Block) Typed() (Config, error) {
	raw, err := json.Marshal(b.Config)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode config of %q: %w", b.ID, err)
	}
	switch b.Type {
	case SendMessage:
		return decodeConfig[SendMessageConfig](b.ID, raw)
	case Appointment:
		return decodeConfig[AppointmentConfig](b.ID, raw)
	case Task:
		return decodeConfig[TaskConfig](b.ID, raw)
	case DocumentBlock:
		return decodeConfig[DocumentConfig](b.ID, raw)
	case Order:
		return decodeConfig[OrderConfig](b.ID, raw)
	case Note:
		return decodeConfig[NoteConfig](b.ID, raw)
	case NestedWorkflow:
		return decodeConfig[NestedWorkflowConfig](b.ID, raw)
	case Wait:
		return decodeConfig[WaitConfig](b.ID, raw)
	case Condition:
		return decodeConfig[ConditionConfig](b.ID, raw)
	case Loop:
		return decodeConfig[LoopConfig](b.ID, raw)
	case SmartReview:
		return decodeConfig[SmartReviewConfig](b.ID, raw)
	case AITouch:
		return decodeConfig[AITouchConfig](b.ID, raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, b.Type)
}

func decodeConfig[C Config](id string, raw []byte) (Config, error) {
	var c C
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("workflow: decode config of %q: %w", id, err)
	}
	return c, nil
}
