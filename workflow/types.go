package workflow

// BlockType identifies the kind of a workflow block.
type BlockType string

// The closed set of block types.
const (
	SendMessage    BlockType = "send-message"
	Appointment    BlockType = "appointment"
	Task           BlockType = "task"
	DocumentBlock  BlockType = "document"
	Order          BlockType = "order"
	Note           BlockType = "note"
	NestedWorkflow BlockType = "nested-workflow"
	Wait           BlockType = "wait"
	Condition      BlockType = "condition"
	Loop           BlockType = "loop"
	SmartReview    BlockType = "smart-review"
	AITouch        BlockType = "ai-touch"
)

// String returns the wire name of the block type.
func (t BlockType) String() string { return string(t) }

// Type is the audience a workflow is built for.
type Type string

const (
	TypePatient  Type = "patient"
	TypePractice Type = "practice"
)

// Valid reports whether t is a known workflow type.
func (t Type) Valid() bool {
	return t == TypePatient || t == TypePractice
}

// Block is a typed unit of workflow behavior.
type Block struct {
	ID     string         `json:"id"`
	Type   BlockType      `json:"type"`
	Config map[string]any `json:"config"`
}

// Connection is a directed edge between two blocks.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Document is a complete workflow definition produced by one generation turn.
type Document struct {
	Blocks      []Block      `json:"blocks"`
	Connections []Connection `json:"connections"`
}

// BlockIDs returns the set of block ids present in the document.
func (d *Document) BlockIDs() map[string]bool {
	ids := make(map[string]bool, len(d.Blocks))
	for _, b := range d.Blocks {
		ids[b.ID] = true
	}
	return ids
}
