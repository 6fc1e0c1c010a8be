package workflow

import (
	"encoding/json"
	"fmt"
)

// DecodeDocument converts a JSON object into a Document without failing on
// wrong-typed members. Blocks and connections that cannot be read are left
// out of the document and reported as CodeWrongKind violations, so the
// caller can surface them next to the registry's own checks.
func DecodeDocument(raw []byte) (*Document, []Violation) {
	var top struct {
		Blocks      json.RawMessage `json:"blocks"`
		Connections json.RawMessage `json:"connections"`
	}
	doc := &Document{}
	if err := json.Unmarshal(raw, &top); err != nil {
		return doc, []Violation{wrongKind("", "", "workflow must be an object: %v", err)}
	}

	var out []Violation
	var blocks []json.RawMessage
	if err := unmarshalPresent(top.Blocks, &blocks); err != nil {
		out = append(out, wrongKind("", "blocks", "expected list of blocks: %v", err))
	}
	if blocks != nil {
		doc.Blocks = make([]Block, 0, len(blocks))
	}
	for i, rawBlock := range blocks {
		b, v := decodeBlock(i, rawBlock)
		if v != nil {
			out = append(out, *v)
			continue
		}
		doc.Blocks = append(doc.Blocks, b)
	}

	var conns []json.RawMessage
	if err := unmarshalPresent(top.Connections, &conns); err != nil {
		out = append(out, wrongKind("", "connections", "expected list of connections: %v", err))
	}
	if conns != nil {
		doc.Connections = make([]Connection, 0, len(conns))
	}
	for i, rawConn := range conns {
		var c Connection
		if err := json.Unmarshal(rawConn, &c); err != nil {
			out = append(out, wrongKind("", fmt.Sprintf("connections[%d]", i), "unreadable connection: %v", err))
			continue
		}
		doc.Connections = append(doc.Connections, c)
	}
	return doc, out
}

func decodeBlock(i int, raw json.RawMessage) (Block, *Violation) {
	var fields struct {
		ID     json.RawMessage `json:"id"`
		Type   json.RawMessage `json:"type"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		v := wrongKind("", fmt.Sprintf("blocks[%d]", i), "block must be an object: %v", err)
		return Block{}, &v
	}

	var b Block
	if err := unmarshalPresent(fields.ID, &b.ID); err != nil {
		v := wrongKind("", fmt.Sprintf("blocks[%d].id", i), "id must be a string, got %s", fields.ID)
		return Block{}, &v
	}
	if err := unmarshalPresent(fields.Type, &b.Type); err != nil {
		v := wrongKind(b.ID, "type", "type must be a string, got %s", fields.Type)
		return Block{}, &v
	}
	if err := unmarshalPresent(fields.Config, &b.Config); err != nil {
		v := wrongKind(b.ID, "config", "config must be an object, got %s", fields.Config)
		return Block{}, &v
	}
	return b, nil
}

// unmarshalPresent leaves v untouched when the member was absent.
func unmarshalPresent(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func wrongKind(blockID, field, format string, args ...any) Violation {
	return Violation{Code: CodeWrongKind, BlockID: blockID, Field: field, Message: fmt.Sprintf(format, args...)}
}
