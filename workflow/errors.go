package workflow

import (
	"errors"
	"fmt"
)

// ErrUnknownBlockType indicates a block type outside the registry.
var ErrUnknownBlockType = errors.New("workflow: unknown block type")

// RegistryError reports a malformed registry table.
type RegistryError struct {
	Type  BlockType
	Field string
	Msg   string
}

func (e *RegistryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("workflow: registry entry %q field %q: %s", e.Type, e.Field, e.Msg)
	}
	return fmt.Sprintf("workflow: registry entry %q: %s", e.Type, e.Msg)
}
