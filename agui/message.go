package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/careflow"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ToMessages converts AG-UI messages to careflow messages. Messages without
// content, such as tool results, are skipped.
func ToMessages(msgs []events.Message) []careflow.Message {
	result := make([]careflow.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content == nil || *msg.Content == "" {
			continue
		}
		result = append(result, ToMessage(msg))
	}
	return result
}

// ToMessage converts a single AG-UI message to a careflow message.
func ToMessage(msg events.Message) careflow.Message {
	m := careflow.Message{
		ID:   msg.ID,
		Role: toRole(msg.Role),
	}
	if msg.Content != nil {
		m.Content = *msg.Content
	}
	return m
}

// FromMessages converts careflow messages to AG-UI messages.
func FromMessages(msgs []careflow.Message) []events.Message {
	result := make([]events.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, FromMessage(msg))
	}
	return result
}

// FromMessage converts a single careflow message to an AG-UI message,
// generating an ID when the message has none.
func FromMessage(msg careflow.Message) events.Message {
	id := msg.ID
	if id == "" {
		id = events.GenerateMessageID()
	}
	m := events.Message{
		ID:   id,
		Role: fromRole(msg.Role),
	}
	if msg.Content != "" {
		content := msg.Content
		m.Content = &content
	}
	return m
}

func toRole(role string) careflow.Role {
	switch role {
	case RoleAssistant:
		return careflow.RoleAssistant
	case RoleSystem:
		return careflow.RoleSystem
	default:
		return careflow.RoleUser
	}
}

func fromRole(role careflow.Role) string {
	switch role {
	case careflow.RoleAssistant:
		return RoleAssistant
	case careflow.RoleSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}
