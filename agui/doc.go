// Package agui exposes workflow generation over the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol for connecting
// agents to user-facing applications. This package converts generation
// events into AG-UI events and AG-UI run input into a generation request;
// transport is left to the caller.
//
// # Usage
//
//	prepared, err := input.Prepare()
//	mapper := agui.NewMapper(prepared.ThreadID, prepared.RunID)
//	for e := range session.Generate(ctx, prepared.Request) {
//	    for _, ev := range mapper.Map(e) {
//	        writeEvent(ev)
//	    }
//	}
//
// # Event Mapping
//
//   - processing_started → RUN_STARTED
//   - chat_message → TEXT_MESSAGE_START (first fragment), TEXT_MESSAGE_CONTENT
//   - workflow_created → TOOL_CALL_START, TOOL_CALL_ARGS, TOOL_CALL_END for
//     the create_workflow tool, with the document and violations as arguments
//   - generation_complete → RUN_FINISHED
//   - error → RUN_ERROR
//
// An open text message is closed with TEXT_MESSAGE_END before any tool call
// or terminal event.
//
// The Mapper is not safe for concurrent use. Message conversion functions
// are stateless.
package agui
