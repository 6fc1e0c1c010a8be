// Package careflow turns natural-language requests into structured
// automation-workflow definitions and makes narrow runtime decisions
// (branch conditions, loop continuation) by delegating reasoning to a
// text-generation provider and interpreting its output.
//
// The root package holds the provider-neutral chat types shared by every
// other package: [Message], [Response], [StreamEvent], [Options] and the
// [ChatProvider] interface, plus categorized errors.
//
// # Packages
//
//   - [github.com/spetersoncode/careflow/assembler]: splits a live token
//     stream into chat prose and one embedded workflow document
//   - [github.com/spetersoncode/careflow/workflow]: blocks, connections,
//     the block schema registry and the graph validator
//   - [github.com/spetersoncode/careflow/decision]: condition and loop
//     decisions extracted from model output
//   - [github.com/spetersoncode/careflow/conversation]: bounded prompt
//     context for a chat session
//   - [github.com/spetersoncode/careflow/cache]: content-addressed response
//     cache with time-based expiry
//   - [github.com/spetersoncode/careflow/generator]: the per-session
//     workflow generation flow
//   - [github.com/spetersoncode/careflow/client]: provider access
//
// # Streaming Generation
//
//	c := client.New(client.Config{
//	    APIKeys:  client.APIKeys{Anthropic: os.Getenv("ANTHROPIC_API_KEY")},
//	    Defaults: client.Defaults{Chat: model.ClaudeSonnet45},
//	})
//
//	session := generator.NewSession(c, workflow.DefaultRegistry())
//	for ev := range session.Generate(ctx, generator.Request{
//	    Message:      "Create a patient intake workflow",
//	    WorkflowType: workflow.TypePatient,
//	}) {
//	    switch ev.Type {
//	    case event.ChatMessage:
//	        fmt.Print(ev.Content)
//	    case event.WorkflowCreated:
//	        fmt.Println(len(ev.Workflow.Blocks), "blocks")
//	    }
//	}
package careflow
