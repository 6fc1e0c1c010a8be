// Package workflow defines workflow documents (blocks and connections), the
// closed block schema registry and the graph validator.
//
// A [Document] is what the generator extracts from model output. It is
// checked against a [Registry] with [Registry.Validate], which reports every
// problem as a [Violation] instead of failing on the first one:
//
//	reg := workflow.DefaultRegistry()
//	if violations := reg.Validate(doc); len(violations) > 0 {
//	    for _, v := range violations {
//	        fmt.Println(v)
//	    }
//	}
//
// The same registry renders the block documentation embedded in generation
// prompts ([Registry.PromptDoc]) so the model is asked for exactly the
// configuration the validator accepts.
//
// Once a block validates, [Block.Typed] decodes its configuration into the
// closed [Config] variant for the block's type.
package workflow
