/*
Package weft is a workflow orchestration engine driven by Mermaid state diagrams.

A workflow is a stateDiagram-v2 whose states carry actions written in a small
action language (Prompt, Shell, Run workflow, Wait, Set, Log) and whose edges
carry conditions (always, never, on_success, on_failure, or a CEL expression).
The engine parses and validates the diagram, then drives runs through it one
state at a time, checkpointing every step.

# Concept

A Run is one execution of a workflow: its current state, its context (a map of
variables visible to templates and conditions), and its history. Runs are
persisted through a RunStore (memory, file or redis), so they can be inspected,
signalled, cancelled or resumed from another process.

# Usage

	eng, err := weft.New("./project")
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Shutdown(context.Background())

	run, err := eng.Run(ctx, "release", map[string]any{"version": "1.2.0"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(run.Status)

The project directory holds workflows/<name>.md (frontmatter plus a mermaid
block) and prompts/<name>.md. Use WithLoader to embed workflows instead, for
example with memory.NewLoader or the pkg/dsl builder.
*/
package weft
