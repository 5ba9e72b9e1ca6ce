/*
Package dsl provides a Go DSL for programmatically constructing weft workflows.

It allows developers to define workflows with a fluent builder instead of
writing stateDiagram-v2 source. The result is validated with the same graph
analyzer used for diagrams. It is particularly useful for embedding, tests, and
dynamically generated workflows.

Example usage:

	b := dsl.New("deploy")

	b.Start("Build").
		Shell("make build").
		OnSuccess("Approve").
		OnFailure("Failed")

	b.State("Approve").
		WaitFor("approved", time.Hour).
		Go("Done")

	b.End("Done")
	b.End("Failed")

	loader, err := b.Build() // a memory.Loader usable with weft.New
*/
package dsl
