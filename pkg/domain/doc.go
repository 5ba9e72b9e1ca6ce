/*
Package domain contains the core domain model of the weft engine.

It defines the workflow graph (States and Transitions), the closed set of
actions a state or transition can carry, and the Run record that captures one
execution of a workflow. The package is free of I/O and persistence concerns.

# Key Entities

  - WorkflowDefinition: an immutable graph of States and ordered Transitions.
  - ActionSpec: a tagged union over the supported action kinds.
  - Run: the mutable, persisted snapshot of one execution (status, context, history).
  - LifecycleHooks: passive observer callbacks emitted by the executor.
*/
package domain
