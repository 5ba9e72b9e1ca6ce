/*
Package ports defines the driven ports (interfaces) of the weft engine.

These interfaces decouple the executor from storage backends, workflow sources,
and the external collaborators that actually perform work.

# Key Interfaces

  - WorkflowLoader: Retrieves workflow sources (e.g., from Loam or Memory).
  - RunStore: Persists and lists Run records for checkpointing and resume.
  - LogStore: Captures per-run log lines.
  - DistributedLocker: Serializes checkpoint writers across replicas.
  - AgentExecutor, ShellRunner, PromptLibrary: Collaborators used by actions.
  - ConditionEvaluator: Evaluates custom transition expressions.
*/
package ports
