/*
Package runtime drives workflow runs.

The Executor takes a validated workflow (validator.Workflow) and a Run, and
advances the run one state at a time:

 0. stop as cancelled when the run context is done
 1. complete the run on an End state
 2. execute the state action, if any
 3. select the first matching outgoing transition
 4. execute the transition action, if any
 5. advance and checkpoint
 6. fail with NoMatchingTransition when nothing matched

Actions (prompt, shell, subworkflow, wait, set, log) are dispatched through an
exhaustive switch. Their string fields are rendered with text/template against
the run context before execution.

The Executor never retries. Action backends own their retry policy.
*/
package runtime
