/*
Package metrics turns executor lifecycle hooks into execution statistics.

Collector keeps an in-memory summary per workflow and state, suitable for
`weft status` style introspection and tests. PrometheusCollector exports the
same signals as Prometheus series:

	weft_runs_total{workflow,status}
	weft_state_executions_total{workflow,state}
	weft_state_duration_seconds{workflow,state}
	weft_action_duration_seconds{kind}
	weft_runs_active

Both are passive observers: combine them with observability.Compose and pass
the result to weft.WithLifecycleHooks.
*/
package metrics
