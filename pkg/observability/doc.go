/*
Package observability provides tools for monitoring the weft executor.

Compose fans a set of domain.LifecycleHooks out to several observers, isolating
each from the panics of the others. TracingHooks emits OpenTelemetry spans: one
per run, with a child span per state visit and per action.
*/
package observability
