/*
Package checkpoint serializes access to persisted runs.

A Manager wraps a ports.RunStore with a per-run mutex (reference counted, so
locks for finished runs are garbage collected) and, optionally, a
ports.DistributedLocker so that replicas sharing a store never write the same
run concurrently.

Checkpoint is the write used by the executor after every step. It re-reads the
stored record first: when another process marked the run cancelled, the write
is refused with ErrExternallyCancelled and the caller stops driving the run.
*/
package checkpoint
