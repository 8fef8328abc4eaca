/*
Package update implements the two ways a worker moves to a new component
version without losing durable state.

Automatic update replays the worker's existing oplog onto the new
component version — which is exactly what worker.Worker.Start already
does, so RunAutomatic simply starts a second Worker bound to the same
oplog at the target version and watches whether replay reaches live mode
cleanly or diverges. Snapshot-based update instead asks the old version's
guest to serialize its own state (save-snapshot), stashes the result as a
blob-storage payload, and starts the new version from that snapshot
instead of from a full replay (worker.Worker.StartFromSnapshot).

RequestUpdate records a PendingUpdate oplog entry, and PendingTarget
reports the most recent one not yet resolved. The executor's Update RPC
does not go through either: it calls RunAutomatic or RunSnapshot
directly, and nothing reads PendingTarget when a worker is (re)started.
*/
package update
