/*
Package worker implements a single durably-executing WASM component
instance: the worker state machine, its replay-driven recovery, and
the loop that drains invocations against it.

A worker is its oplog. Deleting the oplog deletes the worker; the
wazero module instance backing it can be destroyed and reconstructed
from the oplog at any time. Worker itself is the in-memory
coordination layer on top of that log: current status, the replay
cursor, the pending-invocation queue, and the componenthost.Host
running the guest.

# Lifecycle

	Creating → Running → Suspended ⇄ Running → Exited
	                   ↘ Failed
	                   ↘ Interrupted
	                   ↘ Updating → Running (or Failed, reverted)

Worker's own methods move between Running, Suspended, Interrupted and
Failed. Creating is only the status a new Worker starts in, and no
Worker method enters Exited or Updating: pkg/update replaces a Worker
with a new one at the target version instead.

Start opens the worker's oplog (recording Create on first run),
rejects recovery if an unfinished BeginRemoteWrite is found (fatal,
per pkg/durable.UnfinishedRemoteWrite), replays recorded invocations
back through the guest until the cursor reaches live mode, then begins
draining the pending-invocation queue. Invoke accepts new work;
matching idempotency keys short-circuit to a recorded response instead
of re-running.

# Replay

replayToLive re-invokes each recorded ExportedFunctionInvoked entry
against the freshly instantiated component. Host calls the guest makes
along the way are intercepted by the same pkg/durable wrappers used in
live mode; they recognize the shared replay cursor is behind the last
committed index and return recorded results instead of executing
anything. Once the cursor passes the last committed entry, the worker
is live and new invocations execute for real.

# See Also

  - pkg/oplog for the log itself and the replay cursor
  - pkg/durable for the host-call durability contract
  - pkg/worker/componenthost for the wazero lifecycle wrapper
  - pkg/scheduler for how invocations arrive at a worker
*/
package worker
