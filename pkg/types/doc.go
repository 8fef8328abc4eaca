/*
Package types defines the core data structures shared across Golem's
durable execution engine.

This package contains the fundamental types that represent a worker's
identity, its oplog, its cached status, and the shard manager's routing
table. These types are used by pkg/oplog, pkg/durable, pkg/worker,
pkg/scheduler, pkg/shardmanager and pkg/update for state management and
RPC translation.

# Architecture

The types package is the foundation of the engine's data model. It defines:

  - Worker identity and versioning (WorkerId, ComponentId, ComponentVersion)
  - The oplog entry tagged union (OplogEntry, OplogEntryKind)
  - Cached worker status (WorkerMetadata, WorkerStatus)
  - Durability classification for host calls (DurableFunctionType)
  - Update requests (UpdateDescription, UpdateMode)
  - Shard assignment (ShardId, Pod, RoutingTable)

All types are designed to be:
  - Serializable (JSON for storage, Protocol Buffers for RPC)
  - Self-documenting (clear field names and comments)
  - Validated (named string constants for every enum-like field)

# Core Types

Worker Identity:
  - WorkerId: (ComponentId, worker name), stable for the worker's lifetime
  - ComponentId / ComponentVersion: an immutable WASM component artifact
  - OplogIndex: per-worker monotone counter starting at 1

Oplog:
  - OplogEntry: tagged union of every event that can happen to a worker
  - OplogEntryKind: the tag discriminating OplogEntry
  - OplogRegion: closed index range used by Jump and atomic/remote-write brackets
  - Invocation: an exported function call, queued or scheduled
  - PayloadRef: inline bytes or a blob storage reference for large payloads

Status:
  - WorkerMetadata: cached (status, last_known_oplog_index, ...) view
  - WorkerStatus: Creating, Running, Suspended, Interrupted, Failed, Exited, Updating
  - RetryPolicy: exponential back-off parameters for automatic restarts

Sharding:
  - ShardId: one of N hash buckets
  - Pod: an executor process registered with the shard manager
  - RoutingTable: the current partition of shards across pods

# Usage

Creating a worker's first oplog entry:

	entry := types.OplogEntry{
		Kind:             types.EntryCreate,
		Timestamp:        time.Now(),
		WorkerId:         types.WorkerId{ComponentId: compID, WorkerName: "cart-1"},
		ComponentVersion: 1,
		Args:             []string{},
		Env:              map[string]string{},
	}

Recording a host call:

	entry := types.OplogEntry{
		Kind:                types.EntryImportedFunctionInvoked,
		Timestamp:           time.Now(),
		FunctionName:        "golem:http/outgoing-handler.handle",
		Request:             types.InlinePayload(reqBytes),
		Response:            types.InlinePayload(respBytes),
		DurableFunctionType: types.WriteRemote,
	}

Assigning a shard:

	table := types.NewRoutingTable(1024)
	table.Assign(pod, workerID.ShardOf(table.NumberOfShards))

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type WorkerStatus string
	  const (
	      WorkerStatusRunning WorkerStatus = "running"
	  )

Tagged Union Pattern:

	OplogEntry has no nested sum type; every variant's fields live flat on
	one struct, discriminated by Kind. Only the fields relevant to that
	Kind are populated, mirroring how this package already represents
	other variant data with optional fields rather than nested enums.

# Thread Safety

All types in this package are plain data and carry no synchronization.
Callers (pkg/oplog, pkg/worker, pkg/shardmanager) own the locking.

# See Also

  - pkg/oplog for the append-only log built from OplogEntry
  - pkg/storage for the indexed/blob storage these types are kept in
  - pkg/shardmanager for how RoutingTable is computed and distributed
*/
package types
