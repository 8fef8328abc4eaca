/*
Package api implements the gRPC services an executor and a shard
manager process expose to the rest of the fleet, plus the shared HTTP
health/readiness/metrics endpoints both roles serve.

# Architecture

Two process roles, two gRPC services, one health surface:

	┌────────────── CLI / other executor ─────────────┐
	│         gRPC client (mTLS)                       │
	└──────────────────┬────────────────────────────────┘
	                   │
	       ┌───────────┴────────────┐
	       │                        │
	┌──────▼──────────┐   ┌─────────▼──────────┐
	│  ExecutorServer   │   │ ShardManagerServer  │
	│  (WorkerExecutor) │   │  (ShardManager)     │
	│  - CreateWorker   │   │  - Register         │
	│  - Invoke(AndAwait│   │  - GetRoutingTable   │
	│  - GetMetadata    │   └─────────────────────┘
	│  - Interrupt      │
	│  - Delete         │
	│  - Update         │
	│  - GetOplog       │
	│  - Assign/Revoke  │
	│    Shards         │
	│  - HealthCheck    │
	└───────────────────┘

ExecutorServer wraps a pkg/scheduler.Registry of live pkg/worker.Worker
instances; ShardManagerServer wraps a pkg/shardmanager.ShardManager.
A process runs exactly one of the two gRPC services, but both roles
serve the same HealthServer (/health, /ready, /metrics).

# gRPC services

WorkerExecutor (one executor process, a subset of the fleet's workers):
  - CreateWorker: start a new worker from a component version
  - Invoke / InvokeAndAwait: enqueue an invocation, optionally block for
    its result
  - GetMetadata: point-in-time worker status snapshot
  - Interrupt: request graceful cancellation of in-flight work
  - Delete: stop and unregister a worker
  - Update: automatic (replay-on-new-version) or snapshot-based live
    update to a new component version
  - GetOplog: read a range of a worker's durable event log
  - AssignShards / RevokeShards: called by the shard manager whenever
    this pod's shard ownership changes
  - HealthCheck: liveness probe used by the shard manager's pod
    health loop

ShardManager (one process owning the routing table):
  - Register: a pod joins the fleet, receives its initial shard set
  - GetRoutingTable: current shard→pod assignment snapshot

# Usage

Starting an executor's gRPC server:

	srv, err := api.NewExecutorServer(podID, api.ExecutorConfig{
		Workers:        registry,
		Oplogs:         oplogs,
		Blob:           blob,
		LoadComponent:  loader,
		Updater:        updater,
		Events:         broker,
		RetryPolicy:    types.DefaultRetryPolicy(),
		NumberOfShards: numberOfShards,
	})
	if err != nil {
		log.Fatal(err)
	}
	go srv.Start("0.0.0.0:9090")

Starting the shard manager's gRPC server follows the same shape with
api.NewShardManagerServer(podID, shardManager).

# mTLS

Both NewExecutorServer and NewShardManagerServer load a pod certificate
and the fleet CA certificate from pkg/security (see
security.GetCertDir/LoadCertFromFile/LoadCACertFromFile), then build a
tls.Config requesting (not requiring) a client certificate — individual
RPCs that need to verify caller identity do so explicitly rather than
relying on the listener to reject unauthenticated connections outright.
TLS 1.3 is the floor.

# Errors

RPC handlers never return a raw error for application-level failures:
requests that look up a worker which does not exist return a gRPC
NotFound status (except Delete, which reports ERROR_CODE_NOT_FOUND in
its response's Failure), while the rest of the surface reports failure inside
the response message itself via the proto Error{code, message} oneof
variant, matching the pattern of the generated *Response types (a
oneof of success/failure). This lets a client distinguish "the RPC
itself failed" (network, auth) from "the operation failed" (worker
already exists, update diverged) without parsing error strings.

# Metrics

CreateWorker, Invoke and InvokeAndAwait on the executor, and Register
and GetRoutingTable on the shard manager, increment
api_requests_total{method,status} and observe
api_request_duration_seconds{method} via pkg/metrics; the other RPCs
record no request metrics. See that package's doc for the full
catalog.

# ReadOnlyInterceptor

A local Unix-socket listener (for low-friction CLI access without
certificates) should install ReadOnlyInterceptor, which rejects any
method not matching a read-only prefix (List/Get/Inspect/Watch/
Describe/Show) or explicitly allow-listed (HealthCheck). Mutating
calls still require a TCP connection with mTLS.
*/
package api
