/*
Package client provides typed Go wrappers over the WorkerExecutor and
ShardManager gRPC services for CLI and inter-process use.

# Architecture

	┌──────────────── APPLICATION / CLI CODE ───────────────────┐
	│                                                            │
	│  exec, err := client.NewExecutorClient("executor-1:9090")  │
	│  err = exec.CreateWorker(ctx, id, version, nil, nil, "")    │
	│                                                            │
	│  sm, err := client.NewShardManagerClient("shardmgr:9091")  │
	│  rt, err := sm.GetRoutingTable(ctx)                         │
	│                                                            │
	└───────────────────────┬────────────────────────────────────┘
	                        │ gRPC (mTLS)
	          ┌─────────────┴─────────────┐
	          ▼                           ▼
	  WorkerExecutor service       ShardManager service

ExecutorClient and ShardManagerClient each hold one *grpc.ClientConn
and the corresponding generated client stub; both connect with mTLS via
the shared connectWithMTLS helper, using whatever CLI certificate
pkg/security.GetCLICertDir locates.

# Usage

	exec, err := client.NewExecutorClient("localhost:9090")
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close()

	id := types.WorkerId{ComponentId: "my-component", WorkerName: "worker-1"}
	if err := exec.CreateWorker(ctx, id, 1, nil, nil, ""); err != nil {
		log.Fatal(err)
	}

	response, err := exec.InvokeAndAwait(ctx, id, "run", payload, "req-1", nil)

# Certificate handling

Unlike a join-token-bootstrapped worker or executor, the CLI's
certificate is provisioned out of band by an operator invoking the
fleet CA directly (pkg/security.CertAuthority.IssueClientCertificate)
rather than over an RPC — golem's gRPC surface has no certificate-
issuance method, only the workload RPCs themselves. NewExecutorClient
and NewShardManagerClient both fail fast with a clear error if no
certificate exists yet in the standard CLI cert directory.

# Error handling

Every method returns the first of: the raw gRPC transport error (auth
failure, connection refused, deadline exceeded), or an error wrapping
the response's Error.Message when the RPC itself succeeded but the
operation failed. Callers that need the structured proto.Error (for an
error code, not just a message) can type-assert on the *status.Status
via status.FromError for transport-level failures; application-level
failures are reported as plain errors since the client flattens the
oneof for convenience.

# Timeouts

Methods that don't block on worker execution (CreateWorker, GetMetadata,
Interrupt, Delete, GetOplog, HealthCheck, Register, GetRoutingTable) use
a fixed ~10s context timeout internally. Invoke/InvokeAndAwait/Update
accept the caller's context as-is since invocation and update duration
is open-ended and caller-controlled.
*/
package client
