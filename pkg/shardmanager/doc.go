/*
Package shardmanager assigns the fixed set of shards to the executor
pods currently registered, and keeps that assignment durable in redis.

State is exactly (number_of_shards, assignments, pending_rebalance),
grounded on original_source/golem-shard-manager/src/model.rs's
RoutingTable/Rebalance pair, persisted after every change the same way
the Rust service persists to redis before and after each rebalance
phase.

# Responsibilities

  - Register: a pod declares itself; anti-spoofing checks its declared
    host:port resolves to the gRPC peer's observed source address.
  - GetRoutingTable: return the current assignment snapshot.
  - Health check loop: periodically RPC every registered pod; remove
    unresponsive ones and trigger a rebalance.
  - Rebalance: compute a target assignment leaving no shard unassigned
    while at least one healthy pod exists, minimizing movement and
    balancing load to within one shard per pod. Executed durably in
    three phases (plan, revoke, assign) so a crash mid-rebalance leaves
    a recoverable plan rather than a corrupted table.

# See Also

  - original_source/golem-shard-manager for the algorithm this package
    is a direct Go translation of
  - pkg/health for the consecutive-failure status tracking reused here
  - pkg/reconciler for the ticking read-state/detect-drift/act loop this
    package's health-check and rebalance-trigger loops are grounded on
*/
package shardmanager
