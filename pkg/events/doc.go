/*
Package events provides an in-memory event broker for the executor
fleet's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
fleet events to interested subscribers. It supports non-blocking publish
with buffered per-subscriber delivery, decoupling the components that
observe worker and pod lifecycle changes (API streaming, metrics) from
the components that drive them (pkg/worker, pkg/shardmanager, pkg/api).

# Core Components

Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via Stop

Event:
  - Type: worker.created, pod.down, shards.assigned, etc.
  - Timestamp: when the event occurred
  - Message: human-readable description
  - Metadata: key-value pairs for additional context

Subscriber: a buffered channel of *Event, created via Broker.Subscribe
and closed via Broker.Unsubscribe. A subscriber with a full buffer skips
new events rather than blocking the broadcast loop.

# Event Types

Worker lifecycle (published from pkg/worker.Worker's state transitions):
  - worker.running, worker.suspended, worker.interrupted, worker.failed
  - worker.created, worker.exited and worker.updating are defined, but
    no Worker transition enters Creating, Exited or Updating, so they
    are not published

Pods (published from pkg/shardmanager.ShardManager):
  - pod.registered, pod.down

Shards (published from pkg/api's AssignShards/RevokeShards handlers):
  - shards.assigned, shards.revoked

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s: %s\n", event.Timestamp.Format("15:04:05"), event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventWorkerFailed,
		Message: "worker comp-1/w-1 entered failed state",
		Metadata: map[string]string{"worker_id": "comp-1/w-1"},
	})

# Limitations

Delivery is in-memory, best-effort and unordered across subscribers: a
restart loses any events not yet consumed, and a slow subscriber drops
events rather than stalling publishers. Callers that need a durable
record of what happened to a worker should read its oplog instead —
events exist for live observability, not as a source of truth.
*/
package events
