/*
Package scheduler delivers scheduled invocations to their worker once
they come due.

An invocation with a future ScheduledFor does not sit in a worker's own
pending queue; it lives in a ScheduleStore, a structure sorted by due
time, until the Scheduler's polling loop transfers it into the target
worker's queue via Worker.Invoke. This keeps a worker's own oplog free
of invocations that may be hours or days away, and lets a single
scheduler serve invocations destined for workers that are not even
running yet.

# Loop

	┌───────────────────────────────────┐
	│         Scheduler.run             │
	│        (every interval)           │
	└────────────────┬──────────────────┘
	                 │
	                 ▼
	┌───────────────────────────────────┐
	│ store.DueBefore(now)              │
	│ for each due item:                │
	│   look up its worker              │
	│   worker.Invoke(item.Invocation)  │
	│   store.Remove(item) on success   │
	└───────────────────────────────────┘

A worker that isn't registered yet, or that returns an error from
Invoke, simply leaves its item in the store for the next tick to retry.

# See Also

  - pkg/worker for the per-worker pending queue scheduled invocations
    eventually land in
  - pkg/shardmanager for which executor a given worker currently lives on
*/
package scheduler
