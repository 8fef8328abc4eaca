/*
Package health turns a stream of pass/fail results into a
hysteresis-smoothed healthy/unhealthy signal for a polled dependency.

It does not perform checks itself — the caller decides how to probe
whatever it's watching (an RPC, a query, anything returning pass/fail)
and feeds the outcome into a Status. pkg/shardmanager's HealthLoop is
the package's one caller: it polls every registered pod over the
ShardManager/WorkerExecutor gRPC surface and keeps one Status per pod,
removing a pod from the routing table only once its Status flips to
unhealthy.

# Core Components

## Result

A single check's outcome:

	type Result struct {
		Healthy   bool
		Message   string
		CheckedAt time.Time
		Duration  time.Duration
	}

## Config

Tuning for how a Status reacts to a stream of Results:

	type Config struct {
		Interval    time.Duration // time between checks
		Timeout     time.Duration // max time a check may take
		Retries     int           // consecutive failures before unhealthy
		StartPeriod time.Duration // grace period before checks count
	}

DefaultConfig returns Interval=30s, Timeout=10s, Retries=3.

## Status

Status accumulates Results into a hysteresis-smoothed health signal:

	type Status struct {
		ConsecutiveFailures  int
		ConsecutiveSuccesses int
		LastCheck            time.Time
		LastResult           Result
		Healthy              bool
		StartedAt            time.Time
	}

NewStatus returns a Status that starts Healthy (assumed healthy until
proven otherwise). Update(result, config) folds one Result in:

  - A healthy Result immediately marks Status.Healthy = true and resets
    the failure streak.
  - An unhealthy Result increments the failure streak; Status.Healthy
    only flips to false once ConsecutiveFailures reaches config.Retries.

This means a single failed check never removes a dependency — only a
run of config.Retries consecutive failures does, which absorbs
transient blips (a slow GC pause, a dropped packet) without flapping
the routing table.

InStartPeriod(config) reports whether StartedAt is still within
config.StartPeriod, letting a caller skip penalizing a dependency that
hasn't finished starting up yet.

# Usage

	status := health.NewStatus()
	config := health.Config{Interval: 10 * time.Second, Retries: 3}

	for {
		if status.InStartPeriod(config) {
			time.Sleep(config.Interval)
			continue
		}

		ok := probe(ctx) // whatever the caller knows how to check
		status.Update(health.Result{Healthy: ok, CheckedAt: time.Now()}, config)

		if !status.Healthy {
			break
		}
		time.Sleep(config.Interval)
	}

# Shard Manager Integration

pkg/shardmanager.HealthLoop polls every registered pod on a ticker,
keeping a *Status per pod and updating it from the pod's gRPC
HealthCheck response. A pod is only dropped from the routing table
(triggering a rebalance) once its Status.Healthy transitions to false —
the same Retries-gated hysteresis any other caller of this package
gets, not a special case for pods.

# See Also

  - pkg/shardmanager - HealthLoop polls pods and removes unresponsive ones
*/
package health
