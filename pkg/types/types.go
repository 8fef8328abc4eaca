package types

import (
	"fmt"
	"hash/fnv"
	"time"
)

// ComponentId identifies an immutable WASM component artifact.
type ComponentId string

// ComponentVersion is a monotone version number for a component.
type ComponentVersion uint64

// WorkerId identifies a worker. Stable across its entire lifetime.
type WorkerId struct {
	ComponentId ComponentId
	WorkerName  string
}

func (w WorkerId) String() string {
	return fmt.Sprintf("%s/%s", w.ComponentId, w.WorkerName)
}

// ShardOf deterministically hashes the worker id to a shard index in 0..n.
func (w WorkerId) ShardOf(numberOfShards int) ShardId {
	if numberOfShards <= 0 {
		return ShardId(0)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(w.String()))
	return ShardId(h.Sum64() % uint64(numberOfShards))
}

// OplogIndex is a strictly increasing 64-bit counter, starting at 1 for
// each worker. Gaps never occur; truncation moves the logical start
// forward but never renumbers existing entries.
type OplogIndex uint64

// IdempotencyKey deduplicates repeated invocations of the same request.
type IdempotencyKey string

// AccountId is opaque to this package: billing/account semantics live in
// the out-of-scope registry service. It only needs to round-trip through
// the oplog unchanged.
type AccountId string

// DurableFunctionType classifies a host call's idempotency/retry
// semantics on replay.
type DurableFunctionType string

const (
	ReadLocal   DurableFunctionType = "read-local"
	WriteLocal  DurableFunctionType = "write-local"
	ReadRemote  DurableFunctionType = "read-remote"
	WriteRemote DurableFunctionType = "write-remote"
)

// PayloadRef is a request/response payload, either inlined or stored as a
// content-addressed reference into blob storage for large values.
type PayloadRef struct {
	Inline   []byte `json:"inline,omitempty"`
	External string `json:"external,omitempty"` // blob storage key
}

func (p PayloadRef) IsExternal() bool { return len(p.Inline) == 0 && p.External != "" }

// InlinePayload returns a PayloadRef holding its bytes directly.
func InlinePayload(b []byte) PayloadRef { return PayloadRef{Inline: b} }

// ExternalPayload returns a PayloadRef pointing at a blob storage key.
func ExternalPayload(key string) PayloadRef { return PayloadRef{External: key} }

// OplogEntryKind discriminates the OplogEntry tagged union.
type OplogEntryKind string

const (
	EntryCreate                    OplogEntryKind = "create"
	EntryImportedFunctionInvoked   OplogEntryKind = "imported-function-invoked"
	EntryExportedFunctionInvoked   OplogEntryKind = "exported-function-invoked"
	EntryExportedFunctionCompleted OplogEntryKind = "exported-function-completed"
	EntrySuspend                   OplogEntryKind = "suspend"
	EntryError                     OplogEntryKind = "error"
	EntryInterrupted               OplogEntryKind = "interrupted"
	EntryExited                    OplogEntryKind = "exited"
	EntryNoOp                      OplogEntryKind = "no-op"
	EntryJump                      OplogEntryKind = "jump"
	EntryChangeRetryPolicy         OplogEntryKind = "change-retry-policy"
	EntryBeginAtomicRegion         OplogEntryKind = "begin-atomic-region"
	EntryEndAtomicRegion           OplogEntryKind = "end-atomic-region"
	EntryBeginRemoteWrite          OplogEntryKind = "begin-remote-write"
	EntryEndRemoteWrite            OplogEntryKind = "end-remote-write"
	EntryPendingWorkerInvocation   OplogEntryKind = "pending-worker-invocation"
	EntryPendingUpdate             OplogEntryKind = "pending-update"
	EntrySuccessfulUpdate          OplogEntryKind = "successful-update"
	EntryFailedUpdate              OplogEntryKind = "failed-update"
)

// OplogRegion is a closed index range, used by Jump and to bracket atomic
// and remote-write regions.
type OplogRegion struct {
	Start OplogIndex `json:"start"`
	End   OplogIndex `json:"end"`
}

func (r OplogRegion) Contains(i OplogIndex) bool { return i >= r.Start && i <= r.End }
func (r OplogRegion) Empty() bool                { return r.Start > r.End }

// UpdateMode selects the update strategy requested by PendingUpdate.
type UpdateMode string

const (
	UpdateModeAutomatic UpdateMode = "automatic"
	UpdateModeSnapshot  UpdateMode = "snapshot-based"
)

// UpdateDescription is the payload of a PendingUpdate entry: either an
// automatic update (replay onto the new version) or a snapshot-based one
// (load a user-supplied save/load pair targeting a specific version).
type UpdateDescription struct {
	Mode          UpdateMode       `json:"mode"`
	TargetVersion ComponentVersion `json:"target_version"`
}

// Invocation is the payload of a PendingWorkerInvocation: an exported
// function call that arrived while the worker was busy, optionally
// deferred to run at ScheduledFor.
type Invocation struct {
	IdempotencyKey    IdempotencyKey    `json:"idempotency_key"`
	FunctionName      string            `json:"function_name"`
	Request           PayloadRef        `json:"request"`
	InvocationContext map[string]string `json:"invocation_context,omitempty"`
	ScheduledFor      time.Time         `json:"scheduled_for,omitempty"`
}

// IsScheduled reports whether this invocation must wait until ScheduledFor.
func (i Invocation) IsScheduled() bool { return !i.ScheduledFor.IsZero() }

// RetryPolicy governs the exponential back-off applied to a Failed
// worker's automatic restart attempts.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"` // 0 == unbounded
	MinDelay    time.Duration `json:"min_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
	Jitter      float64       `json:"jitter"` // 0..1, fraction of delay randomized
}

// DefaultRetryPolicy is the conservative out-of-the-box policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 0,
		MinDelay:    100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// OplogEntry is the tagged sum described by OplogEntryKind. Every entry
// carries a timestamp and a kind; only the fields relevant to that kind
// are populated. The variants share one flat struct with optional
// fields rather than a nested sum type, since Go has no cheap way to
// express one.
type OplogEntry struct {
	Kind      OplogEntryKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`

	// Create
	WorkerId         WorkerId         `json:"worker_id,omitempty"`
	ComponentVersion ComponentVersion `json:"component_version,omitempty"`
	Args             []string         `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	AccountId        AccountId        `json:"account_id,omitempty"`

	// ImportedFunctionInvoked / ExportedFunctionInvoked
	FunctionName       string              `json:"function_name,omitempty"`
	Request            PayloadRef          `json:"request,omitempty"`
	Response           PayloadRef          `json:"response,omitempty"`
	DurableFunctionType DurableFunctionType `json:"durable_function_type,omitempty"`
	IdempotencyKey     IdempotencyKey      `json:"idempotency_key,omitempty"`
	InvocationContext  map[string]string   `json:"invocation_context,omitempty"`

	// ExportedFunctionCompleted
	ConsumedFuel int64 `json:"consumed_fuel,omitempty"`

	// Error
	ErrorMessage string `json:"error_message,omitempty"`

	// Jump
	Region OplogRegion `json:"region,omitempty"`

	// ChangeRetryPolicy
	NewRetryPolicy RetryPolicy `json:"new_retry_policy,omitempty"`

	// BeginAtomicRegion / BeginRemoteWrite — no extra fields.
	// EndAtomicRegion / EndRemoteWrite
	BeginIndex OplogIndex `json:"begin_index,omitempty"`

	// PendingWorkerInvocation
	PendingInvocation Invocation `json:"pending_invocation,omitempty"`

	// PendingUpdate
	UpdateDescription UpdateDescription `json:"update_description,omitempty"`

	// SuccessfulUpdate / FailedUpdate
	TargetVersion ComponentVersion `json:"target_version,omitempty"`
	Details       string           `json:"details,omitempty"`
}

// WorkerStatus is the worker state machine's current state.
type WorkerStatus string

const (
	WorkerStatusCreating    WorkerStatus = "creating"
	WorkerStatusRunning     WorkerStatus = "running"
	WorkerStatusSuspended   WorkerStatus = "suspended"
	WorkerStatusInterrupted WorkerStatus = "interrupted"
	WorkerStatusFailed      WorkerStatus = "failed"
	WorkerStatusExited      WorkerStatus = "exited"
	WorkerStatusUpdating    WorkerStatus = "updating"
)

// WorkerMetadata is a cached view of a worker's status, refreshed on
// every oplog commit. The oplog itself is always authoritative; this
// exists only to avoid a full replay on every status query.
type WorkerMetadata struct {
	WorkerId                WorkerId         `json:"worker_id"`
	Status                  WorkerStatus     `json:"status"`
	LastKnownOplogIndex     OplogIndex       `json:"last_known_oplog_index"`
	CurrentComponentVersion ComponentVersion `json:"current_component_version"`
	PendingInvocationCount  int              `json:"pending_invocation_count"`
	LastError               string           `json:"last_error,omitempty"`
	UpdateTargetVersion     ComponentVersion `json:"update_target_version,omitempty"`
}

// ShardId is one of the N hash buckets partitioning workers across pods.
type ShardId uint32

// Pod identifies an executor process registered with the shard manager.
type Pod struct {
	Host    string `json:"host"`
	Port    uint16 `json:"port"`
	PodName string `json:"pod_name"`
}

func (p Pod) Address() string { return fmt.Sprintf("%s:%d", p.Host, p.Port) }

func (p Pod) Key() string { return fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.PodName) }

func (p Pod) String() string {
	if p.PodName != "" {
		return p.PodName
	}
	return p.Address()
}

// PodShards pairs a registered Pod with the shards currently assigned to it.
type PodShards struct {
	Pod    Pod                  `json:"pod"`
	Shards map[ShardId]struct{} `json:"shards"`
}

// RoutingTable is the shard manager's current partition of shards across
// pods. Invariant: every shard is assigned to at most one pod.
type RoutingTable struct {
	NumberOfShards int                   `json:"number_of_shards"`
	Assignments    map[string]*PodShards `json:"assignments"` // keyed by Pod.Key()
}

// NewRoutingTable returns an empty routing table for the given shard count.
func NewRoutingTable(numberOfShards int) RoutingTable {
	return RoutingTable{
		NumberOfShards: numberOfShards,
		Assignments:    make(map[string]*PodShards),
	}
}

// UnassignedShards returns the shards in 0..N not currently owned by any pod.
func (rt RoutingTable) UnassignedShards() []ShardId {
	owned := make(map[ShardId]struct{}, rt.NumberOfShards)
	for _, ps := range rt.Assignments {
		for s := range ps.Shards {
			owned[s] = struct{}{}
		}
	}
	var unassigned []ShardId
	for s := 0; s < rt.NumberOfShards; s++ {
		if _, ok := owned[ShardId(s)]; !ok {
			unassigned = append(unassigned, ShardId(s))
		}
	}
	return unassigned
}

// ShardOwner returns the pod owning the given shard, if any.
func (rt RoutingTable) ShardOwner(shard ShardId) (Pod, bool) {
	for _, ps := range rt.Assignments {
		if _, ok := ps.Shards[shard]; ok {
			return ps.Pod, true
		}
	}
	return Pod{}, false
}

// Assign records that pod now owns shard, removing it from any other pod.
func (rt *RoutingTable) Assign(pod Pod, shard ShardId) {
	for _, ps := range rt.Assignments {
		delete(ps.Shards, shard)
	}
	ps, ok := rt.Assignments[pod.Key()]
	if !ok {
		ps = &PodShards{Pod: pod, Shards: make(map[ShardId]struct{})}
		rt.Assignments[pod.Key()] = ps
	}
	ps.Shards[shard] = struct{}{}
}

// Revoke removes shard from whichever pod currently owns it.
func (rt *RoutingTable) Revoke(shard ShardId) {
	for _, ps := range rt.Assignments {
		delete(ps.Shards, shard)
	}
}
