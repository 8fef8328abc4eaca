package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golemproject/golem/pkg/durable"
	"github.com/golemproject/golem/pkg/events"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker/componenthost"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
)

// ErrFailed is returned from Invoke once a worker has entered the
// Failed state; it never recovers on its own.
var ErrFailed = errors.New("worker: failed")

// AlreadyExistsError is returned by Invoke when an idempotency key
// matches a completed invocation whose original request payload
// differs from this one: a resubmission under the same key with
// different arguments errors rather than silently replaying the old
// response.
type AlreadyExistsError struct {
	Response types.PayloadRef
}

func (e *AlreadyExistsError) Error() string {
	return "worker: idempotency key already used with a different request"
}

// ComponentLoader resolves a component version to its compiled WASM
// bytes, the substitute for pulling an OCI image by tag.
type ComponentLoader func(ctx context.Context, componentId types.ComponentId, version types.ComponentVersion) ([]byte, error)

// Config configures a single worker instance.
type Config struct {
	WorkerId         types.WorkerId
	ComponentVersion types.ComponentVersion
	Args             []string
	Env              map[string]string
	AccountId        types.AccountId

	Oplogs      *oplog.OpenOplogs
	Blob        storage.BlobStorage
	LoadComponent ComponentLoader
	RetryPolicy types.RetryPolicy

	// Events is optional; when set, every status transition is published
	// to it for live observability (API streaming, metrics).
	Events *events.Broker
}

// Worker is one durably-executing WASM component instance, replacing
// ContainerdRuntime's OCI container with an in-process wazero module
// and the manager-assigned task map with an append-only oplog: the
// oplog is the worker's entire state, and the struct below is just the
// in-memory view of it plus the machinery to advance it.
type Worker struct {
	cfg    Config
	logger zerolog.Logger

	mu          sync.RWMutex
	status      types.WorkerStatus
	lastError   string
	attempt     int

	oplog       oplog.Oplog
	replay      *oplog.ReplayState
	interrupted atomic.Bool
	host        *componenthost.Host

	pending   []types.Invocation
	pendingMu sync.Mutex
	notify    chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a worker bound to cfg.WorkerId's oplog without starting
// it; call Start to begin replay and invocation processing.
func New(cfg Config) *Worker {
	if cfg.RetryPolicy == (types.RetryPolicy{}) {
		cfg.RetryPolicy = types.DefaultRetryPolicy()
	}
	return &Worker{
		cfg:    cfg,
		logger: log.WithWorkerID(cfg.WorkerId.String()).With().Str("component", "worker").Logger(),
		status: types.WorkerStatusCreating,
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Status returns the worker's current state.
func (w *Worker) Status() types.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Config returns the configuration this worker was constructed with,
// for callers (pkg/update) that need to derive a new worker's Config
// from an existing one without duplicating every field by hand.
func (w *Worker) Config() Config {
	return w.cfg
}

// Metadata returns a point-in-time snapshot of the worker's status for
// API/CLI consumption. The oplog remains the authoritative record;
// this just avoids a full replay on every metadata query.
func (w *Worker) Metadata() types.WorkerMetadata {
	w.mu.RLock()
	status := w.status
	lastError := w.lastError
	w.mu.RUnlock()

	w.pendingMu.Lock()
	pendingCount := len(w.pending)
	w.pendingMu.Unlock()

	var cursor types.OplogIndex
	if w.replay != nil {
		cursor = w.replay.Cursor()
	}

	return types.WorkerMetadata{
		WorkerId:                w.cfg.WorkerId,
		Status:                  status,
		LastKnownOplogIndex:     cursor,
		CurrentComponentVersion: w.cfg.ComponentVersion,
		PendingInvocationCount:  pendingCount,
		LastError:               lastError,
	}
}

func (w *Worker) setStatus(status types.WorkerStatus, errMsg string) {
	w.mu.Lock()
	w.status = status
	w.lastError = errMsg
	w.mu.Unlock()

	if w.cfg.Events == nil {
		return
	}
	w.cfg.Events.Publish(&events.Event{
		Type:     statusEventType(status),
		Message:  fmt.Sprintf("worker %s transitioned to %s", w.cfg.WorkerId, status),
		Metadata: map[string]string{"worker_id": w.cfg.WorkerId.String(), "error": errMsg},
	})
}

func statusEventType(status types.WorkerStatus) events.EventType {
	switch status {
	case types.WorkerStatusCreating:
		return events.EventWorkerCreated
	case types.WorkerStatusRunning:
		return events.EventWorkerRunning
	case types.WorkerStatusSuspended:
		return events.EventWorkerSuspended
	case types.WorkerStatusInterrupted:
		return events.EventWorkerInterrupted
	case types.WorkerStatusFailed:
		return events.EventWorkerFailed
	case types.WorkerStatusExited:
		return events.EventWorkerExited
	case types.WorkerStatusUpdating:
		return events.EventWorkerUpdating
	default:
		return events.EventWorkerRunning
	}
}

// Start opens the worker's oplog, appends Create if this is the first
// run, replays recorded history onto a fresh instance, and begins
// processing invocations. Start returns once the worker is Running (or
// Failed); the invocation loop continues in the background until Stop.
func (w *Worker) Start(ctx context.Context) error {
	w.oplog = w.cfg.Oplogs.Open(w.cfg.WorkerId)

	current, err := w.oplog.CurrentOplogIndex(ctx)
	if err != nil {
		return fmt.Errorf("read current oplog index: %w", err)
	}
	if current == 0 {
		if _, err := w.oplog.Add(ctx, types.OplogEntry{
			Kind:             types.EntryCreate,
			Timestamp:        time.Now(),
			WorkerId:         w.cfg.WorkerId,
			ComponentVersion: w.cfg.ComponentVersion,
			Args:             w.cfg.Args,
			Env:              w.cfg.Env,
			AccountId:        w.cfg.AccountId,
		}); err != nil {
			return fmt.Errorf("record create: %w", err)
		}
		current, err = w.oplog.CurrentOplogIndex(ctx)
		if err != nil {
			return err
		}
	}

	if unfinished, index, err := durable.UnfinishedRemoteWrite(ctx, w.oplog); err != nil {
		return fmt.Errorf("check unfinished remote writes: %w", err)
	} else if unfinished {
		w.setStatus(types.WorkerStatusFailed, fmt.Sprintf("unfinished remote write at index %d", index))
		return fmt.Errorf("%w: unfinished remote write at index %d, needs operator rollback", ErrFailed, index)
	}

	w.replay = oplog.NewReplayState(current)

	host, err := componenthost.New(ctx)
	if err != nil {
		return fmt.Errorf("start wazero runtime: %w", err)
	}
	w.host = host

	wasmBytes, err := w.cfg.LoadComponent(ctx, w.cfg.WorkerId.ComponentId, w.cfg.ComponentVersion)
	if err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("load component: %w", err)
	}
	if err := w.host.LoadComponent(ctx, wasmBytes); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return err
	}
	if err := w.registerHostFunctions(ctx); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("register host functions: %w", err)
	}
	if err := w.host.Instantiate(ctx, wazero.NewModuleConfig()); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("instantiate component: %w", err)
	}

	if err := w.replayToLive(ctx); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("replay: %w", err)
	}

	w.setStatus(types.WorkerStatusRunning, "")
	go w.run(ctx)
	return nil
}

// durableContext returns the per-call state Wrapper.Invoke needs,
// sharing the worker's single replay cursor across every host call.
func (w *Worker) durableContext() *durable.Context {
	return &durable.Context{
		Oplog:       w.oplog,
		Blob:        w.cfg.Blob,
		WorkerId:    w.cfg.WorkerId,
		Replay:      w.replay,
		Interrupted: &w.interrupted,
	}
}

// replayToLive drives recorded ExportedFunctionInvoked entries back
// through the guest until the cursor reaches live mode. Host calls the
// guest makes along the way are intercepted by the same durable
// wrappers registerHostFunctions exposed at instantiation time, which
// recognize replay via w.replay and return recorded results instead of
// re-executing.
func (w *Worker) replayToLive(ctx context.Context) error {
	for !w.replay.LiveMode() {
		index := w.replay.Cursor()
		entry, err := w.oplog.Read(ctx, index)
		if err != nil {
			return fmt.Errorf("read entry %d: %w", index, err)
		}

		switch entry.Kind {
		case types.EntryExportedFunctionInvoked:
			w.replay.Advance(index)
			if _, err := w.invokeExport(ctx, entry.FunctionName, entry.Request); err != nil {
				var divergence *durable.DivergenceError
				if errors.As(err, &divergence) {
					return err
				}
				w.logger.Warn().Err(err).Str("function", entry.FunctionName).Msg("replay invocation failed")
			}
		case types.EntryJump:
			w.replay.Jump(entry.Region)
		default:
			w.replay.Advance(index)
		}
	}
	return nil
}

// invokeExport downloads the invocation's request payload and drives
// the named guest export with it using componenthost's ptr/len
// calling convention, returning whatever bytes the export wrote back.
func (w *Worker) invokeExport(ctx context.Context, functionName string, request types.PayloadRef) ([]byte, error) {
	requestBytes, err := oplog.DownloadPayload(ctx, w.cfg.Blob, request)
	if err != nil {
		return nil, fmt.Errorf("download request payload: %w", err)
	}
	return w.host.InvokeExportWithPayload(ctx, functionName, requestBytes)
}

// Invoke enqueues an invocation for this worker. A matching
// idempotency key already present in the oplog short-circuits to the
// recorded response instead of running again.
func (w *Worker) Invoke(ctx context.Context, invocation types.Invocation) error {
	if w.Status() == types.WorkerStatusFailed {
		return ErrFailed
	}

	if invocation.IdempotencyKey != "" {
		if request, response, done, err := w.completedInvocation(ctx, invocation.IdempotencyKey); err != nil {
			return err
		} else if done {
			if !payloadRefEqual(request, invocation.Request) {
				return &AlreadyExistsError{Response: response}
			}
			return nil
		}
	}

	if invocation.IsScheduled() && invocation.ScheduledFor.After(time.Now()) {
		return w.enqueuePending(ctx, invocation)
	}

	w.pendingMu.Lock()
	w.pending = append(w.pending, invocation)
	w.pendingMu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// enqueuePending durably records an invocation the worker isn't ready
// to run yet (scheduled in the future), so it survives a
// crash between being accepted and being executed.
func (w *Worker) enqueuePending(ctx context.Context, invocation types.Invocation) error {
	_, err := w.oplog.Add(ctx, types.OplogEntry{
		Kind:              types.EntryPendingWorkerInvocation,
		Timestamp:         time.Now(),
		PendingInvocation: invocation,
	})
	return err
}

// completedInvocation scans the oplog for a prior ExportedFunctionInvoked
// entry carrying key, reporting its original request and, if a matching
// completion already followed it, that completion's response.
func (w *Worker) completedInvocation(ctx context.Context, key types.IdempotencyKey) (request, response types.PayloadRef, done bool, err error) {
	current, err := w.oplog.CurrentOplogIndex(ctx)
	if err != nil {
		return types.PayloadRef{}, types.PayloadRef{}, false, err
	}
	if current == 0 {
		return types.PayloadRef{}, types.PayloadRef{}, false, nil
	}
	entries, err := w.oplog.ReadRange(ctx, 1, current)
	if err != nil {
		return types.PayloadRef{}, types.PayloadRef{}, false, err
	}
	for i, entry := range entries {
		if entry.Kind != types.EntryExportedFunctionInvoked || entry.IdempotencyKey != key {
			continue
		}
		for _, follow := range entries[i+1:] {
			if follow.Kind == types.EntryExportedFunctionCompleted {
				return entry.Request, follow.Response, true, nil
			}
		}
	}
	return types.PayloadRef{}, types.PayloadRef{}, false, nil
}

// AwaitCompletion blocks until the invocation identified by key has
// completed (its ExportedFunctionCompleted entry has been written),
// returning that entry's response payload. The caller must have
// already submitted the invocation via Invoke; this only waits.
func (w *Worker) AwaitCompletion(ctx context.Context, key types.IdempotencyKey) (types.PayloadRef, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		_, response, done, err := w.completedInvocation(ctx, key)
		if err != nil {
			return types.PayloadRef{}, err
		}
		if done {
			return response, nil
		}
		if w.Status() == types.WorkerStatusFailed {
			return types.PayloadRef{}, ErrFailed
		}

		select {
		case <-ctx.Done():
			return types.PayloadRef{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// payloadRefEqual compares two PayloadRefs by value, not identity:
// same inline bytes, or same external blob key.
func payloadRefEqual(a, b types.PayloadRef) bool {
	if a.IsExternal() || b.IsExternal() {
		return a.External == b.External
	}
	return bytes.Equal(a.Inline, b.Inline)
}

// run drains pending invocations one at a time, the equivalent of
// ContainerdRuntime-era containerExecutorLoop generalized from polling
// a manager for assignments to waiting on the worker's own queue.
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.notify:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		w.pendingMu.Lock()
		if len(w.pending) == 0 {
			w.pendingMu.Unlock()
			w.setStatus(types.WorkerStatusSuspended, "")
			if _, err := w.oplog.Add(ctx, types.OplogEntry{Kind: types.EntrySuspend, Timestamp: time.Now()}); err != nil {
				w.logger.Error().Err(err).Msg("record suspend")
			}
			return
		}
		invocation := w.pending[0]
		w.pending = w.pending[1:]
		w.pendingMu.Unlock()

		w.setStatus(types.WorkerStatusRunning, "")
		if err := w.runInvocation(ctx, invocation); err != nil {
			if errors.Is(err, durable.ErrInterrupted) {
				w.setStatus(types.WorkerStatusInterrupted, "")
				return
			}
			var divergence *durable.DivergenceError
			if errors.As(err, &divergence) {
				w.setStatus(types.WorkerStatusFailed, err.Error())
				return
			}
			w.logger.Error().Err(err).Str("function", invocation.FunctionName).Msg("invocation failed")
		}
	}
}

func (w *Worker) runInvocation(ctx context.Context, invocation types.Invocation) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.InvocationDuration, invocation.FunctionName)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.InvocationsTotal.WithLabelValues(outcome).Inc()
	}()

	requestBytes, err := oplog.DownloadPayload(ctx, w.cfg.Blob, invocation.Request)
	if err != nil {
		return fmt.Errorf("resolve request payload: %w", err)
	}

	idx, err := oplog.AddExportedFunctionInvoked(ctx, w.oplog, w.cfg.Blob, w.cfg.WorkerId,
		invocation.FunctionName, requestBytes, invocation.IdempotencyKey, invocation.InvocationContext)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	w.replay.Advance(idx)

	responseBytes, invokeErr := w.invokeExport(ctx, invocation.FunctionName, invocation.Request)
	if invokeErr != nil {
		var divergence *durable.DivergenceError
		if errors.As(invokeErr, &divergence) || errors.Is(invokeErr, durable.ErrInterrupted) {
			return invokeErr
		}
		responseBytes = nil
	}

	completeIdx, err := oplog.AddExportedFunctionCompleted(ctx, w.oplog, w.cfg.Blob, w.cfg.WorkerId, responseBytes, 0)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	w.replay.Advance(completeIdx)
	return invokeErr
}

// SaveSnapshot invokes the running component's exported save-snapshot
// function, used by pkg/update's snapshot-based path to capture guest
// state before restarting the worker on a new component version. The
// bytes it returns are the guest's own serialized state, round-tripped
// through componenthost's ptr/len convention. A component that doesn't
// export save-snapshot has nothing to capture.
func (w *Worker) SaveSnapshot(ctx context.Context) ([]byte, error) {
	if !w.host.HasExport("save-snapshot") {
		return nil, nil
	}
	snapshot, err := w.host.InvokeExportWithPayload(ctx, "save-snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("save-snapshot: %w", err)
	}
	return snapshot, nil
}

// StartFromSnapshot is the snapshot-based counterpart to Start: rather
// than replaying the full oplog onto a fresh instance, it instantiates
// the worker's (already-bumped) component version, hands it snapshot
// via load-snapshot, and enters live mode immediately. The oplog is
// still opened and still the worker's durable record of truth — only
// the in-process recovery path differs.
func (w *Worker) StartFromSnapshot(ctx context.Context, snapshot []byte) error {
	w.oplog = w.cfg.Oplogs.Open(w.cfg.WorkerId)

	current, err := w.oplog.CurrentOplogIndex(ctx)
	if err != nil {
		return fmt.Errorf("read current oplog index: %w", err)
	}

	w.replay = oplog.NewReplayState(current)
	w.replay.Advance(current) // skip straight to live mode

	host, err := componenthost.New(ctx)
	if err != nil {
		return fmt.Errorf("start wazero runtime: %w", err)
	}
	w.host = host

	wasmBytes, err := w.cfg.LoadComponent(ctx, w.cfg.WorkerId.ComponentId, w.cfg.ComponentVersion)
	if err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("load component: %w", err)
	}
	if err := w.host.LoadComponent(ctx, wasmBytes); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return err
	}
	if err := w.registerHostFunctions(ctx); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("register host functions: %w", err)
	}
	if err := w.host.Instantiate(ctx, wazero.NewModuleConfig()); err != nil {
		w.setStatus(types.WorkerStatusFailed, err.Error())
		return fmt.Errorf("instantiate component: %w", err)
	}

	if w.host.HasExport("load-snapshot") {
		if _, err := w.host.InvokeExportWithPayload(ctx, "load-snapshot", snapshot); err != nil {
			w.setStatus(types.WorkerStatusFailed, err.Error())
			return fmt.Errorf("load-snapshot: %w", err)
		}
	}

	w.setStatus(types.WorkerStatusRunning, "")
	go w.run(ctx)
	return nil
}

// Interrupt sets the interrupt flag a running host-call wrapper checks
// at its next entry point.
func (w *Worker) Interrupt() {
	w.interrupted.Store(true)
}

// Stop halts invocation processing and tears down the component
// instance. The oplog itself is left untouched; a later Start resumes
// from wherever this worker left off.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stopCh)
	<-w.doneCh
	if w.host != nil {
		return w.host.Close(ctx)
	}
	return nil
}

// nextBackoff computes the delay before the next restart attempt per
// cfg.RetryPolicy, the durable analogue of a container RestartPolicy's
// exponential back-off.
func (w *Worker) nextBackoff() time.Duration {
	w.mu.Lock()
	w.attempt++
	attempt := w.attempt
	w.mu.Unlock()

	policy := w.cfg.RetryPolicy
	delay := float64(policy.MinDelay)
	for i := 1; i < attempt; i++ {
		delay *= policy.Multiplier
	}
	if max := float64(policy.MaxDelay); delay > max {
		delay = max
	}
	if policy.Jitter > 0 {
		delay += delay * policy.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
