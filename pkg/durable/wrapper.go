package durable

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
)

// ErrInterrupted is returned by Invoke when the worker's interrupt flag
// was set before the call could run.
var ErrInterrupted = errors.New("durable: worker interrupted")

// DivergenceError means replay found an oplog entry that doesn't match
// what the running guest code just asked for. The worker this happens
// to must be marked Failed; replay can never be trusted again once the
// recorded and requested host calls disagree.
type DivergenceError struct {
	Expected string
	Actual   string
	Index    types.OplogIndex
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("oplog divergence at index %d: expected %q, found %q", e.Index, e.Expected, e.Actual)
}

// Context is the per-worker state a Wrapper needs to decide whether it
// is replaying recorded effects or producing new ones.
type Context struct {
	Oplog       oplog.Oplog
	Blob        storage.BlobStorage
	WorkerId    types.WorkerId
	Replay      *oplog.ReplayState
	Interrupted *atomic.Bool
}

// checkInterrupted honours an external interrupt signal at a host-call
// wrapper boundary, the only place cancellation is allowed to take
// effect mid-invocation.
func (c *Context) checkInterrupted(ctx context.Context) error {
	if c.Interrupted == nil || !c.Interrupted.Load() {
		return nil
	}
	if _, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryInterrupted, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("record interrupt: %w", err)
	}
	if err := c.Oplog.Commit(ctx, 1); err != nil {
		return fmt.Errorf("commit interrupt: %w", err)
	}
	return ErrInterrupted
}

// Wrapper turns one side-effecting host function into a durable one.
// Req and Res are the function's argument and result shapes; Execute
// performs the real call (HTTP request, clock read, blob fetch, ...).
// A Wrapper is stateless and safe to share across workers; per-call
// state lives entirely in the Context passed to Invoke.
type Wrapper[Req, Res any] struct {
	Name string
	Type types.DurableFunctionType

	EncodeRequest  func(Req) []byte
	DecodeRequest  func([]byte) (Req, error)
	EncodeResponse func(Res) []byte
	DecodeResponse func([]byte) (Res, error)

	Execute func(context.Context, Req) (Res, error)
}

// Invoke runs the three-step durability contract: consume a recorded
// entry during replay, or perform the call live and record it.
func (w *Wrapper[Req, Res]) Invoke(ctx context.Context, c *Context, req Req) (Res, error) {
	var zero Res

	if err := c.checkInterrupted(ctx); err != nil {
		return zero, err
	}

	if !c.Replay.LiveMode() {
		return w.replay(ctx, c)
	}
	return w.live(ctx, c, req)
}

func (w *Wrapper[Req, Res]) replay(ctx context.Context, c *Context) (Res, error) {
	var zero Res

	index := c.Replay.Cursor()
	entry, err := c.Oplog.Read(ctx, index)
	if err != nil {
		return zero, fmt.Errorf("read recorded call at %d: %w", index, err)
	}
	if entry.Kind != types.EntryImportedFunctionInvoked || entry.FunctionName != w.Name {
		return zero, &DivergenceError{Expected: w.Name, Actual: string(entry.Kind) + ":" + entry.FunctionName, Index: index}
	}

	raw, err := oplog.DownloadPayload(ctx, c.Blob, entry.Response)
	if err != nil {
		return zero, fmt.Errorf("download recorded response for %s: %w", w.Name, err)
	}
	res, err := w.DecodeResponse(raw)
	if err != nil {
		return zero, fmt.Errorf("decode recorded response for %s: %w", w.Name, err)
	}
	c.Replay.Advance(index)
	return res, nil
}

func (w *Wrapper[Req, Res]) live(ctx context.Context, c *Context, req Req) (Res, error) {
	var zero Res

	var beginIndex types.OplogIndex
	if w.Type == types.WriteRemote {
		idx, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryBeginRemoteWrite, Timestamp: time.Now()})
		if err != nil {
			return zero, fmt.Errorf("record begin-remote-write for %s: %w", w.Name, err)
		}
		beginIndex = idx
	}

	// A crash here, before any entry records the outcome, means the
	// call simply re-executes on recovery. For WriteRemote this leaves
	// an unterminated BeginRemoteWrite, which recovery treats as fatal.
	res, execErr := w.Execute(ctx, req)
	if execErr != nil {
		return zero, execErr
	}

	reqBytes := w.EncodeRequest(req)
	respBytes := w.EncodeResponse(res)
	idx, err := oplog.AddImportedFunctionInvoked(ctx, c.Oplog, c.Blob, c.WorkerId, w.Name, reqBytes, respBytes, w.Type)
	if err != nil {
		return zero, fmt.Errorf("record invocation of %s: %w", w.Name, err)
	}

	if w.Type == types.WriteRemote {
		if _, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryEndRemoteWrite, Timestamp: time.Now(), BeginIndex: beginIndex}); err != nil {
			return zero, fmt.Errorf("record end-remote-write for %s: %w", w.Name, err)
		}
	}

	if w.Type == types.WriteRemote || w.Type == types.WriteLocal {
		if err := c.Oplog.Commit(ctx, 1); err != nil {
			return zero, fmt.Errorf("commit %s: %w", w.Name, err)
		}
	}

	c.Replay.Advance(idx)
	return res, nil
}
