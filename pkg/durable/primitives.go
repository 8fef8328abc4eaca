package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/types"
)

// GetOplogIndex returns a value that replays to itself: a NoOp entry on
// live mode, or the recorded NoOp's own index on replay. Guests use it
// to capture a replay-stable position, e.g. before branching on it.
func GetOplogIndex(ctx context.Context, c *Context) (types.OplogIndex, error) {
	if err := c.checkInterrupted(ctx); err != nil {
		return 0, err
	}

	if !c.Replay.LiveMode() {
		index := c.Replay.Cursor()
		entry, err := c.Oplog.Read(ctx, index)
		if err != nil {
			return 0, fmt.Errorf("read recorded get-oplog-index at %d: %w", index, err)
		}
		if entry.Kind != types.EntryNoOp {
			return 0, &DivergenceError{Expected: string(types.EntryNoOp), Actual: string(entry.Kind), Index: index}
		}
		c.Replay.Advance(index)
		return index, nil
	}

	index, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryNoOp, Timestamp: time.Now()})
	if err != nil {
		return 0, fmt.Errorf("record get-oplog-index: %w", err)
	}
	c.Replay.Advance(index)
	return index, nil
}

// SetOplogIndex rolls replay back to target by recording a Jump region
// covering everything between target and the current index. The
// recorded history is never erased, only skipped on future replays.
func SetOplogIndex(ctx context.Context, c *Context, target types.OplogIndex) error {
	if err := c.checkInterrupted(ctx); err != nil {
		return err
	}

	current, err := c.Oplog.CurrentOplogIndex(ctx)
	if err != nil {
		return fmt.Errorf("read current index: %w", err)
	}
	if target > current {
		return fmt.Errorf("set-oplog-index: target %d is past current index %d", target, current)
	}

	region := types.OplogRegion{Start: target, End: current}
	if _, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryJump, Timestamp: time.Now(), Region: region}); err != nil {
		return fmt.Errorf("record jump: %w", err)
	}
	c.Replay.Jump(region)
	return nil
}

// Atomic runs f bracketed by BeginAtomicRegion/EndAtomicRegion. If
// recovery finds the begin marker without a matching end, the entire
// region is elided and f runs again from scratch, so f must be
// idempotent as a whole even when its individual host calls are not.
func Atomic(ctx context.Context, c *Context, f func(context.Context) error) error {
	if err := c.checkInterrupted(ctx); err != nil {
		return err
	}

	if !c.Replay.LiveMode() {
		return atomicReplay(ctx, c, f)
	}
	return atomicLive(ctx, c, f)
}

func atomicLive(ctx context.Context, c *Context, f func(context.Context) error) error {
	beginIndex, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryBeginAtomicRegion, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("record begin-atomic-region: %w", err)
	}
	c.Replay.Advance(beginIndex)

	if err := f(ctx); err != nil {
		return err
	}

	endIndex, err := c.Oplog.Add(ctx, types.OplogEntry{Kind: types.EntryEndAtomicRegion, Timestamp: time.Now(), BeginIndex: beginIndex})
	if err != nil {
		return fmt.Errorf("record end-atomic-region: %w", err)
	}
	c.Replay.Advance(endIndex)
	return nil
}

func atomicReplay(ctx context.Context, c *Context, f func(context.Context) error) error {
	beginIndex := c.Replay.Cursor()
	entry, err := c.Oplog.Read(ctx, beginIndex)
	if err != nil {
		return fmt.Errorf("read recorded begin-atomic-region at %d: %w", beginIndex, err)
	}
	if entry.Kind != types.EntryBeginAtomicRegion {
		return &DivergenceError{Expected: string(types.EntryBeginAtomicRegion), Actual: string(entry.Kind), Index: beginIndex}
	}
	c.Replay.Advance(beginIndex)

	ended, endIndex, err := findAtomicEnd(ctx, c.Oplog, beginIndex)
	if err != nil {
		return err
	}
	if !ended {
		current, err := c.Oplog.CurrentOplogIndex(ctx)
		if err != nil {
			return err
		}
		c.Replay.Jump(types.OplogRegion{Start: beginIndex, End: current})
		return f(ctx)
	}

	if err := f(ctx); err != nil {
		return err
	}
	c.Replay.Advance(endIndex)
	return nil
}

func findAtomicEnd(ctx context.Context, o oplog.Oplog, beginIndex types.OplogIndex) (bool, types.OplogIndex, error) {
	current, err := o.CurrentOplogIndex(ctx)
	if err != nil {
		return false, 0, err
	}
	if current <= beginIndex {
		return false, 0, nil
	}
	entries, err := o.ReadRange(ctx, beginIndex+1, current)
	if err != nil {
		return false, 0, err
	}
	for i, e := range entries {
		if e.Kind == types.EntryEndAtomicRegion && e.BeginIndex == beginIndex {
			return true, beginIndex + 1 + types.OplogIndex(i), nil
		}
	}
	return false, 0, nil
}

// UnfinishedRemoteWrite reports the first BeginRemoteWrite in o that
// has no matching EndRemoteWrite, the condition that must fail a
// worker fast on recovery rather than risk a duplicated side effect.
func UnfinishedRemoteWrite(ctx context.Context, o oplog.Oplog) (bool, types.OplogIndex, error) {
	current, err := o.CurrentOplogIndex(ctx)
	if err != nil {
		return false, 0, err
	}
	if current == 0 {
		return false, 0, nil
	}
	entries, err := o.ReadRange(ctx, 1, current)
	if err != nil {
		return false, 0, err
	}

	ended := make(map[types.OplogIndex]bool)
	for i, e := range entries {
		if e.Kind == types.EntryEndRemoteWrite {
			ended[e.BeginIndex] = true
		}
		_ = i
	}
	for i, e := range entries {
		if e.Kind == types.EntryBeginRemoteWrite {
			index := types.OplogIndex(i) + 1
			if !ended[index] {
				return true, index, nil
			}
		}
	}
	return false, 0, nil
}
