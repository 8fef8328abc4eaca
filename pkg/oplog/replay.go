package oplog

import "github.com/golemproject/golem/pkg/types"

// ReplayState tracks where a worker's recovery is positioned while it
// replays its oplog back onto a fresh WASM instance.
type ReplayState struct {
	cursor         types.OplogIndex
	lastOplogIndex types.OplogIndex
}

// NewReplayState starts a replay cursor at the beginning of a worker
// whose last committed index is lastOplogIndex. Oplog indices are
// 1-based, so the cursor starts at 1: a worker with no entries at all
// (lastOplogIndex == 0) is immediately in live mode.
func NewReplayState(lastOplogIndex types.OplogIndex) *ReplayState {
	return &ReplayState{cursor: 1, lastOplogIndex: lastOplogIndex}
}

// Cursor returns the index of the next entry to replay.
func (r *ReplayState) Cursor() types.OplogIndex { return r.cursor }

// Advance moves the cursor past index.
func (r *ReplayState) Advance(index types.OplogIndex) {
	if index >= r.cursor {
		r.cursor = index + 1
	}
}

// Jump skips the cursor past region, implementing the Jump oplog entry:
// on replay, the entries inside region are never executed again.
func (r *ReplayState) Jump(region types.OplogRegion) {
	if region.End+1 > r.cursor {
		r.cursor = region.End + 1
	}
}

// LiveMode reports whether replay has caught up to the last committed
// entry, meaning the worker is now processing new invocations rather
// than reconstructing past ones.
func (r *ReplayState) LiveMode() bool {
	return r.cursor > r.lastOplogIndex
}
