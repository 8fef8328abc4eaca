// Package oplog implements the append-only, replay-driven log that is
// the authoritative state of a Golem worker.
package oplog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/golemproject/golem/pkg/types"
)

// Wire format: explicit tag+length framing rather than a reflection
// based codec (encoding/json, gob), so a new optional field can be
// added to a later version without breaking an older reader mid-replay.
// Every field is written as [tag byte][length varint][bytes], fields
// absent for a given entry kind are simply omitted.
const (
	tagKind = iota + 1
	tagTimestamp
	tagWorkerComponentId
	tagWorkerName
	tagComponentVersion
	tagArgs
	tagEnv
	tagAccountId
	tagFunctionName
	tagRequestInline
	tagRequestExternal
	tagResponseInline
	tagResponseExternal
	tagDurableFunctionType
	tagIdempotencyKey
	tagInvocationContext
	tagConsumedFuel
	tagErrorMessage
	tagRegionStart
	tagRegionEnd
	tagRetryMaxAttempts
	tagRetryMinDelay
	tagRetryMaxDelay
	tagRetryMultiplier
	tagRetryJitter
	tagBeginIndex
	tagPendingInvocation
	tagUpdateMode
	tagTargetVersion
	tagDetails
)

func putVarintPrefixed(buf *bytes.Buffer, tag byte, data []byte) {
	buf.WriteByte(tag)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	buf.Write(lenBuf[:n])
	buf.Write(data)
}

func putString(buf *bytes.Buffer, tag byte, s string) {
	if s == "" {
		return
	}
	putVarintPrefixed(buf, tag, []byte(s))
}

func putUint64(buf *bytes.Buffer, tag byte, v uint64) {
	if v == 0 {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	putVarintPrefixed(buf, tag, b[:])
}

func putFloat64(buf *bytes.Buffer, tag byte, v float64) {
	if v == 0 {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	putVarintPrefixed(buf, tag, b[:])
}

func putDuration(buf *bytes.Buffer, tag byte, d time.Duration) {
	putUint64(buf, tag, uint64(d))
}

func putMap(buf *bytes.Buffer, tag byte, m map[string]string) {
	if len(m) == 0 {
		return
	}
	var inner bytes.Buffer
	for k, v := range m {
		putVarintPrefixed(&inner, 1, []byte(k))
		putVarintPrefixed(&inner, 2, []byte(v))
	}
	putVarintPrefixed(buf, tag, inner.Bytes())
}

func putStrings(buf *bytes.Buffer, tag byte, vals []string) {
	if len(vals) == 0 {
		return
	}
	var inner bytes.Buffer
	for _, v := range vals {
		putVarintPrefixed(&inner, 1, []byte(v))
	}
	putVarintPrefixed(buf, tag, inner.Bytes())
}

// EncodeEntry serializes an OplogEntry into the wire format stored in
// IndexedStorage.
func EncodeEntry(e types.OplogEntry) []byte {
	var buf bytes.Buffer
	putString(&buf, tagKind, string(e.Kind))
	putUint64(&buf, tagTimestamp, uint64(e.Timestamp.UnixNano()))
	putString(&buf, tagWorkerComponentId, string(e.WorkerId.ComponentId))
	putString(&buf, tagWorkerName, e.WorkerId.WorkerName)
	putUint64(&buf, tagComponentVersion, uint64(e.ComponentVersion))
	putStrings(&buf, tagArgs, e.Args)
	putMap(&buf, tagEnv, e.Env)
	putString(&buf, tagAccountId, string(e.AccountId))
	putString(&buf, tagFunctionName, e.FunctionName)
	if e.Request.Inline != nil {
		putVarintPrefixed(&buf, tagRequestInline, e.Request.Inline)
	}
	putString(&buf, tagRequestExternal, e.Request.External)
	if e.Response.Inline != nil {
		putVarintPrefixed(&buf, tagResponseInline, e.Response.Inline)
	}
	putString(&buf, tagResponseExternal, e.Response.External)
	putString(&buf, tagDurableFunctionType, string(e.DurableFunctionType))
	putString(&buf, tagIdempotencyKey, string(e.IdempotencyKey))
	putMap(&buf, tagInvocationContext, e.InvocationContext)
	putUint64(&buf, tagConsumedFuel, uint64(e.ConsumedFuel))
	putString(&buf, tagErrorMessage, e.ErrorMessage)
	putUint64(&buf, tagRegionStart, uint64(e.Region.Start))
	putUint64(&buf, tagRegionEnd, uint64(e.Region.End))
	putUint64(&buf, tagRetryMaxAttempts, uint64(e.NewRetryPolicy.MaxAttempts))
	putDuration(&buf, tagRetryMinDelay, e.NewRetryPolicy.MinDelay)
	putDuration(&buf, tagRetryMaxDelay, e.NewRetryPolicy.MaxDelay)
	putFloat64(&buf, tagRetryMultiplier, e.NewRetryPolicy.Multiplier)
	putFloat64(&buf, tagRetryJitter, e.NewRetryPolicy.Jitter)
	putUint64(&buf, tagBeginIndex, uint64(e.BeginIndex))
	if e.Kind == types.EntryPendingWorkerInvocation {
		putVarintPrefixed(&buf, tagPendingInvocation, encodeInvocation(e.PendingInvocation))
	}
	putString(&buf, tagUpdateMode, string(e.UpdateDescription.Mode))
	putUint64(&buf, tagTargetVersion, uint64(maxVersion(e.TargetVersion, e.UpdateDescription.TargetVersion)))
	putString(&buf, tagDetails, e.Details)
	return buf.Bytes()
}

func maxVersion(a, b types.ComponentVersion) types.ComponentVersion {
	if a != 0 {
		return a
	}
	return b
}

func encodeInvocation(inv types.Invocation) []byte {
	var buf bytes.Buffer
	putString(&buf, 1, string(inv.IdempotencyKey))
	putString(&buf, 2, inv.FunctionName)
	if inv.Request.Inline != nil {
		putVarintPrefixed(&buf, 3, inv.Request.Inline)
	}
	putString(&buf, 4, inv.Request.External)
	putMap(&buf, 5, inv.InvocationContext)
	if !inv.ScheduledFor.IsZero() {
		putUint64(&buf, 6, uint64(inv.ScheduledFor.UnixNano()))
	}
	return buf.Bytes()
}

func decodeInvocation(data []byte) (types.Invocation, error) {
	var inv types.Invocation
	return inv, readFields(data, func(tag byte, v []byte) error {
		switch tag {
		case 1:
			inv.IdempotencyKey = types.IdempotencyKey(v)
		case 2:
			inv.FunctionName = string(v)
		case 3:
			inv.Request.Inline = append([]byte{}, v...)
		case 4:
			inv.Request.External = string(v)
		case 5:
			m, err := decodeMap(v)
			if err != nil {
				return err
			}
			inv.InvocationContext = m
		case 6:
			inv.ScheduledFor = time.Unix(0, int64(beUint64(v)))
		}
		return nil
	})
}

func decodeMap(data []byte) (map[string]string, error) {
	m := make(map[string]string)
	var pendingKey string
	var haveKey bool
	err := readFields(data, func(tag byte, v []byte) error {
		switch tag {
		case 1:
			pendingKey = string(v)
			haveKey = true
		case 2:
			if haveKey {
				m[pendingKey] = string(v)
				haveKey = false
			}
		}
		return nil
	})
	return m, err
}

func decodeStrings(data []byte) ([]string, error) {
	var out []string
	err := readFields(data, func(tag byte, v []byte) error {
		if tag == 1 {
			out = append(out, string(v))
		}
		return nil
	})
	return out, err
}

func beUint64(b []byte) uint64 {
	var padded [8]byte
	copy(padded[8-len(b):], b)
	return binary.BigEndian.Uint64(padded[:])
}

func readFields(data []byte, fn func(tag byte, v []byte) error) error {
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return fmt.Errorf("oplog codec: read length for tag %d: %w", tag, err)
		}
		v := make([]byte, n)
		if _, err := r.Read(v); err != nil && n > 0 {
			return fmt.Errorf("oplog codec: read value for tag %d: %w", tag, err)
		}
		if err := fn(tag, v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeEntry parses the wire format written by EncodeEntry.
func DecodeEntry(data []byte) (types.OplogEntry, error) {
	var e types.OplogEntry
	err := readFields(data, func(tag byte, v []byte) error {
		switch tag {
		case tagKind:
			e.Kind = types.OplogEntryKind(v)
		case tagTimestamp:
			e.Timestamp = time.Unix(0, int64(beUint64(v)))
		case tagWorkerComponentId:
			e.WorkerId.ComponentId = types.ComponentId(v)
		case tagWorkerName:
			e.WorkerId.WorkerName = string(v)
		case tagComponentVersion:
			e.ComponentVersion = types.ComponentVersion(beUint64(v))
		case tagArgs:
			args, err := decodeStrings(v)
			if err != nil {
				return err
			}
			e.Args = args
		case tagEnv:
			m, err := decodeMap(v)
			if err != nil {
				return err
			}
			e.Env = m
		case tagAccountId:
			e.AccountId = types.AccountId(v)
		case tagFunctionName:
			e.FunctionName = string(v)
		case tagRequestInline:
			e.Request.Inline = append([]byte{}, v...)
		case tagRequestExternal:
			e.Request.External = string(v)
		case tagResponseInline:
			e.Response.Inline = append([]byte{}, v...)
		case tagResponseExternal:
			e.Response.External = string(v)
		case tagDurableFunctionType:
			e.DurableFunctionType = types.DurableFunctionType(v)
		case tagIdempotencyKey:
			e.IdempotencyKey = types.IdempotencyKey(v)
		case tagInvocationContext:
			m, err := decodeMap(v)
			if err != nil {
				return err
			}
			e.InvocationContext = m
		case tagConsumedFuel:
			e.ConsumedFuel = int64(beUint64(v))
		case tagErrorMessage:
			e.ErrorMessage = string(v)
		case tagRegionStart:
			e.Region.Start = types.OplogIndex(beUint64(v))
		case tagRegionEnd:
			e.Region.End = types.OplogIndex(beUint64(v))
		case tagRetryMaxAttempts:
			e.NewRetryPolicy.MaxAttempts = int(beUint64(v))
		case tagRetryMinDelay:
			e.NewRetryPolicy.MinDelay = time.Duration(beUint64(v))
		case tagRetryMaxDelay:
			e.NewRetryPolicy.MaxDelay = time.Duration(beUint64(v))
		case tagRetryMultiplier:
			e.NewRetryPolicy.Multiplier = math.Float64frombits(beUint64(v))
		case tagRetryJitter:
			e.NewRetryPolicy.Jitter = math.Float64frombits(beUint64(v))
		case tagBeginIndex:
			e.BeginIndex = types.OplogIndex(beUint64(v))
		case tagPendingInvocation:
			inv, err := decodeInvocation(v)
			if err != nil {
				return err
			}
			e.PendingInvocation = inv
		case tagUpdateMode:
			e.UpdateDescription.Mode = types.UpdateMode(v)
		case tagTargetVersion:
			e.TargetVersion = types.ComponentVersion(beUint64(v))
			e.UpdateDescription.TargetVersion = e.TargetVersion
		case tagDetails:
			e.Details = string(v)
		default:
			// Unknown tag: a newer writer added a field this reader
			// doesn't know about yet. Skip it, forward-compatible.
		}
		return nil
	})
	return e, err
}
