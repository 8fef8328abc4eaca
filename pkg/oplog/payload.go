package oplog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
)

// InlineThreshold is the largest payload kept directly in an oplog
// entry. Larger payloads are written to blob storage and referenced by
// path instead, keeping the hot append path allocation-light.
const InlineThreshold = 4 * 1024

// UploadPayload returns a PayloadRef for data: inline if it fits under
// InlineThreshold, otherwise a content-addressed blob reference.
func UploadPayload(ctx context.Context, blob storage.BlobStorage, workerId types.WorkerId, data []byte) (types.PayloadRef, error) {
	if len(data) <= InlineThreshold {
		return types.InlinePayload(data), nil
	}
	sum := sha256.Sum256(data)
	path := fmt.Sprintf("%s/%s", workerId.String(), hex.EncodeToString(sum[:]))
	if err := blob.Put(ctx, storage.BlobNamespaceOplogPayload, path, data); err != nil {
		return types.PayloadRef{}, fmt.Errorf("upload oplog payload: %w", err)
	}
	return types.ExternalPayload(path), nil
}

// DownloadPayload resolves a PayloadRef back to its bytes, fetching from
// blob storage if it was written externally.
func DownloadPayload(ctx context.Context, blob storage.BlobStorage, ref types.PayloadRef) ([]byte, error) {
	if !ref.IsExternal() {
		return ref.Inline, nil
	}
	data, err := blob.Get(ctx, storage.BlobNamespaceOplogPayload, ref.External)
	if err != nil {
		return nil, fmt.Errorf("download oplog payload %s: %w", ref.External, err)
	}
	return data, nil
}

// AddImportedFunctionInvoked records a host call the guest made.
func AddImportedFunctionInvoked(ctx context.Context, o Oplog, blob storage.BlobStorage, workerId types.WorkerId, functionName string, request, response []byte, fnType types.DurableFunctionType) (types.OplogIndex, error) {
	reqRef, err := UploadPayload(ctx, blob, workerId, request)
	if err != nil {
		return 0, err
	}
	respRef, err := UploadPayload(ctx, blob, workerId, response)
	if err != nil {
		return 0, err
	}
	return o.Add(ctx, types.OplogEntry{
		Kind:                types.EntryImportedFunctionInvoked,
		Timestamp:           time.Now(),
		FunctionName:        functionName,
		Request:             reqRef,
		Response:            respRef,
		DurableFunctionType: fnType,
	})
}

// AddExportedFunctionInvoked records an incoming invocation request.
func AddExportedFunctionInvoked(ctx context.Context, o Oplog, blob storage.BlobStorage, workerId types.WorkerId, functionName string, request []byte, idempotencyKey types.IdempotencyKey, invocationContext map[string]string) (types.OplogIndex, error) {
	reqRef, err := UploadPayload(ctx, blob, workerId, request)
	if err != nil {
		return 0, err
	}
	return o.Add(ctx, types.OplogEntry{
		Kind:              types.EntryExportedFunctionInvoked,
		Timestamp:         time.Now(),
		FunctionName:      functionName,
		Request:           reqRef,
		IdempotencyKey:    idempotencyKey,
		InvocationContext: invocationContext,
	})
}

// AddExportedFunctionCompleted pairs with the preceding
// ExportedFunctionInvoked, recording its result.
func AddExportedFunctionCompleted(ctx context.Context, o Oplog, blob storage.BlobStorage, workerId types.WorkerId, response []byte, consumedFuel int64) (types.OplogIndex, error) {
	respRef, err := UploadPayload(ctx, blob, workerId, response)
	if err != nil {
		return 0, err
	}
	return o.Add(ctx, types.OplogEntry{
		Kind:         types.EntryExportedFunctionCompleted,
		Timestamp:    time.Now(),
		Response:     respRef,
		ConsumedFuel: consumedFuel,
	})
}
