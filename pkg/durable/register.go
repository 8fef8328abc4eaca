package durable

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Register exports w on builder as a guest-callable function using a
// pointer/length calling convention: the guest writes its encoded
// request into its own linear memory and passes (ptr, len); the host
// decodes it, runs the durability contract, and writes the encoded
// response back into a guest-supplied buffer (respPtr, respCap),
// returning the number of bytes written, or 0 on failure.
//
// This is the same ABI shape wazero's own examples and wasi_snapshot
// imports use for passing buffers across the guest/host boundary; it
// keeps the host module free of any assumption about the guest's
// language or allocator beyond "give me a pointer into your memory."
func Register[Req, Res any](builder wazero.HostModuleBuilder, w *Wrapper[Req, Res], c *Context) wazero.HostModuleBuilder {
	return builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, reqPtr, reqLen, respPtr, respCap uint32) uint32 {
			mem := mod.Memory()

			reqBytes, ok := mem.Read(reqPtr, reqLen)
			if !ok {
				return 0
			}
			req, err := w.DecodeRequest(reqBytes)
			if err != nil {
				return 0
			}

			res, err := w.Invoke(ctx, c, req)
			if err != nil {
				return 0
			}

			respBytes := w.EncodeResponse(res)
			if uint32(len(respBytes)) > respCap {
				return 0
			}
			if !mem.Write(respPtr, respBytes) {
				return 0
			}
			return uint32(len(respBytes))
		}).
		Export(w.Name)
}
