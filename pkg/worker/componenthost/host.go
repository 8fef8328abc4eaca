// Package componenthost wraps a wazero runtime into the same
// load/instantiate/invoke/close lifecycle pkg/runtime.ContainerdRuntime
// exposed for OCI containers, substituting a WASM component for an OCI
// image and an in-process module instance for a container process.
package componenthost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Host holds one compiled component and, once Instantiate has run, its
// live instance. A Host is not safe for concurrent Instantiate/Close
// calls; a worker owns exactly one Host at a time.
type Host struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	module   api.Module
}

// New builds a Host backed by a fresh wazero runtime with WASI preview1
// imports available to every component it loads.
func New(ctx context.Context) (*Host, error) {
	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	return &Host{runtime: runtime}, nil
}

// HostModuleBuilder starts a new host module registration under name,
// the attachment point durable.Register uses to export wrapped host
// functions to the guest.
func (h *Host) HostModuleBuilder(name string) wazero.HostModuleBuilder {
	return h.runtime.NewHostModuleBuilder(name)
}

// LoadComponent compiles wasmBytes, replacing
// ContainerdRuntime.PullImage's role of making an image available
// locally before it can be run.
func (h *Host) LoadComponent(ctx context.Context, wasmBytes []byte) error {
	compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile component: %w", err)
	}
	h.compiled = compiled
	return nil
}

// Instantiate starts a fresh instance of the loaded component, the
// equivalent of ContainerdRuntime.CreateContainer + StartContainer
// collapsed into one step since a wazero module instance has no
// separate "created but not started" phase.
func (h *Host) Instantiate(ctx context.Context, config wazero.ModuleConfig) error {
	if h.compiled == nil {
		return fmt.Errorf("instantiate: no component loaded")
	}
	module, err := h.runtime.InstantiateModule(ctx, h.compiled, config)
	if err != nil {
		return fmt.Errorf("instantiate component: %w", err)
	}
	h.module = module
	return nil
}

// InvokeExport calls an exported guest function by name, the
// equivalent of driving a running container's entrypoint.
func (h *Host) InvokeExport(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if h.module == nil {
		return nil, fmt.Errorf("invoke %s: component not instantiated", name)
	}
	fn := h.module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("invoke %s: export not found", name)
	}
	return fn.Call(ctx, args...)
}

// guestAllocExport is the export a component provides so the host can
// request a buffer in its linear memory, the mirror image of
// durable.Register's host-side ptr/len convention. A component with no
// such export is called with no arguments instead (the same fallback
// InvokeExport's callers already use for parameterless hooks like
// save-snapshot/load-snapshot).
const guestAllocExport = "golem_alloc"

// maxGuestResponseBytes bounds the response buffer InvokeExportWithPayload
// reserves in guest memory before calling a payload-bearing export.
const maxGuestResponseBytes = 1 << 20

// InvokeExportWithPayload calls a guest export using the ptr/len/respPtr/
// respCap convention pkg/durable.Register uses for the opposite
// direction (host functions the guest calls): the host asks the
// guest's own golem_alloc export for a buffer, writes requestBytes
// into it, reserves a second buffer for the response, and calls name
// with (reqPtr, reqLen, respPtr, respCap). The export returns the
// number of bytes it wrote into the response buffer (0 for "no
// output"), which is read back and returned.
//
// If the component exports no golem_alloc, name is called with no
// arguments and InvokeExportWithPayload returns no response bytes —
// the convention optional zero-argument exports (save-snapshot,
// load-snapshot) already rely on.
func (h *Host) InvokeExportWithPayload(ctx context.Context, name string, requestBytes []byte) ([]byte, error) {
	if h.module == nil {
		return nil, fmt.Errorf("invoke %s: component not instantiated", name)
	}
	fn := h.module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("invoke %s: export not found", name)
	}

	alloc := h.module.ExportedFunction(guestAllocExport)
	if alloc == nil {
		if _, err := fn.Call(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	mem := h.module.Memory()

	reqPtr, err := h.guestAlloc(ctx, alloc, uint32(len(requestBytes)))
	if err != nil {
		return nil, fmt.Errorf("allocate request buffer: %w", err)
	}
	if len(requestBytes) > 0 && !mem.Write(reqPtr, requestBytes) {
		return nil, fmt.Errorf("invoke %s: write request payload into guest memory", name)
	}

	respPtr, err := h.guestAlloc(ctx, alloc, maxGuestResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("allocate response buffer: %w", err)
	}

	results, err := fn.Call(ctx, uint64(reqPtr), uint64(len(requestBytes)), uint64(respPtr), uint64(maxGuestResponseBytes))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, nil
	}

	written := uint32(results[0])
	respBytes, ok := mem.Read(respPtr, written)
	if !ok {
		return nil, fmt.Errorf("invoke %s: read response from guest memory", name)
	}
	out := make([]byte, len(respBytes))
	copy(out, respBytes)
	return out, nil
}

func (h *Host) guestAlloc(ctx context.Context, alloc api.Function, size uint32) (uint32, error) {
	results, err := alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%s returned no pointer", guestAllocExport)
	}
	return uint32(results[0]), nil
}

// HasExport reports whether the instantiated component exports a
// function named name, letting callers treat optional exports (such as
// the update engine's save-snapshot/load-snapshot hooks) as absent
// rather than an error.
func (h *Host) HasExport(name string) bool {
	if h.module == nil {
		return false
	}
	return h.module.ExportedFunction(name) != nil
}

// Memory exposes the instance's linear memory so durable.Register's
// host functions can read guest-supplied buffers.
func (h *Host) Memory() api.Memory {
	if h.module == nil {
		return nil
	}
	return h.module.Memory()
}

// Close tears the instance and compiled component down, the equivalent
// of ContainerdRuntime.StopContainer + DeleteContainer.
func (h *Host) Close(ctx context.Context) error {
	if h.module != nil {
		if err := h.module.Close(ctx); err != nil {
			return err
		}
	}
	return h.runtime.Close(ctx)
}
