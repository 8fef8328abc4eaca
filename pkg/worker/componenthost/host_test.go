package componenthost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// emptyModule is the smallest valid WASM binary: the magic number and
// version, no sections at all. It compiles and instantiates cleanly
// and exports nothing, enough to exercise the lifecycle without a real
// component on hand.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestHostLifecycle(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.LoadComponent(ctx, emptyModule))
	require.NoError(t, h.Instantiate(ctx, wazero.NewModuleConfig()))

	_, err = h.InvokeExport(ctx, "does-not-exist")
	assert.Error(t, err)
}

func TestInvokeExportBeforeInstantiateErrors(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	_, err = h.InvokeExport(ctx, "whatever")
	assert.Error(t, err)
}

func TestInvokeExportWithPayloadBeforeInstantiateErrors(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	_, err = h.InvokeExportWithPayload(ctx, "whatever", []byte("req"))
	assert.Error(t, err)
}

func TestInvokeExportWithPayloadMissingExportErrors(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.LoadComponent(ctx, emptyModule))
	require.NoError(t, h.Instantiate(ctx, wazero.NewModuleConfig()))

	_, err = h.InvokeExportWithPayload(ctx, "does-not-exist", []byte("req"))
	assert.Error(t, err)
}
