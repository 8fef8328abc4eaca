package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHostFunctionsSucceedsBeforeInstantiate(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	// Start calls registerHostFunctions before host.Instantiate, so a
	// clean Start shows the registration succeeded; the durable context
	// the wrappers were built against carries the worker's oplog and
	// replay cursor.
	dc := w.durableContext()
	require.NotNil(t, dc.Oplog)
	require.NotNil(t, dc.Replay)
}

func TestWallClockWrapperLive(t *testing.T) {
	calls := wallClockWrapper()
	now, err := calls.Execute(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Positive(t, now)
}

func TestHTTPGetWrapperLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	wrapper := httpGetWrapper(srv.Client())
	resp, err := wrapper.Execute(context.Background(), httpGetRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestHTTPGetWrapperCodecRoundTrips(t *testing.T) {
	wrapper := httpGetWrapper(http.DefaultClient)

	reqBytes := wrapper.EncodeRequest(httpGetRequest{URL: "https://example.invalid"})
	decodedReq, err := wrapper.DecodeRequest(reqBytes)
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid", decodedReq.URL)

	respBytes := wrapper.EncodeResponse(httpGetResponse{Status: 200, Body: []byte("x")})
	decodedResp, err := wrapper.DecodeResponse(respBytes)
	require.NoError(t, err)
	assert.Equal(t, 200, decodedResp.Status)
	assert.Equal(t, []byte("x"), decodedResp.Body)
}
