package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/golemproject/golem/pkg/durable"
	"github.com/golemproject/golem/pkg/types"
)

// hostModuleName is the import namespace every worker's guest component
// sees its durable host functions under.
const hostModuleName = "golem:host"

// maxHTTPGetResponseBytes bounds how much of an http-get response body
// a guest's request is allowed to pull into the oplog.
const maxHTTPGetResponseBytes = 1 << 20

// registerHostFunctions builds this worker's durable host module and
// registers it with the wazero runtime before the component is
// instantiated: imports must already be resolvable when Instantiate
// runs, so this must be called before host.Instantiate in both Start
// and StartFromSnapshot.
func (w *Worker) registerHostFunctions(ctx context.Context) error {
	dc := w.durableContext()
	builder := w.host.HostModuleBuilder(hostModuleName)
	builder = durable.Register(builder, wallClockWrapper(), dc)
	builder = durable.Register(builder, httpGetWrapper(http.DefaultClient), dc)
	_, err := builder.Instantiate(ctx)
	return err
}

// wallClockWrapper exposes the host's wall clock to a guest component.
// Classified ReadLocal: the value is resolved from process state with
// no outbound call, but still must be replayed rather than
// re-evaluated so a resumed worker sees the same timestamp it saw live.
func wallClockWrapper() *durable.Wrapper[struct{}, int64] {
	return &durable.Wrapper[struct{}, int64]{
		Name:           "wall-clock-now",
		Type:           types.ReadLocal,
		EncodeRequest:  func(struct{}) []byte { return nil },
		DecodeRequest:  func([]byte) (struct{}, error) { return struct{}{}, nil },
		EncodeResponse: func(v int64) []byte { b, _ := json.Marshal(v); return b },
		DecodeResponse: func(b []byte) (int64, error) {
			var v int64
			err := json.Unmarshal(b, &v)
			return v, err
		},
		Execute: func(context.Context, struct{}) (int64, error) {
			return time.Now().UnixMilli(), nil
		},
	}
}

// httpGetRequest/httpGetResponse are the wire shapes a guest exchanges
// with the http-get host import.
type httpGetRequest struct {
	URL string `json:"url"`
}

type httpGetResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// httpGetWrapper exposes outbound HTTP GET to a guest component.
// Classified WriteRemote: it crosses the process boundary and the
// worker has no way to know the call was idempotent on the remote end,
// so a crash mid-call must be detected as an unfinished remote write on
// the next Start rather than silently retried.
func httpGetWrapper(client *http.Client) *durable.Wrapper[httpGetRequest, httpGetResponse] {
	return &durable.Wrapper[httpGetRequest, httpGetResponse]{
		Name: "http-get",
		Type: types.WriteRemote,
		EncodeRequest: func(r httpGetRequest) []byte {
			b, _ := json.Marshal(r)
			return b
		},
		DecodeRequest: func(b []byte) (httpGetRequest, error) {
			var r httpGetRequest
			err := json.Unmarshal(b, &r)
			return r, err
		},
		EncodeResponse: func(r httpGetResponse) []byte {
			b, _ := json.Marshal(r)
			return b
		},
		DecodeResponse: func(b []byte) (httpGetResponse, error) {
			var r httpGetResponse
			err := json.Unmarshal(b, &r)
			return r, err
		},
		Execute: func(ctx context.Context, req httpGetRequest) (httpGetResponse, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
			if err != nil {
				return httpGetResponse{}, err
			}
			resp, err := client.Do(httpReq)
			if err != nil {
				return httpGetResponse{}, err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPGetResponseBytes))
			if err != nil {
				return httpGetResponse{}, err
			}
			return httpGetResponse{Status: resp.StatusCode, Body: body}, nil
		},
	}
}
