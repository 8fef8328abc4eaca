package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/golemproject/golem/api/proto"
	"github.com/golemproject/golem/pkg/security"
	"github.com/golemproject/golem/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const defaultTimeout = 10 * time.Second

// connectWithMTLS dials addr using the CLI certificate found in
// certDir, verifying the server against the same fleet CA.
func connectWithMTLS(addr, certDir string) (*grpc.ClientConn, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CLI certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// ExecutorClient wraps the WorkerExecutor gRPC service for CLI and
// inter-executor use.
type ExecutorClient struct {
	conn   *grpc.ClientConn
	client proto.WorkerExecutorClient
}

// NewExecutorClient connects to an executor at addr using the CLI
// certificate in pkg/security's standard CLI cert directory. The
// certificate itself must already exist — issuing one is an
// out-of-band admin operation against pkg/security.CertAuthority, not
// an RPC this client makes.
func NewExecutorClient(addr string) (*ExecutorClient, error) {
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, fmt.Errorf("get CLI cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("CLI certificate not found at %s - issue one via the fleet CA first", certDir)
	}
	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, err
	}
	return &ExecutorClient{conn: conn, client: proto.NewWorkerExecutorClient(conn)}, nil
}

func (c *ExecutorClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func toProtoWorkerId(id types.WorkerId) *proto.WorkerId {
	return &proto.WorkerId{ComponentId: string(id.ComponentId), WorkerName: id.WorkerName}
}

// CreateWorker starts a new worker running componentVersion.
func (c *ExecutorClient) CreateWorker(ctx context.Context, id types.WorkerId, version types.ComponentVersion, args []string, env map[string]string, accountId types.AccountId) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.CreateWorker(ctx, &proto.CreateWorkerRequest{
		WorkerId:         toProtoWorkerId(id),
		ComponentVersion: uint64(version),
		Args:             args,
		Env:              env,
		AccountId:        string(accountId),
	})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("create worker: %s", failure.Message)
	}
	return nil
}

// Invoke submits invocation fire-and-forget; the caller should poll
// GetMetadata or GetOplog for its result.
func (c *ExecutorClient) Invoke(ctx context.Context, id types.WorkerId, functionName string, requestPayload []byte, idempotencyKey types.IdempotencyKey, invocationContext map[string]string) error {
	resp, err := c.client.Invoke(ctx, &proto.InvokeRequest{
		WorkerId:          toProtoWorkerId(id),
		FunctionName:      functionName,
		RequestPayload:    requestPayload,
		IdempotencyKey:    string(idempotencyKey),
		InvocationContext: invocationContext,
	})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("invoke: %s", failure.Message)
	}
	return nil
}

// InvokeAndAwait submits an invocation and blocks until its response
// payload is available.
func (c *ExecutorClient) InvokeAndAwait(ctx context.Context, id types.WorkerId, functionName string, requestPayload []byte, idempotencyKey types.IdempotencyKey, invocationContext map[string]string) ([]byte, error) {
	resp, err := c.client.InvokeAndAwait(ctx, &proto.InvokeRequest{
		WorkerId:          toProtoWorkerId(id),
		FunctionName:      functionName,
		RequestPayload:    requestPayload,
		IdempotencyKey:    string(idempotencyKey),
		InvocationContext: invocationContext,
	})
	if err != nil {
		return nil, err
	}
	if failure := resp.GetFailure(); failure != nil {
		return nil, fmt.Errorf("invoke and await: %s", failure.Message)
	}
	return resp.GetResponsePayload(), nil
}

// GetMetadata returns a point-in-time status snapshot for id.
func (c *ExecutorClient) GetMetadata(ctx context.Context, id types.WorkerId) (*proto.WorkerMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.GetMetadata(ctx, &proto.GetMetadataRequest{WorkerId: toProtoWorkerId(id)})
	if err != nil {
		return nil, err
	}
	if failure := resp.GetFailure(); failure != nil {
		return nil, fmt.Errorf("get metadata: %s", failure.Message)
	}
	return resp.GetMetadata(), nil
}

// Interrupt requests graceful cancellation of id's in-flight work.
func (c *ExecutorClient) Interrupt(ctx context.Context, id types.WorkerId) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.Interrupt(ctx, &proto.InterruptRequest{WorkerId: toProtoWorkerId(id)})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("interrupt: %s", failure.Message)
	}
	return nil
}

// Delete stops and unregisters id.
func (c *ExecutorClient) Delete(ctx context.Context, id types.WorkerId) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.Delete(ctx, &proto.DeleteRequest{WorkerId: toProtoWorkerId(id)})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("delete worker: %s", failure.Message)
	}
	return nil
}

// Update requests a live update of id to targetVersion, using mode
// "automatic" or "snapshot".
func (c *ExecutorClient) Update(ctx context.Context, id types.WorkerId, targetVersion types.ComponentVersion, mode string) error {
	resp, err := c.client.Update(ctx, &proto.UpdateRequest{
		WorkerId:      toProtoWorkerId(id),
		TargetVersion: uint64(targetVersion),
		Mode:          mode,
	})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("update: %s", failure.Message)
	}
	return nil
}

// GetOplog returns entries in [fromIndex, toIndex]; toIndex == 0 reads
// through the current tail.
func (c *ExecutorClient) GetOplog(ctx context.Context, id types.WorkerId, fromIndex, toIndex types.OplogIndex) ([]*proto.OplogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.GetOplog(ctx, &proto.GetOplogRequest{
		WorkerId:  toProtoWorkerId(id),
		FromIndex: uint64(fromIndex),
		ToIndex:   uint64(toIndex),
	})
	if err != nil {
		return nil, err
	}
	if failure := resp.GetFailure(); failure != nil {
		return nil, fmt.Errorf("get oplog: %s", failure.Message)
	}
	return resp.GetEntries().GetEntries(), nil
}

// HealthCheck reports whether the executor at the other end is alive.
func (c *ExecutorClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.HealthCheck(ctx, &proto.HealthCheckRequest{})
	if err != nil {
		return false
	}
	return resp.Healthy
}

// ShardManagerClient wraps the ShardManager gRPC service.
type ShardManagerClient struct {
	conn   *grpc.ClientConn
	client proto.ShardManagerClient
}

// NewShardManagerClient connects to a shard manager at addr using the
// CLI certificate in pkg/security's standard CLI cert directory.
func NewShardManagerClient(addr string) (*ShardManagerClient, error) {
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, fmt.Errorf("get CLI cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("CLI certificate not found at %s - issue one via the fleet CA first", certDir)
	}
	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, err
	}
	return &ShardManagerClient{conn: conn, client: proto.NewShardManagerClient(conn)}, nil
}

func (c *ShardManagerClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Register joins a pod to the fleet, returning its initial shard
// assignment.
func (c *ShardManagerClient) Register(ctx context.Context, host string, port uint16, podName string) (*proto.RegisterSuccess, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.Register(ctx, &proto.RegisterRequest{
		Host:    host,
		Port:    uint32(port),
		PodName: &podName,
	})
	if err != nil {
		return nil, err
	}
	if failure := resp.GetFailure(); failure != nil {
		return nil, fmt.Errorf("register: %s", failure.Message)
	}
	return resp.GetSuccess(), nil
}

// GetRoutingTable returns the current shard→pod assignment snapshot.
func (c *ShardManagerClient) GetRoutingTable(ctx context.Context) (*proto.RoutingTable, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.client.GetRoutingTable(ctx, &proto.GetRoutingTableRequest{})
	if err != nil {
		return nil, err
	}
	if failure := resp.GetFailure(); failure != nil {
		return nil, fmt.Errorf("get routing table: %s", failure.Message)
	}
	return resp.GetSuccess(), nil
}
