package shardmanager

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/golemproject/golem/api/proto"
	"github.com/golemproject/golem/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCClients is the production ClientFactory: one cached
// WorkerExecutor connection per pod, redialed lazily on first use.
// mTLS dialing (pkg/security.CertAuthority-issued credentials, the same
// certificates pkg/client uses for the CLI connection) replaces the
// insecure credentials here once a pod-facing certificate profile
// exists; until then connections are plaintext.
type GRPCClients struct {
	mu    sync.Mutex
	conns map[string]pb.WorkerExecutorClient
}

func NewGRPCClients() *GRPCClients {
	return &GRPCClients{conns: make(map[string]pb.WorkerExecutorClient)}
}

func (c *GRPCClients) For(pod types.Pod) ExecutorClient {
	return &grpcExecutorClient{clients: c, pod: pod}
}

func (c *GRPCClients) dial(pod types.Pod) (pb.WorkerExecutorClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.conns[pod.Key()]; ok {
		return client, nil
	}

	conn, err := grpc.NewClient(pod.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial pod %s: %w", pod, err)
	}
	client := pb.NewWorkerExecutorClient(conn)
	c.conns[pod.Key()] = client
	return client, nil
}

type grpcExecutorClient struct {
	clients *GRPCClients
	pod     types.Pod
}

func (g *grpcExecutorClient) AssignShards(ctx context.Context, pod types.Pod, shards []types.ShardId) error {
	client, err := g.clients.dial(pod)
	if err != nil {
		return err
	}
	ids := make([]uint32, len(shards))
	for i, s := range shards {
		ids[i] = uint32(s)
	}
	resp, err := client.AssignShards(ctx, &pb.AssignShardsRequest{ShardIds: ids})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("assign shards: %s", failure.Message)
	}
	return nil
}

func (g *grpcExecutorClient) RevokeShards(ctx context.Context, pod types.Pod, shards []types.ShardId) error {
	client, err := g.clients.dial(pod)
	if err != nil {
		return err
	}
	ids := make([]uint32, len(shards))
	for i, s := range shards {
		ids[i] = uint32(s)
	}
	resp, err := client.RevokeShards(ctx, &pb.RevokeShardsRequest{ShardIds: ids})
	if err != nil {
		return err
	}
	if failure := resp.GetFailure(); failure != nil {
		return fmt.Errorf("revoke shards: %s", failure.Message)
	}
	return nil
}

func (g *grpcExecutorClient) HealthCheck(ctx context.Context, pod types.Pod) bool {
	client, err := g.clients.dial(pod)
	if err != nil {
		return false
	}
	resp, err := client.HealthCheck(ctx, &pb.HealthCheckRequest{})
	if err != nil {
		return false
	}
	return resp.Healthy
}
