package shardmanager

import (
	"context"
	"fmt"
	"net"

	pb "github.com/golemproject/golem/api/proto"
	"github.com/golemproject/golem/pkg/types"
	"google.golang.org/grpc/peer"
)

// Server adapts ShardManager onto the generated ShardManagerServer
// gRPC interface. Grounded on
// original_source/golem-shard-manager/src/server.rs's
// ShardManagerServiceImpl's tonic service impl.
type Server struct {
	pb.UnimplementedShardManagerServer
	sm *ShardManager
}

func NewServer(sm *ShardManager) *Server {
	return &Server{sm: sm}
}

// Register validates that the caller's declared host:port resolves to
// the address the RPC actually arrived from before accepting it — the
// anti-spoofing check from Pod::from_register_request, using the gRPC
// peer's observed address the way the original reads
// tonic::Request::remote_addr().
func (s *Server) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	pod := types.Pod{Host: req.Host, Port: uint16(req.Port)}
	if req.PodName != nil {
		pod.PodName = *req.PodName
	}

	if err := verifyRegistrationSource(ctx, pod); err != nil {
		return &pb.RegisterResponse{
			Result: &pb.RegisterResponse_Failure{Failure: &pb.Error{
				Code:    pb.ErrorCode_ERROR_CODE_BAD_REQUEST,
				Message: err.Error(),
			}},
		}, nil
	}

	rt, err := s.sm.Register(ctx, pod)
	if err != nil {
		return &pb.RegisterResponse{
			Result: &pb.RegisterResponse_Failure{Failure: &pb.Error{
				Code:    pb.ErrorCode_ERROR_CODE_INTERNAL,
				Message: err.Error(),
			}},
		}, nil
	}

	shards := rt.Assignments[pod.Key()]
	ids := make([]uint32, 0, len(shards.Shards))
	for id := range shards.Shards {
		ids = append(ids, uint32(id))
	}
	return &pb.RegisterResponse{
		Result: &pb.RegisterResponse_Success{Success: &pb.RegisterSuccess{
			NumberOfShards: uint32(rt.NumberOfShards),
			ShardIds:       ids,
		}},
	}, nil
}

func (s *Server) GetRoutingTable(_ context.Context, _ *pb.GetRoutingTableRequest) (*pb.GetRoutingTableResponse, error) {
	rt := s.sm.GetRoutingTable()

	entries := make([]*pb.RoutingTableEntry, 0, len(rt.Assignments))
	for _, ps := range rt.Assignments {
		ids := make([]uint32, 0, len(ps.Shards))
		for id := range ps.Shards {
			ids = append(ids, uint32(id))
		}
		var podName *string
		if ps.Pod.PodName != "" {
			podName = &ps.Pod.PodName
		}
		entries = append(entries, &pb.RoutingTableEntry{
			Pod: &pb.Pod{
				Host:    ps.Pod.Host,
				Port:    uint32(ps.Pod.Port),
				PodName: podName,
			},
			ShardIds: ids,
		})
	}

	return &pb.GetRoutingTableResponse{
		Result: &pb.GetRoutingTableResponse_Success{Success: &pb.RoutingTable{
			NumberOfShards: uint32(rt.NumberOfShards),
			Assignments:    entries,
		}},
	}, nil
}

// verifyRegistrationSource rejects a registration whose declared
// host:port does not resolve to an address matching the connection it
// arrived over, preventing a pod from registering on another pod's
// behalf.
func verifyRegistrationSource(ctx context.Context, pod types.Pod) error {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return fmt.Errorf("missing peer address")
	}

	resolved, err := net.ResolveTCPAddr("tcp", pod.Address())
	if err != nil {
		return fmt.Errorf("resolve declared address %s: %w", pod.Address(), err)
	}

	observedHost, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return fmt.Errorf("parse peer address: %w", err)
	}
	observed := net.ParseIP(observedHost)

	if observed == nil || !resolved.IP.Equal(observed) {
		return fmt.Errorf("declared host %s does not match connection source %s", pod.Host, observedHost)
	}
	return nil
}
