package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golemproject/golem/api/proto"
	"github.com/golemproject/golem/pkg/events"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/scheduler"
	"github.com/golemproject/golem/pkg/security"
	"github.com/golemproject/golem/pkg/shardmanager"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/update"
	"github.com/golemproject/golem/pkg/worker"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// newServerTLSConfig loads the pod's certificate and the CA pool used to
// verify inbound client certificates. Both executor and shard-manager
// processes share this setup; only the podType/podID used to locate the
// certificate directory differ.
func newServerTLSConfig(podType, podID string) (*tls.Config, error) {
	certDir, err := security.GetCertDir(podType, podID)
	if err != nil {
		return nil, fmt.Errorf("get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("%s certificate not found at %s - ensure the fleet CA has issued one", podType, certDir)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load %s certificate: %w", podType, err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	return &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func toWorkerId(id *proto.WorkerId) types.WorkerId {
	if id == nil {
		return types.WorkerId{}
	}
	return types.WorkerId{
		ComponentId: types.ComponentId(id.ComponentId),
		WorkerName:  id.WorkerName,
	}
}

func fromWorkerId(id types.WorkerId) *proto.WorkerId {
	return &proto.WorkerId{
		ComponentId: string(id.ComponentId),
		WorkerName:  id.WorkerName,
	}
}

func errorResponse(code proto.ErrorCode, err error) *proto.Error {
	return &proto.Error{Code: code, Message: err.Error()}
}

// invokeErrorResponse classifies an error returned from Worker.Invoke:
// a duplicate idempotency key submitted with different arguments is a
// client error, everything else is internal.
func invokeErrorResponse(err error) *proto.Error {
	var dup *worker.AlreadyExistsError
	if errors.As(err, &dup) {
		return errorResponse(proto.ErrorCode_ERROR_CODE_ALREADY_EXISTS, err)
	}
	return errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err)
}

// ExecutorServer implements the WorkerExecutor gRPC service: one
// process hosting some subset of the fleet's workers, the shards it
// currently owns assigned to it by the shard manager.
type ExecutorServer struct {
	proto.UnimplementedWorkerExecutorServer

	workers        *scheduler.Registry
	scheduler      *scheduler.Scheduler
	oplogs         *oplog.OpenOplogs
	blob           storage.BlobStorage
	loadComponent  worker.ComponentLoader
	updater        *update.Engine
	events         *events.Broker
	retryPolicy    types.RetryPolicy
	numberOfShards int

	mu           sync.RWMutex
	ownedShards  map[types.ShardId]struct{}

	logger zerolog.Logger
	grpc   *grpc.Server
}

// ExecutorConfig bundles the dependencies an ExecutorServer needs. All
// workers it creates share these: the oplog store, blob storage,
// component loader, and update engine come from a single executor
// process's wiring. Scheduler is optional; without one, an Invoke whose
// ScheduledFor is in the future is still durably parked by the worker
// but never actually delivered, so a production deployment should
// always set it.
type ExecutorConfig struct {
	Workers        *scheduler.Registry
	Scheduler      *scheduler.Scheduler
	Oplogs         *oplog.OpenOplogs
	Blob           storage.BlobStorage
	LoadComponent  worker.ComponentLoader
	Updater        *update.Engine
	Events         *events.Broker
	RetryPolicy    types.RetryPolicy
	NumberOfShards int
}

// NewExecutorServer creates an ExecutorServer with mTLS wired in from
// the fleet certificate authority. podID identifies this executor
// process for certificate lookup purposes.
func NewExecutorServer(podID string, cfg ExecutorConfig) (*ExecutorServer, error) {
	tlsConfig, err := newServerTLSConfig("executor", podID)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewTLS(tlsConfig)
	grpcServer := grpc.NewServer(grpc.Creds(creds))

	return &ExecutorServer{
		workers:        cfg.Workers,
		scheduler:      cfg.Scheduler,
		oplogs:         cfg.Oplogs,
		blob:           cfg.Blob,
		loadComponent:  cfg.LoadComponent,
		updater:        cfg.Updater,
		events:         cfg.Events,
		retryPolicy:    cfg.RetryPolicy,
		numberOfShards: cfg.NumberOfShards,
		ownedShards:    make(map[types.ShardId]struct{}),
		logger:         log.WithComponent("executor-api"),
		grpc:           grpcServer,
	}, nil
}

// Start begins serving the WorkerExecutor service on addr. Blocks until
// Stop is called or the listener errors.
func (s *ExecutorServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	proto.RegisterWorkerExecutorServer(s.grpc, s)
	s.logger.Info().Str("addr", addr).Msg("executor gRPC server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *ExecutorServer) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// shardOwned reports whether this executor currently owns the shard
// worker routes to, per the shard-manager-assigned ownedShards set. A
// process configured with numberOfShards == 0 (single-node/dev setups)
// always accepts the request.
func (s *ExecutorServer) shardOwned(id types.WorkerId) bool {
	if s.numberOfShards == 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ownedShards[id.ShardOf(s.numberOfShards)]
	return ok
}

func (s *ExecutorServer) newWorkerConfig(id types.WorkerId, version types.ComponentVersion, args []string, env map[string]string, accountId types.AccountId) worker.Config {
	return worker.Config{
		WorkerId:         id,
		ComponentVersion: version,
		Args:             args,
		Env:              env,
		AccountId:        accountId,
		Oplogs:           s.oplogs,
		Blob:             s.blob,
		LoadComponent:    s.loadComponent,
		RetryPolicy:      s.retryPolicy,
		Events:           s.events,
	}
}

func (s *ExecutorServer) CreateWorker(ctx context.Context, req *proto.CreateWorkerRequest) (*proto.CreateWorkerResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "CreateWorker")

	id := toWorkerId(req.WorkerId)
	if !s.shardOwned(id) {
		metrics.APIRequestsTotal.WithLabelValues("CreateWorker", "wrong-shard").Inc()
		return &proto.CreateWorkerResponse{Result: &proto.CreateWorkerResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_BAD_REQUEST, fmt.Errorf("worker does not route to a shard owned by this executor")),
		}}, nil
	}

	if _, ok := s.workers.Get(id); ok {
		metrics.APIRequestsTotal.WithLabelValues("CreateWorker", "already-exists").Inc()
		return &proto.CreateWorkerResponse{Result: &proto.CreateWorkerResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_ALREADY_EXISTS, fmt.Errorf("worker %s already exists", id)),
		}}, nil
	}

	cfg := s.newWorkerConfig(id, types.ComponentVersion(req.ComponentVersion), req.Args, req.Env, types.AccountId(req.AccountId))
	w := worker.New(cfg)
	if err := w.Start(ctx); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("CreateWorker", "error").Inc()
		return &proto.CreateWorkerResponse{Result: &proto.CreateWorkerResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}
	s.workers.Register(id, w)

	metrics.APIRequestsTotal.WithLabelValues("CreateWorker", "ok").Inc()
	return &proto.CreateWorkerResponse{Result: &proto.CreateWorkerResponse_Success{Success: &proto.Empty{}}}, nil
}

func (s *ExecutorServer) lookupWorker(id types.WorkerId) (*worker.Worker, error) {
	w, ok := s.workers.Get(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "worker %s not found", id)
	}
	return w, nil
}

func (s *ExecutorServer) Invoke(ctx context.Context, req *proto.InvokeRequest) (*proto.InvokeResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "Invoke")

	id := toWorkerId(req.WorkerId)
	w, err := s.lookupWorker(id)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("Invoke", "not-found").Inc()
		return nil, err
	}

	invocation, err := s.buildInvocation(ctx, id, req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("Invoke", "error").Inc()
		return &proto.InvokeResponse{Result: &proto.InvokeResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_BAD_REQUEST, err),
		}}, nil
	}

	if err := s.deliverInvocation(ctx, id, w, invocation); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("Invoke", "error").Inc()
		return &proto.InvokeResponse{Result: &proto.InvokeResponse_Failure{
			Failure: invokeErrorResponse(err),
		}}, nil
	}

	metrics.APIRequestsTotal.WithLabelValues("Invoke", "ok").Inc()
	return &proto.InvokeResponse{Result: &proto.InvokeResponse_Success{Success: &proto.Empty{}}}, nil
}

// deliverInvocation routes invocation to the worker directly, unless it
// carries a future ScheduledFor and a Scheduler is configured, in which
// case the scheduler holds it externally and redelivers it via w.Invoke
// once due. Without a configured scheduler a future-scheduled
// invocation still reaches the worker, which durably parks it but never
// redelivers it on its own.
func (s *ExecutorServer) deliverInvocation(ctx context.Context, id types.WorkerId, w *worker.Worker, invocation types.Invocation) error {
	if s.scheduler != nil && invocation.IsScheduled() && invocation.ScheduledFor.After(time.Now()) {
		return s.scheduler.Schedule(ctx, id, invocation)
	}
	return w.Invoke(ctx, invocation)
}

func (s *ExecutorServer) InvokeAndAwait(ctx context.Context, req *proto.InvokeRequest) (*proto.InvokeAndAwaitResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "InvokeAndAwait")

	id := toWorkerId(req.WorkerId)
	w, err := s.lookupWorker(id)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "not-found").Inc()
		return nil, err
	}

	invocation, err := s.buildInvocation(ctx, id, req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "error").Inc()
		return &proto.InvokeAndAwaitResponse{Result: &proto.InvokeAndAwaitResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_BAD_REQUEST, err),
		}}, nil
	}

	if err := s.deliverInvocation(ctx, id, w, invocation); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "error").Inc()
		return &proto.InvokeAndAwaitResponse{Result: &proto.InvokeAndAwaitResponse_Failure{
			Failure: invokeErrorResponse(err),
		}}, nil
	}

	response, err := w.AwaitCompletion(ctx, invocation.IdempotencyKey)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "error").Inc()
		return &proto.InvokeAndAwaitResponse{Result: &proto.InvokeAndAwaitResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}

	payload, err := oplog.DownloadPayload(ctx, s.blob, response)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "error").Inc()
		return &proto.InvokeAndAwaitResponse{Result: &proto.InvokeAndAwaitResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}

	metrics.APIRequestsTotal.WithLabelValues("InvokeAndAwait", "ok").Inc()
	return &proto.InvokeAndAwaitResponse{Result: &proto.InvokeAndAwaitResponse_ResponsePayload{ResponsePayload: payload}}, nil
}

// buildInvocation uploads the request payload to blob storage (or keeps
// it inline, UploadPayload decides based on size) and assembles the
// durable Invocation record the worker enqueues.
func (s *ExecutorServer) buildInvocation(ctx context.Context, id types.WorkerId, req *proto.InvokeRequest) (types.Invocation, error) {
	ref, err := oplog.UploadPayload(ctx, s.blob, id, req.RequestPayload)
	if err != nil {
		return types.Invocation{}, fmt.Errorf("upload request payload: %w", err)
	}

	var scheduledFor time.Time
	if req.ScheduledFor != nil {
		scheduledFor = req.ScheduledFor.AsTime()
	}

	return types.Invocation{
		IdempotencyKey:    types.IdempotencyKey(req.IdempotencyKey),
		FunctionName:      req.FunctionName,
		Request:           ref,
		InvocationContext: req.InvocationContext,
		ScheduledFor:      scheduledFor,
	}, nil
}

func (s *ExecutorServer) GetMetadata(ctx context.Context, req *proto.GetMetadataRequest) (*proto.GetMetadataResponse, error) {
	id := toWorkerId(req.WorkerId)
	w, err := s.lookupWorker(id)
	if err != nil {
		return nil, err
	}

	md := w.Metadata()
	return &proto.GetMetadataResponse{Result: &proto.GetMetadataResponse_Metadata{
		Metadata: &proto.WorkerMetadata{
			WorkerId:                fromWorkerId(md.WorkerId),
			Status:                  string(md.Status),
			LastKnownOplogIndex:     uint64(md.LastKnownOplogIndex),
			CurrentComponentVersion: uint64(md.CurrentComponentVersion),
			PendingInvocationCount:  int32(md.PendingInvocationCount),
			LastError:               md.LastError,
			UpdateTargetVersion:     uint64(md.UpdateTargetVersion),
		},
	}}, nil
}

func (s *ExecutorServer) Interrupt(ctx context.Context, req *proto.InterruptRequest) (*proto.InterruptResponse, error) {
	id := toWorkerId(req.WorkerId)
	w, err := s.lookupWorker(id)
	if err != nil {
		return nil, err
	}
	w.Interrupt()
	return &proto.InterruptResponse{Result: &proto.InterruptResponse_Success{Success: &proto.Empty{}}}, nil
}

func (s *ExecutorServer) Delete(ctx context.Context, req *proto.DeleteRequest) (*proto.DeleteResponse, error) {
	id := toWorkerId(req.WorkerId)
	w, ok := s.workers.Get(id)
	if !ok {
		return &proto.DeleteResponse{Result: &proto.DeleteResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_NOT_FOUND, fmt.Errorf("worker %s not found", id)),
		}}, nil
	}
	if err := w.Stop(ctx); err != nil {
		return &proto.DeleteResponse{Result: &proto.DeleteResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}
	s.workers.Unregister(id)
	return &proto.DeleteResponse{Result: &proto.DeleteResponse_Success{Success: &proto.Empty{}}}, nil
}

// Update runs an in-place live update of a worker to req.TargetVersion,
// using whichever of update.Engine's two strategies req.Mode names.
func (s *ExecutorServer) Update(ctx context.Context, req *proto.UpdateRequest) (*proto.UpdateResponse, error) {
	id := toWorkerId(req.WorkerId)
	old, err := s.lookupWorker(id)
	if err != nil {
		return nil, err
	}

	previousVersion := old.Config().ComponentVersion
	newCfg := old.Config()
	newCfg.ComponentVersion = types.ComponentVersion(req.TargetVersion)

	var updated *worker.Worker
	switch req.Mode {
	case "snapshot":
		// RunSnapshot takes the snapshot from the old instance, so it is
		// stopped only once the new version is running.
		updated, err = s.updater.RunSnapshot(ctx, old, newCfg)
		if err == nil {
			err = old.Stop(ctx)
		}
	case "automatic":
		if err := old.Stop(ctx); err != nil {
			return &proto.UpdateResponse{Result: &proto.UpdateResponse_Failure{
				Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
			}}, nil
		}
		updated, err = s.updater.RunAutomatic(ctx, newCfg, previousVersion)
	default:
		return &proto.UpdateResponse{Result: &proto.UpdateResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_BAD_REQUEST, fmt.Errorf("unknown update mode %q", req.Mode)),
		}}, nil
	}
	if err != nil {
		return &proto.UpdateResponse{Result: &proto.UpdateResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}

	s.workers.Register(id, updated)
	return &proto.UpdateResponse{Result: &proto.UpdateResponse_Success{Success: &proto.Empty{}}}, nil
}

func (s *ExecutorServer) GetOplog(ctx context.Context, req *proto.GetOplogRequest) (*proto.GetOplogResponse, error) {
	id := toWorkerId(req.WorkerId)
	o := s.oplogs.Open(id)

	from := types.OplogIndex(req.FromIndex)
	to := types.OplogIndex(req.ToIndex)
	if to == 0 {
		current, err := o.CurrentOplogIndex(ctx)
		if err != nil {
			return &proto.GetOplogResponse{Result: &proto.GetOplogResponse_Failure{
				Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
			}}, nil
		}
		to = current
	}

	entries, err := o.ReadRange(ctx, from, to)
	if err != nil {
		return &proto.GetOplogResponse{Result: &proto.GetOplogResponse_Failure{
			Failure: errorResponse(proto.ErrorCode_ERROR_CODE_INTERNAL, err),
		}}, nil
	}

	pbEntries := make([]*proto.OplogEntry, len(entries))
	for i, e := range entries {
		pbEntries[i] = &proto.OplogEntry{
			Index:     uint64(from) + uint64(i),
			Kind:      string(e.Kind),
			Timestamp: timestamppb.New(e.Timestamp),
			Payload:   oplog.EncodeEntry(e),
		}
	}

	return &proto.GetOplogResponse{Result: &proto.GetOplogResponse_Entries{
		Entries: &proto.OplogEntries{Entries: pbEntries},
	}}, nil
}

// AssignShards and RevokeShards are called by the shard manager (via
// pkg/shardmanager.GRPCClients) whenever this pod's ownership changes.
func (s *ExecutorServer) AssignShards(ctx context.Context, req *proto.AssignShardsRequest) (*proto.AssignShardsResponse, error) {
	s.mu.Lock()
	for _, id := range req.ShardIds {
		s.ownedShards[types.ShardId(id)] = struct{}{}
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(&events.Event{
			Type:    events.EventShardsAssigned,
			Message: fmt.Sprintf("assigned %d shards", len(req.ShardIds)),
		})
	}

	return &proto.AssignShardsResponse{Result: &proto.AssignShardsResponse_Success{Success: &proto.Empty{}}}, nil
}

func (s *ExecutorServer) RevokeShards(ctx context.Context, req *proto.RevokeShardsRequest) (*proto.RevokeShardsResponse, error) {
	s.mu.Lock()
	for _, id := range req.ShardIds {
		delete(s.ownedShards, types.ShardId(id))
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(&events.Event{
			Type:    events.EventShardsRevoked,
			Message: fmt.Sprintf("revoked %d shards", len(req.ShardIds)),
		})
	}

	return &proto.RevokeShardsResponse{Result: &proto.RevokeShardsResponse_Success{Success: &proto.Empty{}}}, nil
}

func (s *ExecutorServer) HealthCheck(ctx context.Context, req *proto.HealthCheckRequest) (*proto.HealthCheckResponse, error) {
	return &proto.HealthCheckResponse{Healthy: true}, nil
}

// ShardManagerServer adds mTLS transport and request metrics around
// shardmanager.Server, which already implements the ShardManager gRPC
// methods (including the anti-spoofing check on Register).
type ShardManagerServer struct {
	proto.UnimplementedShardManagerServer

	inner  *shardmanager.Server
	logger zerolog.Logger
	grpc   *grpc.Server
}

// NewShardManagerServer creates a ShardManagerServer with mTLS wired in
// from the fleet certificate authority. podID identifies this
// shard-manager process for certificate lookup purposes.
func NewShardManagerServer(podID string, sm *shardmanager.ShardManager) (*ShardManagerServer, error) {
	tlsConfig, err := newServerTLSConfig("shardmanager", podID)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewTLS(tlsConfig)
	grpcServer := grpc.NewServer(grpc.Creds(creds))

	return &ShardManagerServer{
		inner:  shardmanager.NewServer(sm),
		logger: log.WithComponent("shardmanager-api"),
		grpc:   grpcServer,
	}, nil
}

func (s *ShardManagerServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	proto.RegisterShardManagerServer(s.grpc, s)
	s.logger.Info().Str("addr", addr).Msg("shard manager gRPC server listening")
	return s.grpc.Serve(lis)
}

func (s *ShardManagerServer) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

func (s *ShardManagerServer) Register(ctx context.Context, req *proto.RegisterRequest) (*proto.RegisterResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "Register")

	resp, err := s.inner.Register(ctx, req)
	if err != nil || resp.GetFailure() != nil {
		metrics.APIRequestsTotal.WithLabelValues("Register", "error").Inc()
		return resp, err
	}
	metrics.APIRequestsTotal.WithLabelValues("Register", "ok").Inc()
	return resp, nil
}

func (s *ShardManagerServer) GetRoutingTable(ctx context.Context, req *proto.GetRoutingTableRequest) (*proto.GetRoutingTableResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "GetRoutingTable")

	resp, err := s.inner.GetRoutingTable(ctx, req)
	metrics.APIRequestsTotal.WithLabelValues("GetRoutingTable", "ok").Inc()
	return resp, err
}
