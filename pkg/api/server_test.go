package api

import (
	"context"
	"testing"
	"time"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/scheduler"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker"
	"github.com/stretchr/testify/require"
)

var emptyComponent = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func loadEmptyComponent(context.Context, types.ComponentId, types.ComponentVersion) ([]byte, error) {
	return emptyComponent, nil
}

func newTestWorker(t *testing.T, id types.WorkerId) *worker.Worker {
	t.Helper()
	cfg := worker.Config{
		WorkerId:         id,
		ComponentVersion: 1,
		Oplogs:           oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage()),
		Blob:             storage.NewMemoryBlobStorage(),
		LoadComponent:    loadEmptyComponent,
	}
	w := worker.New(cfg)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop(context.Background()) })
	return w
}

func TestDeliverInvocationImmediateGoesDirectToWorker(t *testing.T) {
	id := types.WorkerId{ComponentId: "comp", WorkerName: "w1"}
	w := newTestWorker(t, id)
	s := &ExecutorServer{}

	err := s.deliverInvocation(context.Background(), id, w, types.Invocation{
		FunctionName: "run",
	})
	require.NoError(t, err)
}

func TestDeliverInvocationFutureWithSchedulerIsParkedExternally(t *testing.T) {
	id := types.WorkerId{ComponentId: "comp", WorkerName: "w2"}
	w := newTestWorker(t, id)

	store := scheduler.NewMemoryScheduleStore()
	registry := scheduler.NewRegistry()
	registry.Register(id, w)
	sched := scheduler.NewScheduler(store, registry)

	s := &ExecutorServer{scheduler: sched}

	scheduledFor := time.Now().Add(time.Hour)
	err := s.deliverInvocation(context.Background(), id, w, types.Invocation{
		FunctionName: "run",
		ScheduledFor: scheduledFor,
	})
	require.NoError(t, err)

	due, err := store.DueBefore(context.Background(), time.Now())
	require.NoError(t, err)
	require.Empty(t, due, "invocation scheduled an hour out must not be due yet")

	due, err = store.DueBefore(context.Background(), scheduledFor.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, id, due[0].WorkerId)
}

func TestDeliverInvocationFutureWithoutSchedulerFallsBackToWorker(t *testing.T) {
	id := types.WorkerId{ComponentId: "comp", WorkerName: "w3"}
	w := newTestWorker(t, id)
	s := &ExecutorServer{}

	err := s.deliverInvocation(context.Background(), id, w, types.Invocation{
		FunctionName: "run",
		ScheduledFor: time.Now().Add(time.Hour),
	})
	require.NoError(t, err, "worker durably parks it even with no scheduler configured")
}
