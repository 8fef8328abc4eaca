package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golemproject/golem/pkg/durable"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker"
	"github.com/rs/zerolog"
)

// Engine drives both update strategies, sharing the same component
// loader and blob storage the worker package itself uses so a new
// version is fetched and a snapshot payload is stored the same way a
// live host call would be.
type Engine struct {
	Oplogs        *oplog.OpenOplogs
	Blob          storage.BlobStorage
	LoadComponent worker.ComponentLoader
	logger        zerolog.Logger
}

func New(oplogs *oplog.OpenOplogs, blob storage.BlobStorage, loader worker.ComponentLoader) *Engine {
	return &Engine{
		Oplogs:        oplogs,
		Blob:          blob,
		LoadComponent: loader,
		logger:        log.WithComponent("update"),
	}
}

// RequestUpdate appends a PendingUpdate entry to workerId's oplog. It
// does not run the update; PendingTarget reports the entry until a
// SuccessfulUpdate or FailedUpdate follows it.
func (e *Engine) RequestUpdate(ctx context.Context, workerId types.WorkerId, mode types.UpdateMode, targetVersion types.ComponentVersion) error {
	o := e.Oplogs.Open(workerId)
	_, err := o.Add(ctx, types.OplogEntry{
		Kind:              types.EntryPendingUpdate,
		Timestamp:         time.Now(),
		UpdateDescription: types.UpdateDescription{Mode: mode, TargetVersion: targetVersion},
	})
	if err != nil {
		return fmt.Errorf("record pending update: %w", err)
	}
	return nil
}

// PendingTarget scans from the end of the oplog for the most recent
// PendingUpdate entry not yet resolved by a following
// SuccessfulUpdate/FailedUpdate, returning the version+mode a restart
// should attempt. A resolved PendingUpdate never has both outcomes, so
// the first resolution found wins.
func PendingTarget(ctx context.Context, o oplog.Oplog) (types.UpdateDescription, bool, error) {
	current, err := o.CurrentOplogIndex(ctx)
	if err != nil {
		return types.UpdateDescription{}, false, err
	}
	if current == 0 {
		return types.UpdateDescription{}, false, nil
	}
	entries, err := o.ReadRange(ctx, 1, current)
	if err != nil {
		return types.UpdateDescription{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind != types.EntryPendingUpdate {
			continue
		}
		for _, follow := range entries[i+1:] {
			if follow.Kind == types.EntrySuccessfulUpdate || follow.Kind == types.EntryFailedUpdate {
				return types.UpdateDescription{}, false, nil
			}
		}
		return entries[i].UpdateDescription, true, nil
	}
	return types.UpdateDescription{}, false, nil
}

// RunAutomatic runs the automatic update path: starting cfg at
// targetVersion makes worker.Worker.Start replay the worker's existing
// oplog against the new component, which is precisely "replay the
// existing oplog on the new component version." Divergence surfaces as
// a *durable.DivergenceError out of Start; on divergence this appends
// FailedUpdate and falls back to a worker started at previousVersion.
// Reaching live mode cleanly appends SuccessfulUpdate and returns the
// running worker on the new version.
func (e *Engine) RunAutomatic(ctx context.Context, cfg worker.Config, previousVersion types.ComponentVersion) (*worker.Worker, error) {
	targetVersion := cfg.ComponentVersion
	logger := log.WithComponentID(string(cfg.WorkerId.ComponentId))
	w := worker.New(cfg)
	startErr := w.Start(ctx)

	var divergence *durable.DivergenceError
	if startErr == nil {
		if err := e.appendEntry(ctx, cfg.WorkerId, types.EntrySuccessfulUpdate, targetVersion, ""); err != nil {
			e.logger.Error().Err(err).Msg("record successful update")
		}
		metrics.UpdatesTotal.WithLabelValues("automatic", "success").Inc()
		return w, nil
	}
	if !errors.As(startErr, &divergence) {
		// Not a replay divergence (e.g. component failed to load) —
		// propagate as-is; the caller decides whether to retry.
		metrics.UpdatesTotal.WithLabelValues("automatic", "failure").Inc()
		return nil, startErr
	}

	logger.Warn().Err(startErr).
		Uint64("target_version", uint64(targetVersion)).
		Msg("automatic update diverged, reverting")
	if err := e.appendEntry(ctx, cfg.WorkerId, types.EntryFailedUpdate, targetVersion, startErr.Error()); err != nil {
		e.logger.Error().Err(err).Msg("record failed update")
	}
	metrics.UpdatesTotal.WithLabelValues("automatic", "reverted").Inc()

	fallbackCfg := cfg
	fallbackCfg.ComponentVersion = previousVersion
	fallback := worker.New(fallbackCfg)
	if err := fallback.Start(ctx); err != nil {
		return nil, fmt.Errorf("revert to previous version %d after divergence: %w", previousVersion, err)
	}
	return fallback, nil
}

// RunSnapshot runs the snapshot-based update path: ask the currently
// running worker (on its old version) to serialize its state,
// store that as a blob-storage payload, then start a worker at
// targetVersion from the snapshot instead of from a full replay.
func (e *Engine) RunSnapshot(ctx context.Context, old *worker.Worker, cfg worker.Config) (*worker.Worker, error) {
	targetVersion := cfg.ComponentVersion

	snapshot, err := old.SaveSnapshot(ctx)
	if err != nil {
		if recErr := e.appendEntry(ctx, cfg.WorkerId, types.EntryFailedUpdate, targetVersion, err.Error()); recErr != nil {
			e.logger.Error().Err(recErr).Msg("record failed update")
		}
		metrics.UpdatesTotal.WithLabelValues("snapshot", "failure").Inc()
		return nil, fmt.Errorf("save-snapshot: %w", err)
	}

	if _, err := oplog.UploadPayload(ctx, e.Blob, cfg.WorkerId, snapshot); err != nil {
		metrics.UpdatesTotal.WithLabelValues("snapshot", "failure").Inc()
		return nil, fmt.Errorf("store snapshot payload: %w", err)
	}

	w := worker.New(cfg)
	if err := w.StartFromSnapshot(ctx, snapshot); err != nil {
		if recErr := e.appendEntry(ctx, cfg.WorkerId, types.EntryFailedUpdate, targetVersion, err.Error()); recErr != nil {
			e.logger.Error().Err(recErr).Msg("record failed update")
		}
		metrics.UpdatesTotal.WithLabelValues("snapshot", "failure").Inc()
		return nil, fmt.Errorf("load-snapshot: %w", err)
	}

	if err := e.appendEntry(ctx, cfg.WorkerId, types.EntrySuccessfulUpdate, targetVersion, ""); err != nil {
		e.logger.Error().Err(err).Msg("record successful update")
	}
	metrics.UpdatesTotal.WithLabelValues("snapshot", "success").Inc()
	return w, nil
}

func (e *Engine) appendEntry(ctx context.Context, workerId types.WorkerId, kind types.OplogEntryKind, targetVersion types.ComponentVersion, details string) error {
	o := e.Oplogs.Open(workerId)
	_, err := o.Add(ctx, types.OplogEntry{
		Kind:          kind,
		Timestamp:     time.Now(),
		TargetVersion: targetVersion,
		Details:       details,
	})
	return err
}
