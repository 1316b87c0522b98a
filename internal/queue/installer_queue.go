// Package queue runs one serial installer goroutine per target and a
// bounded-concurrency download scheduler that feeds them, grounded on
// the original client's queue_handler.rs.
package queue

import (
	"context"
	"path/filepath"
	"time"

	"saberd/internal/installer"
	"saberd/internal/logging"
	"saberd/internal/mapindex"
	"saberd/internal/metrics"
	"saberd/internal/model"
	"saberd/internal/state"
)

const (
	questHTTPMaxAttempts = 10
	questHTTPRetryDelay  = 60 * time.Second
)

// InstallerQueue processes one target's install/delete requests strictly
// FIFO on a dedicated goroutine, so two installs for the same target
// never race on disk or over ADB.
type InstallerQueue struct {
	Target  model.Target
	in      chan installerJob
	index   *mapindex.Store
	install installer.Installer
	audit   *state.DB
	metrics *metrics.Manager
	log     *logging.Logger
}

type installerJob struct {
	req    model.InstallerRequest
	result chan model.InstallerResult
}

func NewInstallerQueue(target model.Target, install installer.Installer, index *mapindex.Store, audit *state.DB, m *metrics.Manager, log *logging.Logger) *InstallerQueue {
	return &InstallerQueue{
		Target:  target,
		in:      make(chan installerJob, 16),
		index:   index,
		install: install,
		audit:   audit,
		metrics: m,
		log:     log,
	}
}

// Run drives the serial consumer loop until ctx is cancelled.
func (q *InstallerQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.in:
			res := q.process(ctx, job.req)
			select {
			case job.result <- res:
			case <-ctx.Done():
			}
		}
	}
}

// Submit enqueues a request and returns a channel that receives exactly
// one InstallerResult.
func (q *InstallerQueue) Submit(req model.InstallerRequest) <-chan model.InstallerResult {
	result := make(chan model.InstallerResult, 1)
	q.in <- installerJob{req: req, result: result}
	return result
}

func (q *InstallerQueue) process(ctx context.Context, req model.InstallerRequest) model.InstallerResult {
	if req.Delete {
		return q.processDelete(ctx, req)
	}
	if req.Mod != nil {
		return q.processModInstall(ctx, req)
	}
	return q.processInstall(ctx, req)
}

func (q *InstallerQueue) processDelete(ctx context.Context, req model.InstallerRequest) model.InstallerResult {
	if err := q.install.Delete(ctx, q.Target, req.Hash, req.Map); err != nil {
		return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultError, Err: err}
	}
	_ = q.index.Remove(req.Hash)
	q.recordAudit(state.EventMapDelete, req.Hash)
	return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultSuccess}
}

// processModInstall installs a PC mod payload. Mods have no content hash
// to dedup against, so unlike processInstall there is no AlreadyInstalled
// short-circuit or retry loop — exactly one attempt, matching the PC/
// Quest-ADB map install path.
func (q *InstallerQueue) processModInstall(ctx context.Context, req model.InstallerRequest) model.InstallerResult {
	id := req.Mod.Identifier()
	if err := q.install.InstallMod(ctx, q.Target, *req.Mod, req.Artifact.Data); err != nil {
		q.metrics.IncInstallsError()
		return model.InstallerResult{TargetID: q.Target.ID, Hash: id, Kind: model.ResultModError, Err: err}
	}
	q.recordAudit(state.EventModInstall, id)
	q.metrics.IncInstallsSuccess()
	return model.InstallerResult{TargetID: q.Target.ID, Hash: id, Kind: model.ResultModSuccess}
}

func (q *InstallerQueue) processInstall(ctx context.Context, req model.InstallerRequest) model.InstallerResult {
	if _, already := q.index.Get(req.Hash); already {
		if q.log != nil {
			q.log.Debugf("target %s: %s already installed, skipping", q.Target.ID, req.Hash)
		}
		return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultAlreadyInstalled}
	}

	switch q.Target.Mode {
	case model.ModeQuestHTTP:
		return q.installQuestHTTPWithRetry(ctx, req)
	default:
		// PC and Quest-ADB installs are exactly one attempt; an error is
		// reported as ResultError without a retry.
		if err := q.install.Install(ctx, q.Target, req.Hash, req.Map, req.Artifact.Data); err != nil {
			q.metrics.IncInstallsError()
			return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultError, Err: err}
		}
		return q.succeed(req)
	}
}

// installQuestHTTPWithRetry retries up to 10 times with a fixed 60s
// backoff between attempts, exactly as queue_handler.rs's Quest
// HTTP/BMBF path. Success on any attempt short-circuits.
func (q *InstallerQueue) installQuestHTTPWithRetry(ctx context.Context, req model.InstallerRequest) model.InstallerResult {
	var lastErr error
	for attempt := 1; attempt <= questHTTPMaxAttempts; attempt++ {
		err := q.install.Install(ctx, q.Target, req.Hash, req.Map, req.Artifact.Data)
		if err == nil {
			return q.succeed(req)
		}
		lastErr = err
		q.metrics.IncInstallRetries(1)
		if q.log != nil {
			q.log.WarnfThrottled("quest-http-retry:"+q.Target.ID, time.Second, "quest HTTP install attempt %d/%d failed for %s: %v", attempt, questHTTPMaxAttempts, req.Hash, err)
		}
		if attempt == questHTTPMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultJoinError, Err: ctx.Err()}
		case <-time.After(questHTTPRetryDelay):
		}
	}
	q.metrics.IncInstallsError()
	return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultTriesExceeded, Err: lastErr}
}

func (q *InstallerQueue) succeed(req model.InstallerRequest) model.InstallerResult {
	// PC install success updates the map index synchronously rather than
	// relying solely on the filesystem watcher, per spec.md §9. The
	// watcher's own add handler must treat this as idempotent.
	_ = q.index.Put(model.MapIndexEntry{Hash: req.Hash, Dir: q.entryDir(req), MapID: req.Map.ID, Status: model.StatusResolved})
	q.recordAudit(state.EventMapInstall, req.Hash)
	q.metrics.IncInstallsSuccess()
	return model.InstallerResult{TargetID: q.Target.ID, Hash: req.Hash, Kind: model.ResultSuccess}
}

// entryDir returns the index key for req's installed map: the real
// on-disk folder for a PC target (matching what the watcher would see),
// or a synthetic hash-derived key for Quest targets, which have no local
// filesystem path to key by.
func (q *InstallerQueue) entryDir(req model.InstallerRequest) string {
	if q.Target.Mode == model.ModePC {
		return filepath.Join(q.Target.MapsDir, installer.MapFolderName(req.Map))
	}
	return "hash:" + req.Hash
}

func (q *InstallerQueue) recordAudit(event state.Event, hash string) {
	if q.audit == nil {
		return
	}
	_ = q.audit.Record(state.Entry{TargetID: q.Target.ID, Event: event, ContentHash: hash})
}
