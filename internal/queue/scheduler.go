package queue

import (
	"bytes"
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"

	"saberd/internal/catalog"
	"saberd/internal/httpclient"
	"saberd/internal/logging"
	"saberd/internal/metrics"
	"saberd/internal/model"
	"saberd/internal/util"
)

// Scheduler bounds concurrent catalog/artifact fetches and fans each
// downloaded artifact out to the requested targets' installer queues.
// Grounded on the original client's DownloadQueueHandler (a semaphore-
// gated spawn loop) and the teacher's own errgroup/channel worker pool
// in cmd/modfetch/main.go's batch-download path.
type Scheduler struct {
	sem     *semaphore.Weighted
	catalog *catalog.Client
	http    *httpclient.Client
	queues  map[string]*InstallerQueue
	metrics *metrics.Manager
	log     *logging.Logger
	Results chan model.InstallerResult
}

func NewScheduler(concurrency int64, cat *catalog.Client, queues map[string]*InstallerQueue, httpc *httpclient.Client, m *metrics.Manager, log *logging.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Scheduler{
		sem:     semaphore.NewWeighted(concurrency),
		catalog: cat,
		http:    httpc,
		queues:  queues,
		metrics: m,
		log:     log,
		Results: make(chan model.InstallerResult, 64),
	}
}

// Enqueue downloads the artifact of req.Version (or, for a mod request,
// the mod's URL) and dispatches it to every named target, acquiring one
// semaphore slot for the whole fetch+fan-out.
func (s *Scheduler) Enqueue(ctx context.Context, req model.DownloadRequest) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer s.sem.Release(1)
		s.run(ctx, req)
	}()
}

func (s *Scheduler) run(ctx context.Context, req model.DownloadRequest) {
	if req.Mod != nil {
		s.runMod(ctx, req)
		return
	}
	start := time.Now()
	data, err := s.catalog.FetchArtifactFor(ctx, req.Version)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("download failed for %s: %v", req.Map.ID, err)
		}
		// spec.md §4.7: a resolve/download failure still broadcasts one
		// MapInstallError with no target, since it never reached a queue.
		s.Results <- model.InstallerResult{Hash: req.Map.ID, Kind: model.ResultError, Err: err}
		return
	}
	if s.metrics != nil {
		s.metrics.AddBytes(int64(len(data)))
		s.metrics.ObserveDownloadSeconds(time.Since(start).Seconds())
	}
	artifact := &model.MapArtifact{Hash: req.Version.Hash, Data: data}
	if s.log != nil {
		// Content digest is logged only, distinct from req.Version.Hash (the
		// catalog's beatmap hash): it lets a re-download of an edited map
		// under the same beatmap hash be told apart in the debug log.
		digest, err := util.HashReaderSHA256(bytes.NewReader(data))
		if err != nil {
			digest = "unknown"
		}
		s.log.Debugf("fetched %s for %s (%s, sha256:%s)", req.Map.Name, req.Version.Hash, humanize.Bytes(uint64(len(data))), digest)
	}

	// Single-installer fast path: avoid cloning the artifact bytes when
	// there is exactly one target, per queue_handler.rs's download_map.
	if len(req.TargetIDs) == 1 {
		s.dispatch(req.TargetIDs[0], req.Map, artifact)
		return
	}
	for _, id := range req.TargetIDs {
		clone := &model.MapArtifact{Hash: artifact.Hash, Data: append([]byte(nil), artifact.Data...)}
		s.dispatch(id, req.Map, clone)
	}
}

func (s *Scheduler) dispatch(targetID string, m model.CatalogMap, artifact *model.MapArtifact) {
	q, ok := s.queues[targetID]
	if !ok {
		return
	}
	resultCh := q.Submit(model.InstallerRequest{TargetID: targetID, Hash: artifact.Hash, Map: m, Artifact: artifact})
	go func() {
		res := <-resultCh
		// AlreadyInstalled is logged only, never broadcast — matching
		// handle_install_result in queue_handler.rs.
		if res.Kind == model.ResultAlreadyInstalled {
			if s.log != nil {
				s.log.Debugf("target %s: %s already installed", targetID, artifact.Hash)
			}
			return
		}
		s.Results <- res
	}()
}

// runMod downloads a PC mod payload once and fans it out to every
// requested target, mirroring run's map fast-path/clone-per-target split.
func (s *Scheduler) runMod(ctx context.Context, req model.DownloadRequest) {
	mod := *req.Mod
	start := time.Now()
	data, err := s.http.FetchArtifact(ctx, mod.URL, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("mod download failed for %s: %v", mod.Identifier(), err)
		}
		s.Results <- model.InstallerResult{Hash: mod.Identifier(), Kind: model.ResultModError, Err: err}
		return
	}
	if s.metrics != nil {
		s.metrics.AddBytes(int64(len(data)))
		s.metrics.ObserveDownloadSeconds(time.Since(start).Seconds())
	}
	if len(req.TargetIDs) == 1 {
		s.dispatchMod(req.TargetIDs[0], mod, data)
		return
	}
	for _, id := range req.TargetIDs {
		clone := append([]byte(nil), data...)
		s.dispatchMod(id, mod, clone)
	}
}

func (s *Scheduler) dispatchMod(targetID string, mod model.PCModRequest, data []byte) {
	q, ok := s.queues[targetID]
	if !ok {
		return
	}
	resultCh := q.Submit(model.InstallerRequest{TargetID: targetID, Mod: &mod, Artifact: &model.MapArtifact{Data: data}})
	go func() {
		s.Results <- <-resultCh
	}()
}
