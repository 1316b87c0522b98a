// Package daemon wires every component together into the running
// service: it owns the target list, one InstallerQueue and one
// filesystem Watcher per target, the download Scheduler, and the
// control-plane Hub and REST server that sit in front of them.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"saberd/internal/catalog"
	"saberd/internal/config"
	"saberd/internal/controlplane"
	"saberd/internal/httpclient"
	"saberd/internal/installer"
	"saberd/internal/logging"
	"saberd/internal/mapindex"
	"saberd/internal/metrics"
	"saberd/internal/model"
	"saberd/internal/oneclick"
	"saberd/internal/queue"
	"saberd/internal/restserver"
	"saberd/internal/state"
	"saberd/internal/watcher"
)

type Daemon struct {
	cfg     *config.Config
	store   *config.TargetStore
	log     *logging.Logger
	metrics *metrics.Manager
	audit   *state.DB
	http    *httpclient.Client
	catalog *catalog.Client

	mu        sync.Mutex
	targets   []model.Target
	indexes   map[string]*mapindex.Store
	queues    map[string]*queue.InstallerQueue
	watchers  map[string]*watcher.Watcher
	scheduler *queue.Scheduler
	hub       *controlplane.Hub

	cancelWatchers map[string]context.CancelFunc
}

func New(cfg *config.Config, store *config.TargetStore, log *logging.Logger) (*Daemon, error) {
	audit, err := state.Open(cfg.General.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	httpc := httpclient.New(cfg)
	d := &Daemon{
		cfg:            cfg,
		store:          store,
		log:            log,
		metrics:        metrics.New(cfg),
		audit:          audit,
		http:           httpc,
		catalog:        catalog.New(httpc, cfg.Network.BeatSaverAPIURL),
		indexes:        map[string]*mapindex.Store{},
		queues:         map[string]*queue.InstallerQueue{},
		watchers:       map[string]*watcher.Watcher{},
		cancelWatchers: map[string]context.CancelFunc{},
	}
	d.hub = controlplane.NewHub(log, d)
	return d, nil
}

// Run loads the target list, spins up every target's queue and watcher,
// and serves the REST+WS surface until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	targets, err := d.store.Load()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.targets = targets
	d.mu.Unlock()

	for _, t := range targets {
		if err := d.startTarget(ctx, t); err != nil {
			d.log.Warnf("starting target %s: %v", t.ID, err)
		}
	}

	d.scheduler = queue.NewScheduler(int64(d.cfg.Concurrency.ConcurrentDownloads), d.catalog, d.queues, d.http, d.metrics, d.log)
	go d.pumpResults(ctx)
	go d.pumpMetrics(ctx)
	d.logRecentAudit()

	handler := restserver.New("saberd/dev", d.hub, d.Targets, d, d.log)
	server := &httpServer{addr: d.cfg.General.ListenAddr, handler: handler}
	return server.Serve(ctx)
}

func (d *Daemon) startTarget(ctx context.Context, t model.Target) error {
	idx, err := mapindex.Open(d.cfg.General.DataRoot, t.ID)
	if err != nil {
		return err
	}
	inst := installer.For(t, d.http)
	q := queue.NewInstallerQueue(t, inst, idx, d.audit, d.metrics, d.log)

	d.mu.Lock()
	d.indexes[t.ID] = idx
	d.queues[t.ID] = q
	d.mu.Unlock()

	qctx, cancel := context.WithCancel(ctx)
	d.cancelWatchers[t.ID] = cancel
	go q.Run(qctx)

	if t.Mode == model.ModePC && t.MapsDir != "" {
		w, err := watcher.New(t.MapsDir, d.log)
		if err != nil {
			d.log.Warnf("watcher for target %s: %v", t.ID, err)
			return nil
		}
		d.mu.Lock()
		d.watchers[t.ID] = w
		d.mu.Unlock()
		go w.Start(qctx)
		go d.pumpWatcher(qctx, t, idx, w)
	}
	return nil
}

// pumpWatcher reconciles the map index when the filesystem changes
// outside the install pipeline. Adds are idempotent against an index
// entry the install queue already wrote synchronously, per spec.md §9.
func (d *Daemon) pumpWatcher(ctx context.Context, t model.Target, idx *mapindex.Store, w *watcher.Watcher) {
	for ev := range w.Events {
		switch ev.Kind {
		case watcher.EventCreated:
			hash, err := mapindex.GenerateHash(ev.Path)
			if err != nil {
				_ = idx.Put(model.MapIndexEntry{Dir: ev.Path, Status: model.StatusInvalid})
				continue
			}
			if _, exists := idx.Get(hash); exists {
				continue
			}
			m, err := d.catalog.ResolveByHash(ctx, hash)
			if err != nil {
				_ = idx.Put(model.MapIndexEntry{Hash: hash, Dir: ev.Path, Status: model.StatusUnknownOrigin})
				continue
			}
			numeric, _ := catalog.NumericID(m.ID)
			_ = idx.Put(model.MapIndexEntry{Hash: hash, Dir: ev.Path, MapID: m.ID, NumericID: numeric, SongName: m.SongName, Status: model.StatusResolved})
		case watcher.EventRemoved, watcher.EventRenamed:
			// fsnotify reports a rename as a Rename on the old path
			// followed by a separate Create on the new one (unlike the
			// original's notify crate, which pairs old/new in one event),
			// so dropping the old entry here and letting the paired
			// Create re-index is equivalent to relocating it.
			_ = idx.RemoveByDir(ev.Path)
		case watcher.EventRescan:
			entries, err := mapindex.Rebuild(ctx, t.MapsDir, d.catalog, false)
			if err != nil {
				d.log.Warnf("rescan of %s failed: %v", t.MapsDir, err)
				continue
			}
			_ = idx.Replace(entries)
		}
	}
}

// pumpMetrics periodically flushes the Prometheus textfile, a no-op when
// metrics are disabled (metrics.New returns a nil *Manager).
func (d *Daemon) pumpMetrics(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.metrics.Write(); err != nil {
				d.log.Warnf("metrics write failed: %v", err)
			}
		}
	}
}

// logRecentAudit surfaces the last few install/delete events at startup so
// an operator tailing logs after a restart can see what happened before
// the crash or stop, without needing to query audit.db directly.
func (d *Daemon) logRecentAudit() {
	entries, err := d.audit.Recent(5)
	if err != nil || len(entries) == 0 {
		return
	}
	d.log.Infof("last %d audit events: most recent target=%s event=%s hash=%s", len(entries), entries[0].TargetID, entries[0].Event, entries[0].ContentHash)
}

func (d *Daemon) pumpResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-d.scheduler.Results:
			d.hub.Broadcast(res)
		}
	}
}

func (d *Daemon) Targets() []model.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Target, len(d.targets))
	copy(out, d.targets)
	return out
}

// QueueMapByID implements restserver.QueueHandler. It resolves the map
// and picks its latest version only — the artifact bytes are fetched
// once, inside the scheduler, rather than here.
func (d *Daemon) QueueMapByID(ctx context.Context, mapID string, targetIDs []string) error {
	m, err := d.catalog.ResolveByID(ctx, mapID)
	if err != nil {
		return err
	}
	v, ok := m.LatestVersion()
	if !ok {
		return fmt.Errorf("map %s has no versions", mapID)
	}
	d.scheduler.Enqueue(ctx, model.DownloadRequest{Map: m, Version: v, TargetIDs: targetIDs})
	return nil
}

// HandleQueueMap implements controlplane.Handler.
func (d *Daemon) HandleQueueMap(ctx context.Context, data controlplane.QueueMapData) error {
	return d.QueueMapByID(ctx, data.MapID, data.TargetIDs)
}

// HandleSetupOneClick implements controlplane.Handler: it registers the
// aiosaber:// one-click-install protocol handler for the current
// platform and reports back a human-readable status string, standing in
// for spec.md §4.8's SetupOneClick() -> Simple(message) reply.
func (d *Daemon) HandleSetupOneClick(ctx context.Context) (string, error) {
	if err := oneclick.New().Register(); err != nil {
		return "", err
	}
	return "one-click install registered", nil
}

// HandleInstallMaps implements controlplane.Handler: it queues each
// catalog id for every configured target, spec.md §4.8's
// InstallMaps([id,…]).
func (d *Daemon) HandleInstallMaps(ctx context.Context, ids []string) error {
	d.mu.Lock()
	targets := make([]string, 0, len(d.targets))
	for _, t := range d.targets {
		targets = append(targets, t.ID)
	}
	d.mu.Unlock()

	for _, id := range ids {
		if err := d.QueueMapByID(ctx, id, targets); err != nil {
			return err
		}
	}
	return nil
}

// HandleInstallMods implements controlplane.Handler: it queues every PC
// mod payload for all configured targets, spec.md §4.8's
// InstallMods([PcMod(…) | QuestMod(…), …]).
func (d *Daemon) HandleInstallMods(ctx context.Context, mods []model.PCModRequest) error {
	d.mu.Lock()
	targets := make([]string, 0, len(d.targets))
	for _, t := range d.targets {
		targets = append(targets, t.ID)
	}
	d.mu.Unlock()

	for _, mod := range mods {
		mod := mod
		d.scheduler.Enqueue(ctx, model.DownloadRequest{Mod: &mod, TargetIDs: targets})
	}
	return nil
}

// HandleUpdateConfig implements controlplane.Handler: it merges updates
// by target id (update-in-place, append for unknown ids) per spec.md
// §4.8, spins up queues/watchers for newly-added targets, and persists.
func (d *Daemon) HandleUpdateConfig(ctx context.Context, data controlplane.UpdateConfigData) ([]model.Target, error) {
	d.mu.Lock()
	current := make([]model.Target, len(d.targets))
	copy(current, d.targets)
	d.mu.Unlock()

	merged := config.Merge(current, data.Targets)

	existing := make(map[string]bool, len(current))
	for _, t := range current {
		existing[t.ID] = true
	}
	for _, t := range merged {
		if !existing[t.ID] {
			if err := d.startTarget(ctx, t); err != nil {
				d.log.Warnf("starting new target %s: %v", t.ID, err)
			}
		}
	}

	d.mu.Lock()
	d.targets = merged
	d.mu.Unlock()

	if err := d.store.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}
