package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"saberd/internal/catalog"
	"saberd/internal/config"
	"saberd/internal/controlplane"
	"saberd/internal/daemon"
	"saberd/internal/dashboard"
	friendly "saberd/internal/errors"
	"saberd/internal/httpclient"
	"saberd/internal/installer"
	"saberd/internal/lockfile"
	"saberd/internal/logging"
	"saberd/internal/mapindex"
	"saberd/internal/model"
	"saberd/internal/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "dashboard" {
		return handleDashboard(ctx, args[1:])
	}
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		usage()
		return nil
	}

	fs := flag.NewFlagSet("saberd", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to saberd.yaml (or SABERD_CONFIG env var)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "JSON log output")

	privilegedOneClick := fs.Bool("privileged-one-click", false, "run the elevated half of URL-scheme registration and exit")
	mapInstall := fs.String("map-install", "", "queue a map for install: raw catalog id or aiosaber://<id>")
	watcherOnly := fs.Bool("watcher", false, "start only the filesystem watcher for each configured target")
	testHash := fs.String("test-hash", "", "compute and print the canonical hash of a map directory")
	scanMaps := fs.String("scan-maps", "", "scan a maps directory, printing stats and duplicate detection")
	aggressive := fs.Bool("aggressive", false, "use concurrent hashing/resolution for --scan-maps")
	relaxed := fs.Bool("relaxed", false, "use sequential hashing/resolution for --scan-maps (default)")
	testADB := fs.Bool("test-adb", false, "check every configured quest-adb target is reachable")
	testCurl := fs.Bool("test-curl", false, "check every configured quest-http target is reachable")
	dryRun := fs.Bool("dry-run", false, "load config and targets, print what the daemon would start, and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolveConfigPath(cfgPath)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(*logLevel, *jsonOut)
	targetStore := config.NewTargetStore(daemonConfigPath(*cfgPath))

	switch {
	case *privilegedOneClick:
		return handlePrivilegedOneClick()
	case *mapInstall != "":
		return handleMapInstall(ctx, cfg, *mapInstall)
	case *watcherOnly:
		return handleWatcherOnly(ctx, targetStore, log)
	case *testHash != "":
		return handleTestHash(*testHash)
	case *scanMaps != "":
		return handleScanMaps(ctx, cfg, *scanMaps, *aggressive && !*relaxed)
	case *testADB:
		return handleTestADB(ctx, targetStore)
	case *testCurl:
		return handleTestCurl(ctx, targetStore, cfg)
	case *dryRun:
		return handleDryRun(cfg, targetStore)
	default:
		return runDaemon(ctx, cfg, targetStore, log, *cfgPath)
	}
}

func usage() {
	fmt.Println(strings.TrimSpace(`saberd - AIOSaber install daemon

Usage:
  saberd [flags]
  saberd dashboard [flags]

Flags:
  --config PATH            Path to saberd.yaml (or SABERD_CONFIG env var)
  --log-level L            Log level: debug|info|warn|error
  --json                   JSON log output
  --privileged-one-click   Run the elevated half of URL-scheme registration and exit
  --map-install ID-OR-URL  Queue a map for install on every configured target
  --watcher                Start only the filesystem watcher (diagnostic)
  --test-hash DIR          Compute and print the canonical hash of a map directory
  --scan-maps DIR          Scan a maps directory and print stats/duplicates
  --aggressive             Resolve --scan-maps directories concurrently
  --relaxed                Resolve --scan-maps directories sequentially (default)
  --test-adb               Check every configured quest-adb target
  --test-curl              Check every configured quest-http target
  --dry-run                Print what the daemon would start and exit

  (no flags)               Run the daemon

Subcommands:
  dashboard                Open the live terminal dashboard
`))
}

func resolveConfigPath(cfgPath *string) {
	if *cfgPath != "" {
		return
	}
	if env := os.Getenv("SABERD_CONFIG"); env != "" {
		*cfgPath = env
		return
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		*cfgPath = filepath.Join(h, ".saberd", "saberd.yaml")
	}
}

func daemonConfigPath(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), "daemon-config.yaml")
}

func runDaemon(ctx context.Context, cfg *config.Config, store *config.TargetStore, log *logging.Logger, cfgPath string) error {
	if err := os.MkdirAll(cfg.General.DataRoot, 0o755); err != nil {
		return err
	}
	lockPath := filepath.Join(cfg.General.DataRoot, "saberd.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	d, err := daemon.New(cfg, store, log)
	if err != nil {
		return err
	}
	log.Infof("saberd %s listening on %s (config: %s)", version, cfg.General.ListenAddr, cfgPath)
	return d.Run(ctx)
}

func handlePrivilegedOneClick() error {
	return runOneClickPrivilegedSetup()
}

func handleMapInstall(ctx context.Context, cfg *config.Config, raw string) error {
	id := strings.TrimPrefix(raw, "aiosaber://")
	id = strings.TrimSuffix(id, "/")

	url := fmt.Sprintf("http://%s/queue/map/%s", cfg.General.ListenAddr, id)
	httpc := httpclient.New(cfg)
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpc.PostEmpty(reqCtx, url); err != nil {
		return fmt.Errorf("queue map %s: %w", id, err)
	}
	pterm.Success.Printf("queued map %s\n", id)
	return nil
}

func handleWatcherOnly(ctx context.Context, store *config.TargetStore, log *logging.Logger) error {
	targets, err := store.Load()
	if err != nil {
		return err
	}
	var watchers []*watcher.Watcher
	for _, t := range targets {
		if t.Mode != model.ModePC || t.MapsDir == "" {
			continue
		}
		w, err := watcher.New(t.MapsDir, log)
		if err != nil {
			pterm.Warning.Printf("target %s: %v\n", t.Name, err)
			continue
		}
		watchers = append(watchers, w)
		go w.Start(ctx)
		go func(name string, w *watcher.Watcher) {
			for ev := range w.Events {
				pterm.Info.Printf("[%s] %s %s\n", name, ev.Kind, ev.Path)
			}
		}(t.Name, w)
	}
	if len(watchers) == 0 {
		return fmt.Errorf("no PC targets with a maps directory configured")
	}
	pterm.Info.Printf("watching %d target(s), ctrl+c to stop\n", len(watchers))
	<-ctx.Done()
	for _, w := range watchers {
		w.Stop()
	}
	return nil
}

func handleTestHash(dir string) error {
	hash, err := mapindex.GenerateHash(dir)
	if err != nil {
		pterm.Error.Printf("%v\n", err)
		return err
	}
	pterm.Success.Printf("%s  %s\n", hash, dir)
	return nil
}

func handleScanMaps(ctx context.Context, cfg *config.Config, dir string, aggressive bool) error {
	httpc := httpclient.New(cfg)
	cat := catalog.New(httpc, cfg.Network.BeatSaverAPIURL)
	report, err := mapindex.Scan(ctx, dir, cat, aggressive)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("scan results")
	table := pterm.TableData{
		{"total", fmt.Sprint(report.Total)},
		{"resolved", fmt.Sprint(report.Resolved)},
		{"unknown origin", fmt.Sprint(report.Unknown)},
		{"invalid", fmt.Sprint(report.Invalid)},
	}
	_ = pterm.DefaultTable.WithData(table).Render()
	if len(report.Duplicates) == 0 {
		pterm.Info.Println("no likely duplicate folders found")
		return nil
	}
	pterm.Warning.Println("possible duplicate folders:")
	for _, group := range report.Duplicates {
		pterm.Println("  - " + strings.Join(group, ", "))
	}
	return nil
}

func handleTestADB(ctx context.Context, store *config.TargetStore) error {
	targets, err := store.Load()
	if err != nil {
		return err
	}
	ok := true
	for _, t := range targets {
		if t.Mode != model.ModeQuestADB {
			continue
		}
		inst := installer.QuestADB{}
		if err := inst.Ping(ctx, t); err != nil {
			pterm.Error.Printf("%s (%s): %v\n", t.Name, t.ADBSerial, friendly.TargetError(string(t.Mode), err.Error(), err))
			ok = false
			continue
		}
		pterm.Success.Printf("%s (%s): reachable\n", t.Name, t.ADBSerial)
	}
	if !ok {
		return fmt.Errorf("one or more adb targets unreachable")
	}
	return nil
}

func handleTestCurl(ctx context.Context, store *config.TargetStore, cfg *config.Config) error {
	targets, err := store.Load()
	if err != nil {
		return err
	}
	httpc := httpclient.New(cfg)
	ok := true
	for _, t := range targets {
		if t.Mode != model.ModeQuestHTTP {
			continue
		}
		inst := installer.QuestHTTP{HTTP: httpc}
		if err := inst.Ping(ctx, t); err != nil {
			pterm.Error.Printf("%s (%s): %v\n", t.Name, t.BMBFHost, friendly.TargetError(string(t.Mode), err.Error(), err))
			ok = false
			continue
		}
		pterm.Success.Printf("%s (%s): reachable\n", t.Name, t.BMBFHost)
	}
	if !ok {
		return fmt.Errorf("one or more quest-http targets unreachable")
	}
	return nil
}

func handleDryRun(cfg *config.Config, store *config.TargetStore) error {
	targets, err := store.Load()
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("saberd dry run")
	pterm.Printf("listen address: %s\n", cfg.General.ListenAddr)
	pterm.Printf("data root: %s\n", cfg.General.DataRoot)
	pterm.Printf("catalog: %s\n", cfg.Network.BeatSaverAPIURL)
	pterm.Printf("concurrent downloads: %d\n", cfg.Concurrency.ConcurrentDownloads)
	pterm.Println()
	pterm.DefaultSection.Println("targets")
	for _, t := range targets {
		pterm.Printf("  %-10s %-20s %s\n", t.ID, t.Name, t.Mode)
	}
	return nil
}

func handleDashboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to saberd.yaml (or SABERD_CONFIG env var)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resolveConfigPath(cfgPath)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	conn, err := dashboard.Dial(controlplane.BaseURLFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()
	p := tea.NewProgram(dashboard.New(conn))
	_, err = p.Run()
	return err
}
