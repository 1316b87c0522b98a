package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"saberd/internal/config"
)

type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	bytesTotal       int64
	installRetries   int64
	installsSuccess  int64
	installsError    int64
	lastDownloadSec  float64
}

func New(cfg *config.Config) *Manager {
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return nil
	}
	p := cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	return &Manager{path: p}
}

func (m *Manager) AddBytes(n int64) {
	if m == nil { return }
	m.mu.Lock(); m.bytesTotal += n; m.mu.Unlock()
}

func (m *Manager) IncInstallRetries(n int64) {
	if m == nil { return }
	m.mu.Lock(); m.installRetries += n; m.mu.Unlock()
}

func (m *Manager) IncInstallsSuccess() {
	if m == nil { return }
	m.mu.Lock(); m.installsSuccess++; m.mu.Unlock()
}

func (m *Manager) IncInstallsError() {
	if m == nil { return }
	m.mu.Lock(); m.installsError++; m.mu.Unlock()
}

func (m *Manager) ObserveDownloadSeconds(sec float64) {
	if m == nil { return }
	m.mu.Lock(); m.lastDownloadSec = sec; m.mu.Unlock()
}

func (m *Manager) Write() error {
	if m == nil { return nil }
	m.mu.Lock(); defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil { return err }
	defer os.Remove(f.Name())
	// Prometheus textfile format
	// Use saberd_ prefix
	fmt.Fprintf(f, "# HELP saberd_bytes_downloaded_total Total artifact bytes downloaded.\n")
	fmt.Fprintf(f, "# TYPE saberd_bytes_downloaded_total counter\n")
	fmt.Fprintf(f, "saberd_bytes_downloaded_total %d\n", m.bytesTotal)

	fmt.Fprintf(f, "# HELP saberd_install_retries_total Total Quest HTTP install retries.\n")
	fmt.Fprintf(f, "# TYPE saberd_install_retries_total counter\n")
	fmt.Fprintf(f, "saberd_install_retries_total %d\n", m.installRetries)

	fmt.Fprintf(f, "# HELP saberd_installs_success_total Total successful installs.\n")
	fmt.Fprintf(f, "# TYPE saberd_installs_success_total counter\n")
	fmt.Fprintf(f, "saberd_installs_success_total %d\n", m.installsSuccess)

	fmt.Fprintf(f, "# HELP saberd_installs_error_total Total failed installs.\n")
	fmt.Fprintf(f, "# TYPE saberd_installs_error_total counter\n")
	fmt.Fprintf(f, "saberd_installs_error_total %d\n", m.installsError)

	fmt.Fprintf(f, "# HELP saberd_last_download_seconds Duration of the last completed download in seconds.\n")
	fmt.Fprintf(f, "# TYPE saberd_last_download_seconds gauge\n")
	fmt.Fprintf(f, "saberd_last_download_seconds %.6f\n", m.lastDownloadSec)

	fmt.Fprintf(f, "# HELP saberd_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE saberd_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "saberd_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil { return err }
	return os.Rename(f.Name(), m.path)
}

