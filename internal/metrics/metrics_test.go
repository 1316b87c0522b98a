package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"saberd/internal/config"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	if New(nil) != nil {
		t.Fatal("expected nil manager for nil config")
	}
	if New(&config.Config{}) != nil {
		t.Fatal("expected nil manager when prometheus_textfile is not enabled")
	}
}

func TestNilManagerMethodsAreNoOps(t *testing.T) {
	var m *Manager
	m.AddBytes(100)
	m.IncInstallRetries(1)
	m.IncInstallsSuccess()
	m.IncInstallsError()
	m.ObserveDownloadSeconds(1.5)
	if err := m.Write(); err != nil {
		t.Fatalf("expected Write on a nil manager to be a no-op, got %v", err)
	}
}

func TestWriteProducesPrometheusTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saberd.prom")
	m := New(&config.Config{Metrics: config.Metrics{PrometheusTextfile: config.PromTextfile{
		Enabled: true, Path: path,
	}}})
	if m == nil {
		t.Fatal("expected a non-nil manager when textfile metrics are enabled")
	}

	m.AddBytes(2048)
	m.IncInstallsSuccess()
	m.IncInstallsSuccess()
	m.IncInstallsError()
	m.IncInstallRetries(3)
	m.ObserveDownloadSeconds(1.25)

	if err := m.Write(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, want := range []string{
		"saberd_bytes_downloaded_total 2048",
		"saberd_installs_success_total 2",
		"saberd_installs_error_total 1",
		"saberd_install_retries_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
