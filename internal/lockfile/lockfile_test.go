package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saberd.lock")
	lf, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if lf.Path() != path {
		t.Fatalf("expected Path() to return %s, got %s", path, lf.Path())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock file to exist on disk: %v", err)
	}

	if err := lf.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file to be removed after Release, got err=%v", err)
	}
}

func TestAcquireFailsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saberd.lock")
	lf, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer lf.Release()

	if _, err := Acquire(path); err == nil {
		t.Fatal("expected a second Acquire on the same path to fail while the first holder is alive")
	}
}

func TestAcquireRemovesStaleLockAndReportsRetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saberd.lock")
	// A very high PID, unlikely to belong to a live process during the
	// test run.
	stalePID := 999999
	if err := os.WriteFile(path, []byte(strconv.Itoa(stalePID)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	if err == nil {
		t.Fatal("expected an error instructing the caller to retry after removing a stale lock")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected the stale lock file to have been removed, stat err=%v", statErr)
	}
}

func TestReleaseOnMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saberd.lock")
	lf, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := lf.Release(); err != nil {
		t.Fatalf("expected Release to tolerate an already-missing lock file, got %v", err)
	}
}
