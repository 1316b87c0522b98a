package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"saberd/internal/catalog"
	"saberd/internal/config"
	"saberd/internal/httpclient"
	"saberd/internal/mapindex"
	"saberd/internal/model"
)

// testCatalogClient returns a catalog client and the URL of a server that
// serves artifactBody. The scheduler downloads Version.DownloadURL, so
// requests must point that field at the returned URL.
func testCatalogClient(t *testing.T, artifactBody []byte) (*catalog.Client, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifactBody)
	}))
	t.Cleanup(srv.Close)
	cfg := &config.Config{Network: config.Network{TimeoutSeconds: 5, ArtifactTimeoutSeconds: 5}}
	return catalog.New(httpclient.New(cfg), srv.URL+"/"), srv.URL + "/artifact.zip"
}

func schedulerQueue(t *testing.T, targetID string, inst *fakeInstaller) *InstallerQueue {
	t.Helper()
	idx, err := mapindex.Open(t.TempDir(), targetID)
	if err != nil {
		t.Fatal(err)
	}
	q := NewInstallerQueue(model.Target{ID: targetID, Mode: model.ModePC}, inst, idx, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)
	return q
}

func TestSchedulerSingleTargetFastPath(t *testing.T) {
	cat, artifactURL := testCatalogClient(t, []byte("zipbytes"))
	inst := &fakeInstaller{}
	q := schedulerQueue(t, "t1", inst)
	sched := NewScheduler(2, cat, map[string]*InstallerQueue{"t1": q}, nil, nil, nil)

	sched.Enqueue(context.Background(), model.DownloadRequest{
		Map:       model.CatalogMap{ID: "abc", Name: "Song"},
		Version:   model.CatalogMapVersion{Hash: "h1", DownloadURL: artifactURL},
		TargetIDs: []string{"t1"},
	})

	select {
	case res := <-sched.Results:
		if res.Kind != model.ResultSuccess || res.TargetID != "t1" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scheduler result")
	}
	if inst.installs != 1 {
		t.Fatalf("expected one install, got %d", inst.installs)
	}
}

func TestSchedulerFansOutToMultipleTargets(t *testing.T) {
	cat, artifactURL := testCatalogClient(t, []byte("zipbytes"))
	instA := &fakeInstaller{}
	instB := &fakeInstaller{}
	qA := schedulerQueue(t, "a", instA)
	qB := schedulerQueue(t, "b", instB)
	sched := NewScheduler(4, cat, map[string]*InstallerQueue{"a": qA, "b": qB}, nil, nil, nil)

	sched.Enqueue(context.Background(), model.DownloadRequest{
		Map:       model.CatalogMap{ID: "abc", Name: "Song"},
		Version:   model.CatalogMapVersion{Hash: "h1", DownloadURL: artifactURL},
		TargetIDs: []string{"a", "b"},
	})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case res := <-sched.Results:
			if res.Kind != model.ResultSuccess {
				t.Fatalf("unexpected result: %+v", res)
			}
			seen[res.TargetID] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for fan-out results")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected results from both targets, got %v", seen)
	}
	if instA.installs != 1 || instB.installs != 1 {
		t.Fatalf("expected one install per target, got a=%d b=%d", instA.installs, instB.installs)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("zipbytes"))
	}))
	t.Cleanup(srv.Close)
	cfg := &config.Config{Network: config.Network{TimeoutSeconds: 5, ArtifactTimeoutSeconds: 5}}
	cat := catalog.New(httpclient.New(cfg), srv.URL+"/")
	inst := &fakeInstaller{}
	q := schedulerQueue(t, "t1", inst)
	sched := NewScheduler(1, cat, map[string]*InstallerQueue{"t1": q}, nil, nil, nil)

	hashes := []string{"h1", "h2", "h3"}
	for _, h := range hashes {
		sched.Enqueue(context.Background(), model.DownloadRequest{
			Map:       model.CatalogMap{ID: "abc", Name: "Song"},
			Version:   model.CatalogMapVersion{Hash: h, DownloadURL: srv.URL + "/" + h + ".zip"},
			TargetIDs: []string{"t1"},
		})
	}

	got := 0
	deadline := time.After(5 * time.Second)
	for got < 3 {
		select {
		case <-sched.Results:
			got++
		case <-deadline:
			t.Fatalf("timed out, only got %d of 3 results", got)
		}
	}
	if m := atomic.LoadInt32(&maxInFlight); m > 1 {
		t.Fatalf("expected at most one download in flight with concurrency 1, got %d", m)
	}
}
