package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"saberd/internal/config"
	"saberd/internal/httpclient"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{Network: config.Network{TimeoutSeconds: 5, ArtifactTimeoutSeconds: 5}}
	return New(httpclient.New(cfg), baseURL)
}

func TestResolveByIDDecodesWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireMap{
			ID:   "1a2b3c",
			Name: "Example Song",
			Metadata: wireMetadata{
				SongName:       "Example",
				SongAuthorName: "Composer",
			},
			Versions: []wireVersion{
				{Hash: "h1", State: "Published", DownloadURL: "https://example.com/h1.zip"},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	m, err := c.ResolveByID(context.Background(), "1a2b3c")
	if err != nil {
		t.Fatal(err)
	}
	if m.SongName != "Example" || m.SongAuthor != "Composer" {
		t.Fatalf("metadata not mapped: %+v", m)
	}
	if len(m.Versions) != 1 || m.Versions[0].Hash != "h1" {
		t.Fatalf("versions not mapped: %+v", m.Versions)
	}
}

func TestResolveByIDNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	if _, err := c.ResolveByID(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestNumericID(t *testing.T) {
	n, err := NumericID("1a2b3c")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x1a2b3c {
		t.Fatalf("got %x, want %x", n, 0x1a2b3c)
	}
	if _, err := NumericID("not-hex"); err == nil {
		t.Fatal("expected an error for a non-hex id")
	}
}

func TestNewDefaultsBaseURLAndAddsTrailingSlash(t *testing.T) {
	c := testClient(t, "")
	if c.baseURL != "https://beatsaver.com/api/" {
		t.Fatalf("unexpected default base url: %s", c.baseURL)
	}
	c2 := testClient(t, "https://example.com/api")
	if c2.baseURL != "https://example.com/api/" {
		t.Fatalf("expected trailing slash to be added, got %s", c2.baseURL)
	}
}
