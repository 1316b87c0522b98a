package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"saberd/internal/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return New(&config.Config{Network: config.Network{TimeoutSeconds: 5, ArtifactTimeoutSeconds: 5}})
}

func TestFetchJSONReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected a User-Agent header to be set")
		}
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := testClient(t)
	body, err := c.FetchJSON(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"id":"abc"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestFetchJSONNonOKReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t)
	_, err := c.FetchJSON(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected a *StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", se.StatusCode)
	}
}

func TestFetchArtifactReturnsBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zipbytes"))
	}))
	defer srv.Close()

	c := testClient(t)
	data, err := c.FetchArtifact(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "zipbytes" {
		t.Fatalf("unexpected artifact body: %s", data)
	}
}

func TestFetchArtifactNonOKReturnsNilAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t)
	data, err := c.FetchArtifact(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if data != nil {
		t.Fatalf("expected nil data on error, got %v", data)
	}
}

func TestPostEmptySucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(t)
	if err := c.PostEmpty(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
}

func TestPostEmptyNonOKReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t)
	if err := c.PostEmpty(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestPostMultipartFileUploadsFieldAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer file.Close()
		if header.Filename != "map.zip" {
			t.Fatalf("expected filename map.zip, got %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "mapbytes" {
			t.Fatalf("unexpected uploaded content: %s", data)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t)
	resp, err := c.PostMultipartFile(context.Background(), srv.URL, "file", "map.zip", []byte("mapbytes"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
