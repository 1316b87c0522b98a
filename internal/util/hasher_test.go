package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashReaderSHA256KnownVector(t *testing.T) {
	// sha256("") is a well-known constant, a cheap way to pin the encoding.
	got, err := HashReaderSHA256(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHashFileSHA256MatchesHashReaderSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("hello saberd"), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := HashFileSHA256(path)
	if err != nil {
		t.Fatal(err)
	}
	fromReader, err := HashReaderSHA256(strings.NewReader("hello saberd"))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Fatalf("expected matching digests, got %s vs %s", fromFile, fromReader)
	}
}

func TestHashFileSHA256MissingFile(t *testing.T) {
	if _, err := HashFileSHA256(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
