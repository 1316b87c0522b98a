package model

import (
	"testing"
	"time"
)

func TestLatestVersionPicksMostRecent(t *testing.T) {
	now := time.Now()
	m := CatalogMap{
		Versions: []CatalogMapVersion{
			{Hash: "old", CreatedAt: now.Add(-time.Hour)},
			{Hash: "newest", CreatedAt: now},
			{Hash: "middle", CreatedAt: now.Add(-30 * time.Minute)},
		},
	}
	v, ok := m.LatestVersion()
	if !ok {
		t.Fatal("expected a latest version")
	}
	if v.Hash != "newest" {
		t.Fatalf("expected newest, got %s", v.Hash)
	}
}

func TestLatestVersionNoVersions(t *testing.T) {
	m := CatalogMap{}
	if _, ok := m.LatestVersion(); ok {
		t.Fatal("expected ok=false for a map with no versions")
	}
}
