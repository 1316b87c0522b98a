package state

import (
	"testing"
)

func TestRecordAndRecent(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Record(Entry{TargetID: "t1", Event: EventMapInstall, ContentHash: "h1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Record(Entry{TargetID: "t1", Event: EventMapDelete, ContentHash: "h2"}); err != nil {
		t.Fatal(err)
	}

	entries, err := db.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ContentHash != "h2" {
		t.Fatalf("expected newest-first order, got %+v", entries[0])
	}
}

func TestRecentDefaultsLimitWhenNonPositive(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Recent(0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Recent(-1); err != nil {
		t.Fatal(err)
	}
}

func TestOpenRequiresDataRoot(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected an error when data root is empty")
	}
}

func TestCloseOnNilDB(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Fatalf("expected Close on a nil *DB to be a no-op, got %v", err)
	}
}
