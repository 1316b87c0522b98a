package installer

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"saberd/internal/model"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUnzipToExtractsFiles(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "abc123")
	data := buildZip(t, map[string]string{
		"Info.dat":  `{"hi":"there"}`,
		"Easy.dat":  "beatmap",
	})
	if err := unzipTo(data, dest); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dest, "Info.dat"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"hi":"there"}` {
		t.Fatalf("unexpected Info.dat content: %s", b)
	}
}

func TestUnzipToRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "abc123")
	data := buildZip(t, map[string]string{
		"../../evil.txt": "pwned",
	})
	if err := unzipTo(data, dest); err == nil {
		t.Fatal("expected an error for a zip entry escaping the destination directory")
	}
}

func TestForSelectsInstallerByMode(t *testing.T) {
	if _, ok := For(model.Target{Mode: model.ModePC}, nil).(PC); !ok {
		t.Fatal("expected PC installer for pc mode")
	}
	if _, ok := For(model.Target{Mode: model.ModeQuestADB}, nil).(QuestADB); !ok {
		t.Fatal("expected QuestADB installer for quest-adb mode")
	}
	if _, ok := For(model.Target{Mode: model.ModeQuestHTTP}, nil).(QuestHTTP); !ok {
		t.Fatal("expected QuestHTTP installer for quest-http mode")
	}
}
