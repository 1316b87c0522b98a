package mapindex

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"saberd/internal/catalog"
	"saberd/internal/httpclient"
	"saberd/internal/model"
)

// Store owns one target's persisted map index: an atomically-written
// JSON file keyed by each entry's directory path (the one attribute every
// entry kind carries — an Invalid entry has no hash), following the same
// write-temp-then-rename idiom the teacher uses for its resolver cache.
type Store struct {
	path string
	mu   sync.Mutex
	file model.IndexFile
}

func Open(dataRoot, targetID string) (*Store, error) {
	path := filepath.Join(dataRoot, "map-index-"+targetID+".json")
	s := &Store{path: path, file: model.IndexFile{TargetID: targetID, Entries: map[string]model.MapIndexEntry{}}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &s.file); err != nil {
			return nil, err
		}
	}
	if s.file.Entries == nil {
		s.file.Entries = map[string]model.MapIndexEntry{}
	}
	return s, nil
}

// Get implements the contains-hash(h) query from spec.md §4.3: a linear
// scan over the path-keyed entry set for a matching content hash.
func (s *Store) Get(hash string) (model.MapIndexEntry, bool) {
	if hash == "" {
		return model.MapIndexEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.file.Entries {
		if e.Hash == hash {
			return e, true
		}
	}
	return model.MapIndexEntry{}, false
}

// GetByID implements the contains-id(id-hex) query from spec.md §4.3,
// matching the catalog's hex map id case-insensitively.
func (s *Store) GetByID(idHex string) (model.MapIndexEntry, bool) {
	if idHex == "" {
		return model.MapIndexEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.file.Entries {
		if e.MapID != "" && strings.EqualFold(e.MapID, idHex) {
			return e, true
		}
	}
	return model.MapIndexEntry{}, false
}

// Put inserts or replaces an entry, keyed by its directory path, and
// persists the index.
func (s *Store) Put(e model.MapIndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.UpdatedAt = time.Now()
	s.file.Entries[e.Dir] = e
	return s.save()
}

// Remove drops whichever entry (if any) carries the given content hash.
func (s *Store) Remove(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dir, e := range s.file.Entries {
		if e.Hash == hash {
			delete(s.file.Entries, dir)
		}
	}
	return s.save()
}

// RemoveByDir drops whichever entry (if any) points at dir, used when the
// watcher observes a map folder being deleted outside the install
// pipeline.
func (s *Store) RemoveByDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.file.Entries, dir)
	return s.save()
}

func (s *Store) Snapshot() map[string]model.MapIndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.MapIndexEntry, len(s.file.Entries))
	for k, v := range s.file.Entries {
		out[k] = v
	}
	return out
}

// Replace swaps the entire entry set, used by Rebuild.
func (s *Store) Replace(entries map[string]model.MapIndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Entries = entries
	return s.save()
}

func (s *Store) save() error {
	b, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// Rebuild enumerates dir's immediate subdirectories (each expected to be
// one installed map's folder), hashes each, and resolves the hash
// against the catalog. Per spec.md: Status errors (4xx/5xx from the
// catalog) become UnknownOrigin entries; transport/decode errors leave
// the directory untouched so the next rebuild retries it; local hash
// failures become Invalid entries.
func Rebuild(ctx context.Context, dir string, cat *catalog.Client, aggressive bool) (map[string]model.MapIndexEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		}
	}

	result := make(map[string]model.MapIndexEntry)
	var mu sync.Mutex
	process := func(ctx context.Context, d string) error {
		entry, skip, err := resolveDir(ctx, d, cat)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		mu.Lock()
		result[entry.Dir] = entry
		mu.Unlock()
		return nil
	}

	if aggressive {
		g, gctx := errgroup.WithContext(ctx)
		for _, d := range subdirs {
			d := d
			g.Go(func() error { return process(gctx, d) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, d := range subdirs {
			if err := process(ctx, d); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func resolveDir(ctx context.Context, dir string, cat *catalog.Client) (model.MapIndexEntry, bool, error) {
	hash, err := GenerateHash(dir)
	if err != nil {
		var he *HashError
		if errors.As(err, &he) {
			return model.MapIndexEntry{
				Dir: dir, Status: model.StatusInvalid, UpdatedAt: time.Now(),
			}, false, nil
		}
		return model.MapIndexEntry{}, false, err
	}

	m, err := cat.ResolveByHash(ctx, hash)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return model.MapIndexEntry{
				Hash: hash, Dir: dir, Status: model.StatusUnknownOrigin, UpdatedAt: time.Now(),
			}, false, nil
		}
		// Transport or decode error: skip this directory, retry next rebuild.
		return model.MapIndexEntry{}, true, nil
	}

	numeric, _ := catalog.NumericID(m.ID)
	return model.MapIndexEntry{
		Hash: hash, Dir: dir, MapID: m.ID, NumericID: numeric,
		SongName: m.SongName, Status: model.StatusResolved, UpdatedAt: time.Now(),
	}, false, nil
}

// ScanReport summarizes a --scan-maps run, including near-duplicate
// folder names detected via fuzzy matching — a feature spec.md's CLI
// section names but leaves unspecified.
type ScanReport struct {
	Total      int
	Resolved   int
	Unknown    int
	Invalid    int
	Duplicates [][]string
}

// Scan walks dir's immediate subdirectories, hashes each, resolves
// against the catalog, and additionally groups folders whose folder
// names are near-duplicates of one another.
func Scan(ctx context.Context, dir string, cat *catalog.Client, aggressive bool) (*ScanReport, error) {
	entries, err := Rebuild(ctx, dir, cat, aggressive)
	if err != nil {
		return nil, err
	}
	report := &ScanReport{Total: len(entries)}
	names := make([]string, 0, len(entries))
	nameToDir := map[string]string{}
	for _, e := range entries {
		switch e.Status {
		case model.StatusResolved:
			report.Resolved++
		case model.StatusUnknownOrigin:
			report.Unknown++
		case model.StatusInvalid:
			report.Invalid++
		}
		base := filepath.Base(e.Dir)
		names = append(names, base)
		nameToDir[base] = e.Dir
	}
	report.Duplicates = findDuplicateGroups(names)
	return report, nil
}

// findDuplicateGroups groups folder names whose fuzzy rank against each
// other is high enough to suggest the same song installed twice under
// slightly different names.
func findDuplicateGroups(names []string) [][]string {
	seen := make([]bool, len(names))
	var groups [][]string
	for i := range names {
		if seen[i] {
			continue
		}
		group := []string{names[i]}
		for j := i + 1; j < len(names); j++ {
			if seen[j] {
				continue
			}
			if fuzzy.RankMatchNormalizedFold(names[i], names[j]) >= 0 && closeEnough(names[i], names[j]) {
				group = append(group, names[j])
				seen[j] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

func closeEnough(a, b string) bool {
	rank := fuzzy.RankMatchNormalizedFold(a, b)
	if rank < 0 {
		return false
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return false
	}
	return float64(rank)/float64(longer) < 0.25
}
