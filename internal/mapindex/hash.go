// Package mapindex computes the canonical content hash for an installed
// map folder and maintains the per-target index that resolves those
// hashes back to catalog metadata. Grounded on the original client's
// map_index.rs.
package mapindex

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HashErrorKind distinguishes why a folder's hash couldn't be computed:
// no info.dat at all ("not a map"), an info.dat that can't be read or
// parsed, or a referenced difficulty file that can't be read.
type HashErrorKind string

const (
	ErrNotAMap            HashErrorKind = "not_a_map"
	ErrInvalidMapInfoDat   HashErrorKind = "invalid_map_info_dat"
	ErrMapJSONError        HashErrorKind = "map_json_error"
	ErrInvalidDifficulty   HashErrorKind = "invalid_difficulty"
)

type HashError struct {
	Kind HashErrorKind
	Dir  string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Dir, e.Kind, e.Err)
}

func (e *HashError) Unwrap() error { return e.Err }

type infoDat struct {
	DifficultyBeatmapSets []struct {
		DifficultyBeatmaps []struct {
			BeatmapFilename string `json:"_beatmapFilename"`
		} `json:"_difficultyBeatmaps"`
	} `json:"_difficultyBeatmapSets"`
}

// GenerateHash reads dir/Info.dat (case-insensitively tried as info.dat),
// walks its referenced difficulty files in document order, and returns
// the SHA-1 hex digest of info.dat's bytes followed by each difficulty
// file's bytes, in that order — the same construction as the original
// client's generate_hash.
func GenerateHash(dir string) (string, error) {
	infoPath, err := findInfoDat(dir)
	if err != nil {
		return "", &HashError{Kind: ErrNotAMap, Dir: dir, Err: err}
	}
	infoBytes, err := os.ReadFile(infoPath)
	if err != nil {
		return "", &HashError{Kind: ErrInvalidMapInfoDat, Dir: dir, Err: err}
	}
	var info infoDat
	if err := json.Unmarshal(infoBytes, &info); err != nil {
		return "", &HashError{Kind: ErrMapJSONError, Dir: dir, Err: err}
	}

	h := sha1.New()
	h.Write(infoBytes)
	for _, set := range info.DifficultyBeatmapSets {
		for _, diff := range set.DifficultyBeatmaps {
			if diff.BeatmapFilename == "" {
				continue
			}
			b, err := os.ReadFile(filepath.Join(dir, diff.BeatmapFilename))
			if err != nil {
				return "", &HashError{Kind: ErrInvalidDifficulty, Dir: dir, Err: err}
			}
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func findInfoDat(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if lower(e.Name()) == "info.dat" {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no info.dat in %s", dir)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
