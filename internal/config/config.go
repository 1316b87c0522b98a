// Package config loads the daemon's general settings and its list of
// install targets, following the same env-expand/validate/atomic-write
// shape the teacher uses for its single-document config file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"saberd/internal/model"
)

// Config holds the daemon-wide tunables. Targets are stored separately
// in daemon-config.yaml, matching the original client's split between
// a single settings struct and a multi-document target list.
type Config struct {
	General     General     `yaml:"general"`
	Network     Network     `yaml:"network"`
	Concurrency Concurrency `yaml:"concurrency"`
	Logging     Logging     `yaml:"logging"`
	Metrics     Metrics     `yaml:"metrics"`
}

type General struct {
	DataRoot   string `yaml:"data_root"`
	ListenAddr string `yaml:"listen_addr"`
}

type Network struct {
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	ArtifactTimeoutSeconds int   `yaml:"artifact_timeout_seconds"`
	UserAgent             string `yaml:"user_agent"`
	BeatSaverAPIURL       string `yaml:"beatsaver_api_url"`
}

type Concurrency struct {
	ConcurrentDownloads int `yaml:"concurrent_downloads"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func defaults() *Config {
	return &Config{
		General: General{
			DataRoot:   expandTilde("~/.saberd"),
			ListenAddr: "127.0.0.1:2706",
		},
		Network: Network{
			TimeoutSeconds:         5,
			ArtifactTimeoutSeconds: 30,
			UserAgent:              "",
			BeatSaverAPIURL:        "https://beatsaver.com/api/",
		},
		Concurrency: Concurrency{ConcurrentDownloads: 4},
		Logging:     Logging{Level: "info", JSON: false},
	}
}

// Load reads the settings file at path, falling back to defaults for any
// field the file omits. Missing files are not an error — first run starts
// from defaults; Load never writes the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.General.DataRoot = expandTilde(cfg.General.DataRoot)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save atomically (over)writes the settings file.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return atomicWrite(path, b)
}

func (c *Config) Validate() error {
	if c.General.DataRoot == "" {
		return fmt.Errorf("general.data_root required")
	}
	if c.Concurrency.ConcurrentDownloads <= 0 {
		c.Concurrency.ConcurrentDownloads = 4
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}

func expandTilde(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func atomicWrite(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
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
	return os.Rename(tmp, path)
}

// TargetStore owns daemon-config.yaml: a YAML multi-document file, one
// document per target, exactly as the original client's config.rs reads
// and writes it.
type TargetStore struct {
	Path string
}

func NewTargetStore(path string) *TargetStore {
	return &TargetStore{Path: path}
}

// Load reads all target documents. A missing file yields an empty list.
func (s *TargetStore) Load() ([]model.Target, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	var targets []model.Target
	for {
		var t model.Target
		if err := dec.Decode(&t); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", s.Path, err)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Save atomically rewrites daemon-config.yaml with one document per
// target, in the given order.
func (s *TargetStore) Save(targets []model.Target) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	for _, t := range targets {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return atomicWrite(s.Path, buf.Bytes())
}

// Merge applies an UpdateConfig request: existing targets are updated
// in place by id, targets with an unknown (or empty) id are appended as
// new targets; an empty id is replaced with a freshly generated one, an
// unknown non-empty id is kept. Targets present in current
// but absent from updates are left untouched — this endpoint merges,
// it never deletes.
func Merge(current []model.Target, updates []model.Target) []model.Target {
	byID := make(map[string]int, len(current))
	out := make([]model.Target, len(current))
	copy(out, current)
	for i, t := range out {
		byID[t.ID] = i
	}
	for _, u := range updates {
		if u.ID != "" {
			if idx, ok := byID[u.ID]; ok {
				out[idx] = u
				continue
			}
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		byID[u.ID] = len(out)
		out = append(out, u)
	}
	return out
}
