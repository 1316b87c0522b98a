// Package catalog resolves map listings from the BeatSaver-shaped HTTP
// catalog, grounded on the original client's beatsaver.rs.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"saberd/internal/httpclient"
	"saberd/internal/model"
)

type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New builds a catalog client. A non-empty BEATSAVER_API_URL environment
// variable overrides baseURL; the result always ends in '/'.
func New(http *httpclient.Client, baseURL string) *Client {
	if env := os.Getenv("BEATSAVER_API_URL"); env != "" {
		baseURL = env
	}
	if baseURL == "" {
		baseURL = "https://beatsaver.com/api/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{http: http, baseURL: baseURL}
}

type wireMap struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Metadata    wireMetadata  `json:"metadata"`
	Automapper  bool          `json:"automapper"`
	Versions    []wireVersion `json:"versions"`
}

type wireMetadata struct {
	SongName        string `json:"songName"`
	SongAuthorName  string `json:"songAuthorName"`
	LevelAuthorName string `json:"levelAuthorName"`
}

type wireVersion struct {
	Hash        string    `json:"hash"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	DownloadURL string    `json:"downloadURL"`
}

func (w wireMap) toModel() model.CatalogMap {
	m := model.CatalogMap{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		SongName:    w.Metadata.SongName,
		SongAuthor:  w.Metadata.SongAuthorName,
		LevelAuthor: w.Metadata.LevelAuthorName,
		Automapper:  w.Automapper,
	}
	for _, v := range w.Versions {
		m.Versions = append(m.Versions, model.CatalogMapVersion{
			Hash: v.Hash, State: v.State, CreatedAt: v.CreatedAt, DownloadURL: v.DownloadURL,
		})
	}
	return m
}

// ResolveByID looks up a map by its catalog id.
func (c *Client) ResolveByID(ctx context.Context, id string) (model.CatalogMap, error) {
	return c.fetch(ctx, c.baseURL+"maps/id/"+id)
}

// ResolveByHash looks up a map by a specific version's content hash.
// The original client's resolve_map_by_hash hit "maps/id/<hash>" — a
// bug; this uses the correct "maps/hash/<hash>" path per spec.md §9.
func (c *Client) ResolveByHash(ctx context.Context, hash string) (model.CatalogMap, error) {
	return c.fetch(ctx, c.baseURL+"maps/hash/"+hash)
}

func (c *Client) fetch(ctx context.Context, url string) (model.CatalogMap, error) {
	body, err := c.http.FetchJSON(ctx, url, map[string]string{"User-Agent": "AIOSaber-Client"})
	if err != nil {
		return model.CatalogMap{}, err
	}
	var w wireMap
	if err := json.Unmarshal(body, &w); err != nil {
		return model.CatalogMap{}, fmt.Errorf("decode catalog response from %s: %w", url, err)
	}
	return w.toModel(), nil
}

// FetchArtifactFor downloads the zip bytes for an already-resolved
// version, used by the download scheduler once a DownloadRequest names
// a specific version rather than "latest".
func (c *Client) FetchArtifactFor(ctx context.Context, v model.CatalogMapVersion) ([]byte, error) {
	return c.http.FetchArtifact(ctx, v.DownloadURL, nil)
}

// NumericID parses a hex catalog id into the u32 form the map index
// stores alongside the hash, mirroring the original's
// u32::from_str_radix(id, 16).
func NumericID(id string) (uint32, error) {
	n, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
