// Package installer materializes a downloaded map artifact onto a
// target: extracting a zip into a PC maps folder, pushing it over ADB
// to a Quest, or uploading it to a Quest's BMBF HTTP endpoint.
// Grounded on the original client's installer.rs.
package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"saberd/internal/httpclient"
	"saberd/internal/model"
)

// Installer installs or removes a map for one target, and installs a PC
// mod payload where the target mode supports it.
type Installer interface {
	Install(ctx context.Context, target model.Target, hash string, m model.CatalogMap, data []byte) error
	InstallMod(ctx context.Context, target model.Target, mod model.PCModRequest, data []byte) error
	Delete(ctx context.Context, target model.Target, hash string, m model.CatalogMap) error
}

// errModNotSupported is returned by the Quest installers' InstallMod:
// spec.md §4.5 declares Quest mod install an unimplemented leaf.
var errModNotSupported = errors.New("not implemented")

// invalidFolderChars strips the character set spec.md §4.5/§8 forbids in
// a derived PC map folder name.
var invalidFolderChars = strings.NewReplacer(
	`\`, "", "/", "", "*", "", "?", "", `"`, "", "<", "", ">", "", "|", "",
)

// MapFolderName builds the "<id> (<song-name> - <level-author>)" folder
// name spec.md §4.5 requires for a PC map install, sanitized against the
// filesystem-unsafe character set. Exported so the installer queue can
// compute the same directory a successful PC install just wrote, for the
// map index entry.
func MapFolderName(m model.CatalogMap) string {
	raw := fmt.Sprintf("%s (%s - %s)", m.ID, m.SongName, m.LevelAuthor)
	return invalidFolderChars.Replace(raw)
}

// PC extracts the zip directly into the target's maps directory under the
// sanitized "<id> (<song-name> - <level-author>)" folder, mirroring
// installer.rs's unzip_to.
type PC struct{}

func (PC) Install(ctx context.Context, target model.Target, hash string, m model.CatalogMap, data []byte) error {
	dest := filepath.Join(target.MapsDir, MapFolderName(m))
	return unzipTo(data, dest)
}

func (PC) InstallMod(ctx context.Context, target model.Target, mod model.PCModRequest, data []byte) error {
	switch mod.Kind {
	case model.ModKindDLL:
		dest := filepath.Join(target.InstallRoot, "Plugins", mod.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	case model.ModKindZip:
		dest := filepath.Join(target.InstallRoot, mod.SubPath)
		return unzipTo(data, dest)
	default:
		return fmt.Errorf("unknown mod kind %q", mod.Kind)
	}
}

func (PC) Delete(ctx context.Context, target model.Target, hash string, m model.CatalogMap) error {
	return os.RemoveAll(filepath.Join(target.MapsDir, MapFolderName(m)))
}

// unzipTo extracts a zip archive's bytes into dir, creating parent
// directories for entries as needed. A trailing '/' on an entry name
// denotes a directory, same convention as the original client.
func unzipTo(data []byte, dir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}
		if strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

// QuestADB pushes the extracted map directly onto the headset's
// filesystem via adb, grounded on installer.rs's execute_adb sequence.
// A failed step (temp dir, unzip, adb push) aborts Install with an error;
// the queue makes a single attempt and does not retry it.
type QuestADB struct{}

const questMapsPath = "/sdcard/ModData/com.beatgames.beatsaber/Mods/SongCore/CustomLevels"

func (QuestADB) Install(ctx context.Context, target model.Target, hash string, m model.CatalogMap, data []byte) error {
	tmpDir, err := os.MkdirTemp("", "saberd-adb-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	localDir := filepath.Join(tmpDir, hash)
	if err := unzipTo(data, localDir); err != nil {
		return err
	}
	if err := adb(ctx, target.ADBSerial, "push", localDir, questMapsPath+"/"+hash); err != nil {
		return fmt.Errorf("adb push: %w", err)
	}
	return nil
}

// InstallMod on a Quest target is explicitly unsupported per spec.md §4.5.
func (QuestADB) InstallMod(ctx context.Context, target model.Target, mod model.PCModRequest, data []byte) error {
	return errModNotSupported
}

func (QuestADB) Delete(ctx context.Context, target model.Target, hash string, m model.CatalogMap) error {
	if err := adb(ctx, target.ADBSerial, "shell", "rm", "-rf", questMapsPath+"/"+hash); err != nil {
		logOnly(err)
	}
	return nil
}

// Ping checks that the headset is reachable over adb, used by the
// --test-adb diagnostic.
func (QuestADB) Ping(ctx context.Context, target model.Target) error {
	args := []string{"get-state"}
	if target.ADBSerial != "" {
		args = append([]string{"-s", target.ADBSerial}, args...)
	}
	out, err := exec.CommandContext(ctx, "adb", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func adb(ctx context.Context, serial string, args ...string) error {
	full := args
	if serial != "" {
		full = append([]string{"-s", serial}, args...)
	}
	cmd := exec.CommandContext(ctx, "adb", full...)
	return cmd.Run()
}

// logOnly is a named no-op marking the places where an ADB error is
// deliberately swallowed (QuestADB.Delete).
func logOnly(error) {}

// QuestHTTP uploads the zip to the headset's BMBF HTTP endpoint, the
// only installer path that participates in the queue's retry loop.
// Grounded on installer.rs's curl-based multipart upload.
type QuestHTTP struct {
	HTTP *httpclient.Client
}

func (q QuestHTTP) Install(ctx context.Context, target model.Target, hash string, m model.CatalogMap, data []byte) error {
	url := fmt.Sprintf("http://%s/host/beatsaber/custom_level/import", target.BMBFHost)
	resp, err := q.HTTP.PostMultipartFile(ctx, url, "file", fmt.Sprintf("custom_level_%s", hash), data, map[string]string{
		"Referer": fmt.Sprintf("http://%s/", target.BMBFHost),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return &httpclient.StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

// InstallMod on a Quest target is explicitly unsupported per spec.md §4.5.
func (q QuestHTTP) InstallMod(ctx context.Context, target model.Target, mod model.PCModRequest, data []byte) error {
	return errModNotSupported
}

func (q QuestHTTP) Delete(ctx context.Context, target model.Target, hash string, m model.CatalogMap) error {
	url := fmt.Sprintf("http://%s/host/beatsaber/custom_level/custom_level_%s", target.BMBFHost, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpclient.StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

// Ping checks the BMBF HTTP endpoint responds, used by the --test-curl
// diagnostic.
func (q QuestHTTP) Ping(ctx context.Context, target model.Target) error {
	url := fmt.Sprintf("http://%s/host", target.BMBFHost)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpclient.StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

// For selects the concrete Installer implementation for a target's mode.
func For(target model.Target, http *httpclient.Client) Installer {
	switch target.Mode {
	case model.ModeQuestADB:
		return QuestADB{}
	case model.ModeQuestHTTP:
		return QuestHTTP{HTTP: http}
	default:
		return PC{}
	}
}
