package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/decenza/de1core/internal/logging"
)

// Domain selects which parts of an archive Restore applies.
type Domain string

const (
	DomainShots    Domain = "shots"
	DomainSettings Domain = "settings"
	DomainProfiles Domain = "profiles"
	DomainMedia    Domain = "media"
)

// RestoreRequest describes one restore operation.
type RestoreRequest struct {
	ArchivePath string
	Domains     []Domain
	Merge       bool
}

const sqliteHeaderMagic = "SQLite format 3\x00"
const minValidSQLiteSize = 100

// Restore extracts archivePath and applies the requested domains,
// asynchronously. Outcome arrives via Events() as EventRestoreCompleted
// or EventRestoreFailed (§4.5 "Restore algorithm").
func (e *Engine) Restore(req RestoreRequest) {
	if !e.restoreInProgress.CompareAndSwap(false, true) {
		e.post(Event{Kind: EventRestoreFailed, Errors: []string{"a restore is already in progress"}})
		return
	}
	go e.restoreWorker(req)
}

func (e *Engine) restoreWorker(req RestoreRequest) {
	defer e.restoreInProgress.Store(false)

	tempDir, err := os.MkdirTemp(e.paths.StagingDir, "decenza-restore-*")
	if err != nil {
		errs := []string{fmt.Sprintf("create temp dir: %v", err)}
		logging.Audit().RestoreOutcome(req.ArchivePath, false, strings.Join(errs, "; "))
		e.post(Event{Kind: EventRestoreFailed, Errors: errs})
		return
	}
	defer os.RemoveAll(tempDir)

	if err := extractZipSafely(req.ArchivePath, tempDir); err != nil {
		logging.Audit().RestoreOutcome(req.ArchivePath, false, err.Error())
		e.post(Event{Kind: EventRestoreFailed, Errors: []string{err.Error()}})
		return
	}

	var errs []string
	for _, domain := range req.Domains {
		if err := e.restoreDomain(domain, tempDir, req.Merge); err != nil {
			errs = append(errs, err.Error())
			if domain == DomainShots && !req.Merge {
				// Replace-mode shot-import failure aborts the rest of the
				// restore to avoid a partial wipe.
				break
			}
		}
	}

	if len(errs) > 0 {
		logging.Audit().RestoreOutcome(req.ArchivePath, false, strings.Join(errs, "; "))
		e.post(Event{Kind: EventRestoreFailed, Errors: errs})
		return
	}
	logging.Audit().RestoreOutcome(req.ArchivePath, true, "")
	e.post(Event{Kind: EventRestoreCompleted, Path: filepath.Base(req.ArchivePath)})
}

// extractZipSafely extracts archivePath into destDir, refusing any entry
// whose resolved path would escape destDir (ZIP-slip defense), and
// streaming each entry so its decompressed bytes are freed before the
// next entry starts.
func extractZipSafely(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(destAbs, f.Name)
		targetAbs, err := filepath.Abs(target)
		if err != nil {
			return err
		}
		if targetAbs != destAbs && !strings.HasPrefix(targetAbs, destAbs+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetAbs, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetAbs), 0o755); err != nil {
			return err
		}
		if err := extractOneEntry(f, targetAbs); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractOneEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Sync()
}

func (e *Engine) restoreDomain(domain Domain, tempDir string, merge bool) error {
	switch domain {
	case DomainShots:
		return e.restoreShots(tempDir, merge)
	case DomainSettings:
		return e.restoreSettings(tempDir)
	case DomainProfiles:
		return e.restoreProfiles(tempDir, merge)
	case DomainMedia:
		return e.restoreMedia(tempDir, merge)
	}
	return fmt.Errorf("unknown restore domain %q", domain)
}

func (e *Engine) restoreShots(tempDir string, merge bool) error {
	dbPath, err := findShotDBInArchive(tempDir)
	if err != nil {
		return err
	}
	if err := validateSQLiteFile(dbPath); err != nil {
		return fmt.Errorf("restored shot database invalid: %w", err)
	}
	// Importing is the shotstore package's job; this engine only locates
	// and validates the file so a caller can hand it to
	// shotstore.Engine.ImportDatabase(dbPath, merge).
	e.logger().Info("validated restored shot database at %s (merge=%v)", dbPath, merge)
	return nil
}

func findShotDBInArchive(tempDir string) (string, error) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := filenamePattern.FindStringSubmatch(entry.Name())
		if m != nil && m[2] == "db" {
			return filepath.Join(tempDir, entry.Name()), nil
		}
	}
	// A legacy raw .db file restore is also accepted.
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".db") {
			return filepath.Join(tempDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no shot database found in archive")
}

func validateSQLiteFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() < minValidSQLiteSize {
		return fmt.Errorf("file too small to be a SQLite database (%d bytes)", info.Size())
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeaderMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header, []byte(sqliteHeaderMagic)) {
		return fmt.Errorf("missing SQLite format 3 header")
	}
	return nil
}

// restoreSettings parses the archive's settings.json and writes every
// key except ai_conversations into the settings store with Set, on the
// restore worker's goroutine. ai_conversations is skipped and not
// restored.
func (e *Engine) restoreSettings(tempDir string) error {
	data, err := os.ReadFile(filepath.Join(tempDir, "settings.json"))
	if err != nil {
		return fmt.Errorf("read settings.json: %w", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse settings.json: %w", err)
	}
	for k, v := range parsed {
		if k == "ai_conversations" {
			continue
		}
		if err := e.settings.Set(k, v); err != nil {
			return fmt.Errorf("apply setting %s: %w", k, err)
		}
	}
	return nil
}

func (e *Engine) restoreProfiles(tempDir string, merge bool) error {
	if !merge {
		if err := clearDir(e.paths.UserProfilesDir); err != nil {
			return err
		}
		if err := clearDir(e.paths.DownloadedProfiles); err != nil {
			return err
		}
	}
	if err := copyTree(filepath.Join(tempDir, "profiles", "user"), e.paths.UserProfilesDir); err != nil {
		return fmt.Errorf("restore user profiles: %w", err)
	}
	if err := copyTree(filepath.Join(tempDir, "profiles", "downloaded"), e.paths.DownloadedProfiles); err != nil {
		return fmt.Errorf("restore downloaded profiles: %w", err)
	}
	return nil
}

func (e *Engine) restoreMedia(tempDir string, merge bool) error {
	if !merge {
		if err := clearDir(e.paths.MediaDir); err != nil {
			return err
		}
	}
	if err := copyTree(filepath.Join(tempDir, "media"), e.paths.MediaDir); err != nil {
		return fmt.Errorf("restore media: %w", err)
	}
	return nil
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
