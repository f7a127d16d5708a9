package backup

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/decenza/de1core/internal/settings"
)

func newTestPaths(t *testing.T) Paths {
	t.Helper()
	base, err := os.MkdirTemp("", "decenza-backup-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(base) })

	paths := Paths{
		ShotDBPath:         filepath.Join(base, "shots.db"),
		UserProfilesDir:    filepath.Join(base, "profiles", "user"),
		DownloadedProfiles: filepath.Join(base, "profiles", "downloaded"),
		MediaDir:           filepath.Join(base, "media"),
		BackupDir:          filepath.Join(base, "backups"),
		StagingDir:         base,
	}
	for _, dir := range []string{paths.UserProfilesDir, paths.DownloadedProfiles, paths.MediaDir, paths.BackupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	if err := os.WriteFile(paths.ShotDBPath, emptySQLiteFile(), 0o600); err != nil {
		t.Fatalf("write placeholder shot db: %v", err)
	}
	return paths
}

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := settings.Open(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateBackupProducesValidZip(t *testing.T) {
	paths := newTestPaths(t)
	store := newTestStore(t)
	store.Set("visualizerUsername", "alice")

	e := NewEngine(paths, store)
	defer e.Close()

	e.CreateBackup(time.Now())

	var ev Event
	select {
	case ev = <-e.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for backup event")
	}
	if ev.Kind != EventBackupCreated {
		t.Fatalf("Kind = %v, errors = %v, want EventBackupCreated", ev.Kind, ev.Errors)
	}

	r, err := zip.OpenReader(ev.Path)
	if err != nil {
		t.Fatalf("open produced archive: %v", err)
	}
	defer r.Close()

	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	if !names["settings.json"] {
		t.Error("expected settings.json entry in archive")
	}
	foundShotDB := false
	for name := range names {
		if filenamePattern.MatchString(name) {
			foundShotDB = true
		}
	}
	if !foundShotDB {
		t.Error("expected a shots_backup_YYYYMMDD.db entry")
	}
}

func TestCheckScheduleSkipsWhenDisabled(t *testing.T) {
	paths := newTestPaths(t)
	store := newTestStore(t)
	store.Set("dailyBackupHour", -1)

	e := NewEngine(paths, store)
	defer e.Close()

	e.CheckSchedule(time.Now())

	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event with backups disabled: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPruneOldBackupsRemovesExpiredOnly(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	old := now.AddDate(0, 0, -10).Format("20060102")
	recent := now.Format("20060102")

	oldPath := filepath.Join(dir, "shots_backup_"+old+".zip")
	recentPath := filepath.Join(dir, "shots_backup_"+recent+".zip")
	os.WriteFile(oldPath, []byte("x"), 0o600)
	os.WriteFile(recentPath, []byte("x"), 0o600)

	removed := pruneOldBackups(dir, now)
	if len(removed) != 1 {
		t.Fatalf("removed = %v, want 1 entry", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected old backup to be removed")
	}
	if _, err := os.Stat(recentPath); err != nil {
		t.Error("expected recent backup to survive")
	}
}
