package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load(missing) mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := DefaultConfig()
	want.DataDir = "/var/lib/decenza"
	want.Server.Port = 9999
	want.Backup.DailyHour = 4
	want.Logging.Categories = map[string]bool{"device": true, "backup": false}

	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 1234\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Port != 1234 {
		t.Errorf("Server.Port = %d, want 1234", got.Server.Port)
	}
	if got.Backup.DailyHour != DefaultConfig().Backup.DailyHour {
		t.Errorf("Backup.DailyHour = %d, want default %d", got.Backup.DailyHour, DefaultConfig().Backup.DailyHour)
	}
}

func TestDerivedPaths(t *testing.T) {
	c := &Config{DataDir: "/data"}
	cases := map[string]string{
		c.ShotDBPath():            "/data/shots.db",
		c.SettingsPath():          "/data/settings.json",
		c.ProfilesDir():           "/data/profiles",
		c.UserProfilesDir():       "/data/profiles/user",
		c.DownloadedProfilesDir(): "/data/profiles/downloaded",
		c.MediaDir():              "/data/media",
		c.BackupDir():             "/data/backups",
		c.StagingDir():            "/data/staging",
		c.TOTPSecretPath():        "/data/totp_secret",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
