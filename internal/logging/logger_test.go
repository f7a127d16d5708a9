package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	dataDir = ""
	cfg = loggingConfig{}
	logLevel = LevelInfo
	auditLogger = nil
}

// TestAllCategoriesLog verifies every DE1-core category creates a log file
// with content when debug mode is enabled.
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	resetLoggingState()

	if err := Initialize(tempDir, true, "debug", false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if !IsDebugMode() {
		t.Error("expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryTransport,
		CategoryDevice,
		CategoryShotStore,
		CategoryBackup,
		CategoryServer,
		CategoryConversation,
		CategoryConfig,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("info message for %s", cat)
		logger.Debug("debug message for %s", cat)
		logger.Warn("warn message for %s", cat)
		logger.Error("error message for %s", cat)
	}

	CloseAll()

	entries, err := os.ReadDir(logsDirForTest(tempDir))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	t.Logf("created %d log files", len(entries))

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsDirForTest(tempDir), entry.Name()))
				if err != nil {
					t.Errorf("read log for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("no log file found for category: %s", cat)
		}
	}
}

func logsDirForTest(dir string) string {
	return filepath.Join(dir, "logs")
}

// TestDebugModeDisabled verifies no log files are created in production mode.
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()
	resetLoggingState()

	if err := Initialize(tempDir, false, "info", false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if IsDebugMode() {
		t.Error("expected debug mode to be disabled")
	}

	categories := []Category{CategoryBoot, CategoryDevice, CategoryShotStore}
	for _, cat := range categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("category %s should be disabled when debug_mode=false", cat)
		}
		logger := Get(cat)
		logger.Info("should not be logged")
		logger.Error("should not be logged")
	}

	CloseAll()

	_, err := os.Stat(logsDirForTest(tempDir))
	if err == nil {
		entries, _ := os.ReadDir(logsDirForTest(tempDir))
		if len(entries) > 0 {
			t.Errorf("expected no log files in production mode, found %d", len(entries))
		}
	} else if !os.IsNotExist(err) {
		t.Fatalf("unexpected stat error: %v", err)
	}
}

// TestCategoryToggle verifies individual categories can be disabled while
// others remain enabled.
func TestCategoryToggle(t *testing.T) {
	tempDir := t.TempDir()
	resetLoggingState()

	if err := Initialize(tempDir, true, "debug", false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	cfg.Categories = map[string]bool{
		"boot":      true,
		"device":    true,
		"backup":    false,
		"transport": false,
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryDevice) {
		t.Error("device should be enabled")
	}
	if IsCategoryEnabled(CategoryBackup) {
		t.Error("backup should be disabled")
	}
	if IsCategoryEnabled(CategoryTransport) {
		t.Error("transport should be disabled")
	}
	// Category not present in the map defaults to enabled under debug mode.
	if !IsCategoryEnabled(CategoryServer) {
		t.Error("server (not in map) should default to enabled")
	}

	Get(CategoryBoot).Info("should be logged")
	Get(CategoryBackup).Info("should not be logged")

	CloseAll()

	entries, _ := os.ReadDir(logsDirForTest(tempDir))
	hasBoot, hasBackup := false, false
	for _, e := range entries {
		if strings.Contains(e.Name(), "boot") {
			hasBoot = true
		}
		if strings.Contains(e.Name(), "backup") {
			hasBackup = true
		}
	}
	if !hasBoot {
		t.Error("expected boot log file")
	}
	if hasBackup {
		t.Error("should not have backup log file (disabled)")
	}
}

// TestTimerLogging exercises the timing helper.
func TestTimerLogging(t *testing.T) {
	tempDir := t.TempDir()
	resetLoggingState()

	if err := Initialize(tempDir, true, "debug", false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	timer := StartTimer(CategoryDevice, "connect")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	if elapsed <= 0 {
		t.Error("timer should have recorded a non-zero duration")
	}

	warnTimer := StartTimer(CategoryTransport, "scan")
	time.Sleep(time.Millisecond)
	warnTimer.StopWithThreshold(time.Nanosecond)

	CloseAll()
}
