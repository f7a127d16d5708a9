// Package logging provides audit logging that outputs Mangle-queryable
// facts. Audit logs are structured events that can be parsed into Mangle
// predicates for declarative querying and analysis.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event (maps to a Mangle
// predicate).
type AuditEventType string

const (
	// Device session events -> device_event/5
	AuditDeviceConnected    AuditEventType = "device_connected"
	AuditDeviceDisconnected AuditEventType = "device_disconnected"
	AuditProfileUploaded    AuditEventType = "profile_uploaded"

	// Shot history events -> shot_event/5
	AuditShotSaved    AuditEventType = "shot_saved"
	AuditShotImported AuditEventType = "shot_imported"
	AuditShotDeleted  AuditEventType = "shot_deleted"

	// Backup/restore events -> backup_event/5
	AuditBackupCreated  AuditEventType = "backup_created"
	AuditBackupFailed   AuditEventType = "backup_failed"
	AuditRestoreOK      AuditEventType = "restore_completed"
	AuditRestoreFailed  AuditEventType = "restore_failed"

	// Companion server auth events -> auth_event/5
	AuditAuthLoginOK      AuditEventType = "auth_login_ok"
	AuditAuthLoginFailed  AuditEventType = "auth_login_failed"
	AuditAuthRateLimited  AuditEventType = "auth_rate_limited"
	AuditAuthLogout       AuditEventType = "auth_logout"

	// Settings mutation -> settings_event/3
	AuditSettingsChanged AuditEventType = "settings_changed"

	// Generic error events -> error_event/4
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// AuditEvent is a structured audit log entry that can be rendered as a
// Mangle fact. Format: predicate(timestamp, ...args); only error_event and
// unrecognized event types include the category among the args.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`      // Unix milliseconds
	EventType  AuditEventType         `json:"event"`   // Maps to Mangle predicate
	Category   string                 `json:"cat"`     // Log category
	SourceIP   string                 `json:"ip"`      // Client IP, for auth events
	Target     string                 `json:"target"`  // Target of the operation (shot UUID, filename, key, ...)
	Success    bool                   `json:"success"` // Operation succeeded
	DurationMs int64                  `json:"dur_ms"`  // Duration in milliseconds
	Error      string                 `json:"error"`   // Error message if failed
	Message    string                 `json:"msg"`     // Human-readable message
	Fields     map[string]interface{} `json:"fields"`  // Additional structured fields
	MangleFact string                 `json:"mangle"`  // Pre-formatted Mangle fact
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact
// generation.
type AuditLogger struct {
	category Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithCategory scopes an audit logger to a category.
func AuditWithCategory(category Category) *AuditLogger {
	return &AuditLogger{category: category}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditDeviceConnected, AuditDeviceDisconnected, AuditProfileUploaded:
		return fmt.Sprintf("device_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditShotSaved, AuditShotImported, AuditShotDeleted:
		return fmt.Sprintf("shot_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditBackupCreated, AuditBackupFailed, AuditRestoreOK, AuditRestoreFailed:
		return fmt.Sprintf("backup_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditAuthLoginOK, AuditAuthLoginFailed, AuditAuthRateLimited, AuditAuthLogout:
		return fmt.Sprintf("auth_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.SourceIP, e.Success, e.DurationMs)

	case AuditSettingsChanged:
		return fmt.Sprintf("settings_event(%d, \"%s\", %v).",
			e.Timestamp, e.Target, e.Success)

	case AuditErrorGeneric, AuditErrorCritical:
		return fmt.Sprintf("error_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

// escapeString escapes quotes and backslashes for Mangle strings.
// strings.Builder avoids the O(n^2) blowup of repeated concatenation on
// long debug-log messages.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// DeviceConnected logs a successful device-session connection.
func (a *AuditLogger) DeviceConnected(transportKind string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditDeviceConnected,
		Target:     transportKind,
		Success:    true,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("device connected via %s (%dms)", transportKind, durationMs),
	})
}

// DeviceDisconnected logs a device-session disconnection.
func (a *AuditLogger) DeviceDisconnected(transportKind string) {
	a.Log(AuditEvent{
		EventType: AuditDeviceDisconnected,
		Target:    transportKind,
		Success:   true,
		Message:   fmt.Sprintf("device disconnected (%s)", transportKind),
	})
}

// ShotSaved logs a completed shot save.
func (a *AuditLogger) ShotSaved(uuid string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditShotSaved,
		Target:    uuid,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("shot saved: %s (success=%v)", uuid, success),
	})
}

// ShotImported logs a completed database import.
func (a *AuditLogger) ShotImported(path string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditShotImported,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("shot database imported from %s (success=%v)", path, success),
	})
}

// BackupOutcome logs a completed backup attempt.
func (a *AuditLogger) BackupOutcome(path string, success bool, errMsg string) {
	eventType := AuditBackupCreated
	if !success {
		eventType = AuditBackupFailed
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("backup %s: %s", eventType, path),
	})
}

// RestoreOutcome logs a completed restore attempt.
func (a *AuditLogger) RestoreOutcome(path string, success bool, errMsg string) {
	eventType := AuditRestoreOK
	if !success {
		eventType = AuditRestoreFailed
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("restore %s: %s", eventType, path),
	})
}

// AuthAttempt logs a login attempt from an IP address.
func (a *AuditLogger) AuthAttempt(ip string, success bool) {
	eventType := AuditAuthLoginOK
	if !success {
		eventType = AuditAuthLoginFailed
	}
	a.Log(AuditEvent{
		EventType: eventType,
		SourceIP:  ip,
		Success:   success,
		Message:   fmt.Sprintf("login attempt from %s: success=%v", ip, success),
	})
}

// AuthRateLimited logs a login attempt rejected by the rate limiter.
func (a *AuditLogger) AuthRateLimited(ip string) {
	a.Log(AuditEvent{
		EventType: AuditAuthRateLimited,
		SourceIP:  ip,
		Success:   false,
		Message:   fmt.Sprintf("login rate limited: %s", ip),
	})
}

// SettingsChanged logs a settings key mutation.
func (a *AuditLogger) SettingsChanged(key string) {
	a.Log(AuditEvent{
		EventType: AuditSettingsChanged,
		Target:    key,
		Success:   true,
		Message:   fmt.Sprintf("settings changed: %s", key),
	})
}

// Error logs a generic or critical error event.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
