package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/decenza/de1core/internal/backup"
	"github.com/decenza/de1core/internal/device"
	"github.com/decenza/de1core/internal/logging"
	"github.com/decenza/de1core/internal/server"
	"github.com/decenza/de1core/internal/settings"
	"github.com/decenza/de1core/internal/shotstore"
	"github.com/decenza/de1core/internal/transport"
)

var (
	serialPort  string
	bleScanTime time.Duration
	noDevice    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "connect to the DE1, bring up the shot history and backup engines, and serve the companion API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serialPort, "serial", "", "connect over a serial port instead of scanning for BLE (e.g. /dev/ttyUSB0)")
	serveCmd.Flags().DurationVar(&bleScanTime, "scan-timeout", 15*time.Second, "how long to scan for the DE1 over BLE before giving up")
	serveCmd.Flags().BoolVar(&noDevice, "no-device", false, "run the companion server without connecting to a DE1 (history/backup/restore only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.ProfilesDir(), cfg.UserProfilesDir(), cfg.DownloadedProfilesDir(), cfg.MediaDir(), cfg.BackupDir(), cfg.StagingDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := settings.Open(cfg.SettingsPath())
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	shots, err := shotstore.NewEngine(cfg.ShotDBPath())
	if err != nil {
		return fmt.Errorf("open shot database: %w", err)
	}
	defer shots.Close()

	backups := backup.NewEngine(backupPaths(), store)
	defer backups.Close()

	var sess *device.Session
	if !noDevice {
		sess, err = connectDevice(ctx)
		if err != nil {
			logger.Sugar().Warnf("device connection failed, continuing without it: %v", err)
		} else {
			defer sess.Disconnect()
		}
	}

	secret, err := loadOrGenerateTOTPSecret(cfg.TOTPSecretPath())
	if err != nil {
		return fmt.Errorf("prepare TOTP secret: %w", err)
	}

	srv, err := server.New(server.Config{
		Addr:          fmt.Sprintf(":%d", cfg.Server.Port),
		DiscoveryAddr: fmt.Sprintf(":%d", cfg.Server.DiscoveryPort),
		TLSEnabled:    cfg.Server.TLSEnabled,
		TLSCertFile:   cfg.Server.TLSCertFile,
		TLSKeyFile:    cfg.Server.TLSKeyFile,
		SessionPath:   cfg.DataDir + "/sessions.json",
		TOTPSecret:    secret,
		Version:       "de1coreserver",
		StagingDir:    cfg.StagingDir(),
	}, shots, backups, store)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Sugar().Infof("de1coreserver listening on :%d (tls=%v)", cfg.Server.Port, cfg.Server.TLSEnabled)

	go runDailyBackupScheduler(ctx, backups)
	if sess != nil {
		go logDeviceEvents(ctx, sess)
	}

	<-ctx.Done()
	logger.Sugar().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runDailyBackupScheduler polls CheckSchedule once an hour (§4.5 "Periodic
// schedule"); CheckSchedule itself decides, from the settings store,
// whether today's backup has already run.
func runDailyBackupScheduler(ctx context.Context, backups *backup.Engine) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	backups.CheckSchedule(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			backups.CheckSchedule(now)
		}
	}
}

// logDeviceEvents drains the device session's event stream, writing
// error events to the device category logger and discarding the rest;
// no audit entries are written here. The companion server itself has no
// reference to live device state (§6.8 note in DESIGN.md).
func logDeviceEvents(ctx context.Context, sess *device.Session) {
	log := logging.Get(logging.CategoryDevice)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if ev.Kind == device.EventError {
				log.Error("device session error: %v", ev.Err)
			}
		}
	}
}

// connectDevice opens a transport (serial if --serial is set, otherwise a
// BLE scan filtered on transport.DE1ServiceUUID) and runs the session
// handshake.
func connectDevice(ctx context.Context) (*device.Session, error) {
	var t transport.Transport
	var err error

	if serialPort != "" {
		t, err = transport.OpenSerial(serialPort)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", serialPort, err)
		}
	} else {
		adapter := bluetooth.DefaultAdapter
		addr, err2 := scanForDE1(adapter, bleScanTime)
		if err2 != nil {
			return nil, err2
		}
		t, err = transport.ConnectBLE(ctx, adapter, addr)
		if err != nil {
			return nil, fmt.Errorf("connect BLE: %w", err)
		}
	}

	sess := device.NewSession(t)
	if err := sess.ConnectToDevice(ctx); err != nil {
		_ = t.Disconnect()
		return nil, fmt.Errorf("device handshake: %w", err)
	}
	return sess, nil
}

// scanForDE1 scans for a peripheral advertising transport.DE1ServiceUUID
// and returns its address, or an error if none is found before timeout.
func scanForDE1(adapter *bluetooth.Adapter, timeout time.Duration) (bluetooth.Address, error) {
	if err := adapter.Enable(); err != nil {
		return bluetooth.Address{}, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	found := make(chan bluetooth.Address, 1)
	go func() {
		_ = adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.AdvertisementPayload.HasServiceUUID(transport.DE1ServiceUUID) {
				select {
				case found <- result.Address:
				default:
				}
				_ = adapter.StopScan()
			}
		})
	}()

	select {
	case addr := <-found:
		return addr, nil
	case <-time.After(timeout):
		_ = adapter.StopScan()
		return bluetooth.Address{}, fmt.Errorf("no DE1 found advertising %s within %s", transport.DE1ServiceUUID.String(), timeout)
	}
}

// loadOrGenerateTOTPSecret reads the persisted shared secret from path, or
// generates and persists a new one on first run, printing the enrollment
// URI once so the companion app can be paired (§4.6 "Authentication").
func loadOrGenerateTOTPSecret(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Decenza",
		AccountName: "de1coreserver",
	})
	if err != nil {
		return "", fmt.Errorf("generate TOTP secret: %w", err)
	}

	if err := os.WriteFile(path, []byte(key.Secret()), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Println("generated new TOTP pairing secret, scan this once with the companion app:")
	fmt.Println(key.URL())
	return key.Secret(), nil
}
