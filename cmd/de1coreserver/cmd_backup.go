package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/decenza/de1core/internal/backup"
	"github.com/decenza/de1core/internal/settings"
)

func backupPaths() backup.Paths {
	return backup.Paths{
		ShotDBPath:         cfg.ShotDBPath(),
		UserProfilesDir:    cfg.UserProfilesDir(),
		DownloadedProfiles: cfg.DownloadedProfilesDir(),
		MediaDir:           cfg.MediaDir(),
		BackupDir:          cfg.BackupDir(),
		StagingDir:         cfg.StagingDir(),
	}
}

// waitForOutcome blocks until ev reports a terminal event kind, or ctx is
// done. Both CreateBackup and Restore are asynchronous, so a one-shot CLI
// command has to park on Events() the same way the companion server does.
func waitForOutcome(ctx context.Context, events <-chan backup.Event, done ...backup.EventKind) (backup.Event, error) {
	wants := map[backup.EventKind]bool{}
	for _, k := range done {
		wants[k] = true
	}
	for {
		select {
		case <-ctx.Done():
			return backup.Event{}, ctx.Err()
		case ev := <-events:
			if wants[ev.Kind] {
				return ev, nil
			}
		}
	}
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "create a backup archive immediately and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settings.Open(cfg.SettingsPath())
		if err != nil {
			return fmt.Errorf("open settings: %w", err)
		}
		defer store.Close()

		engine := backup.NewEngine(backupPaths(), store)
		defer engine.Close()

		engine.CreateBackup(time.Now())
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		ev, err := waitForOutcome(ctx, engine.Events(), backup.EventBackupCreated, backup.EventBackupFailed)
		if err != nil {
			return err
		}
		if ev.Kind == backup.EventBackupFailed {
			return fmt.Errorf("backup failed: %v", ev.Errors)
		}
		fmt.Printf("backup created: %s\n", ev.Path)
		return nil
	},
}

var (
	restoreDomains []string
	restoreMerge   bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "restore a backup archive immediately and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settings.Open(cfg.SettingsPath())
		if err != nil {
			return fmt.Errorf("open settings: %w", err)
		}
		defer store.Close()

		engine := backup.NewEngine(backupPaths(), store)
		defer engine.Close()

		domains := make([]backup.Domain, 0, len(restoreDomains))
		for _, d := range restoreDomains {
			domains = append(domains, backup.Domain(d))
		}

		engine.Restore(backup.RestoreRequest{
			ArchivePath: args[0],
			Domains:     domains,
			Merge:       restoreMerge,
		})
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		ev, err := waitForOutcome(ctx, engine.Events(), backup.EventRestoreCompleted, backup.EventRestoreFailed)
		if err != nil {
			return err
		}
		if ev.Kind == backup.EventRestoreFailed {
			return fmt.Errorf("restore failed: %v", ev.Errors)
		}
		fmt.Printf("restore completed: %s\n", ev.Path)
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringSliceVar(&restoreDomains, "domain", []string{"shots", "settings", "profiles", "media"}, "restore domains to apply")
	restoreCmd.Flags().BoolVar(&restoreMerge, "merge", false, "merge into existing data instead of replacing it")
}
