package main

import (
	"context"
	"fmt"

	"github.com/cuemby/custodian/pkg/keep"
	"github.com/spf13/cobra"
)

var backupShowCmd = &cobra.Command{
	Use:   "backup-show <backup-id|latest|oldest|...>",
	Short: "Show detailed information about one backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupShow,
}

func runBackupShow(cmd *cobra.Command, args []string) error {
	sc, err := newServerContext(cmd)
	if err != nil {
		return err
	}
	defer sc.close()

	ctx := context.Background()
	id, err := sc.catalog.ParseBackupID(ctx, args[0])
	if err != nil {
		return err
	}
	backup, ok, err := sc.catalog.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("backup-show: backup %q not found", id)
	}

	target, err := sc.keep.Target(ctx, id, false)
	if err != nil {
		return err
	}

	fmt.Printf("Backup ID:        %s\n", backup.ID)
	fmt.Printf("Server name:      %s\n", sc.profile.Metadata.Name)
	fmt.Printf("Backup name:      %s\n", backup.Name)
	fmt.Printf("Status:           %s\n", backup.Status)
	fmt.Printf("PostgreSQL Mode:  %s\n", backup.Mode)
	fmt.Printf("Begin time:       %s\n", backup.BeginTime)
	fmt.Printf("End time:         %s\n", backup.EndTime)
	fmt.Printf("Begin WAL:        %s\n", backup.BeginWAL)
	fmt.Printf("End WAL:          %s\n", backup.EndWAL)
	fmt.Printf("Timeline:         %d\n", backup.Timeline)
	if backup.IsSnapshot() {
		fmt.Printf("Snapshot provider: %s\n", backup.SnapshotsInfo.Provider)
		for _, s := range backup.SnapshotsInfo.Snapshots {
			fmt.Printf("  - %s (%s)\n", s.Identifier, s.DeviceName)
		}
	}
	if target == keep.TargetNone {
		fmt.Println("Keep:             no")
	} else {
		fmt.Printf("Keep:             yes (%s)\n", target)
	}
	return nil
}
