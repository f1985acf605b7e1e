package main

import (
	"context"
	"fmt"

	"github.com/cuemby/custodian/pkg/keep"
	"github.com/spf13/cobra"
)

var backupKeepCmd = &cobra.Command{
	Use:   "backup-keep <get|set|unset> <backup-id>",
	Short: "Inspect or set a backup's archival pin",
	Long: `Show, set, or remove the archival pin ("keep") on a backup.
A pinned backup is never classified OBSOLETE and, when pinned standalone,
its WAL range is protected from WAL cleanup even after it is no longer
the most recent backup.

Examples:
  custodian backup-keep get --profile prod.yaml 20210722T000000
  custodian backup-keep set --profile prod.yaml --target standalone 20210722T000000
  custodian backup-keep unset --profile prod.yaml 20210722T000000`,
	Args: cobra.ExactArgs(2),
	RunE: runBackupKeep,
}

func init() {
	backupKeepCmd.Flags().String("target", keep.TargetFull, "Pin target for the 'set' action: full or standalone")
}

func runBackupKeep(cmd *cobra.Command, args []string) error {
	action, ref := args[0], args[1]

	sc, err := newServerContext(cmd)
	if err != nil {
		return err
	}
	defer sc.close()

	ctx := context.Background()
	id, err := sc.catalog.ParseBackupID(ctx, ref)
	if err != nil {
		return err
	}

	switch action {
	case "get":
		target, err := sc.keep.Target(ctx, id, false)
		if err != nil {
			return err
		}
		fmt.Println(target)
	case "set":
		target, _ := cmd.Flags().GetString("target")
		if err := sc.keep.Pin(ctx, id, target); err != nil {
			return err
		}
		fmt.Printf("pinned %s as %s\n", id, target)
	case "unset":
		if err := sc.keep.Unpin(ctx, id); err != nil {
			return err
		}
		fmt.Printf("unpinned %s\n", id)
	default:
		return fmt.Errorf("backup-keep: unknown action %q, want get, set, or unset", action)
	}
	return nil
}
