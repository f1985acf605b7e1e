package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/custodian/pkg/deletion"
	"github.com/cuemby/custodian/pkg/log"
	"github.com/cuemby/custodian/pkg/metrics"
	"github.com/cuemby/custodian/pkg/retention"
	"github.com/spf13/cobra"
)

var backupDeleteCmd = &cobra.Command{
	Use:   "backup-delete [backup-id|latest|oldest|...]",
	Short: "Delete a single backup, or every OBSOLETE backup under a retention policy",
	Long: `Delete one named backup, or evaluate a retention policy and delete
every backup it classifies as OBSOLETE.

Examples:
  # Delete one backup by id
  custodian backup-delete --profile prod.yaml 20210722T000000

  # Delete the oldest backup
  custodian backup-delete --profile prod.yaml oldest

  # Run the configured retention policy
  custodian backup-delete --profile prod.yaml --retention-policy "REDUNDANCY 3"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackupDelete,
}

func init() {
	backupDeleteCmd.Flags().Bool("dry-run", false, "Print what would be deleted without deleting anything")
	backupDeleteCmd.Flags().String("retention-policy", "", "Evaluate this policy and delete every OBSOLETE backup, instead of deleting a single backup")
	backupDeleteCmd.Flags().Int("minimum-redundancy", 0, "Refuse a single-backup deletion that would drop the DONE backup count below this floor")
	backupDeleteCmd.Flags().Bool("skip-wal-cleanup-if-standalone", true, "For single-backup deletions, skip WAL cleanup when every older surviving backup is pinned standalone")
	backupDeleteCmd.Flags().Int("batch-size", 0, "Cap the number of object keys removed per batched delete call (0 = backend default)")
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	policyStr, _ := cmd.Flags().GetString("retention-policy")
	minimumRedundancy, _ := cmd.Flags().GetInt("minimum-redundancy")
	skipWalCleanupIfStandalone, _ := cmd.Flags().GetBool("skip-wal-cleanup-if-standalone")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	sc, err := newServerContextWithBatchOverride(cmd, batchSize)
	if err != nil {
		return err
	}
	defer sc.close()
	defer maybeServeMetrics(cmd, sc)()

	runID := log.NewRunID()
	runLog := log.WithRunID(runID).With().Str("server", sc.profile.Metadata.Name).Logger()

	executor := newExecutor(sc)
	ctx := context.Background()
	timer := metrics.NewTimer()

	opts := deletion.Options{
		DryRun:                     dryRun,
		MinimumRedundancy:          minimumRedundancy,
		SkipWalCleanupIfStandalone: skipWalCleanupIfStandalone,
	}

	server := sc.profile.Metadata.Name
	outcome := "success"
	defer func() {
		timer.ObserveDurationVec(metrics.DeletionDuration, server)
		metrics.BackupsDeletedTotal.WithLabelValues(server, outcome).Inc()
	}()

	if policyStr != "" {
		if len(args) > 0 {
			return fmt.Errorf("backup-delete: --retention-policy and a positional backup id are mutually exclusive")
		}
		policy, err := retention.Parse(policyStr, time.Now())
		if err != nil {
			outcome = "error"
			return err
		}
		eval := &retention.Evaluator{Policy: policy, MinimumRedundancy: minimumRedundancy}
		if err := executor.DeleteByPolicy(ctx, eval, opts); err != nil {
			outcome = "error"
			runLog.Error().Err(err).Msg("policy-driven deletion failed")
			return err
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("backup-delete: exactly one backup id (or --retention-policy) is required")
	}
	id, err := sc.catalog.ParseBackupID(ctx, args[0])
	if err != nil {
		outcome = "error"
		return err
	}

	opts.SingleBackupRequest = true
	if err := executor.DeleteOne(ctx, id, opts); err != nil {
		outcome = "error"
		runLog.Error().Err(err).Str("backup_id", id).Msg("deletion failed")
		return err
	}
	fmt.Printf("deleted backup %s\n", id)
	return nil
}
