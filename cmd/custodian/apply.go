package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/custodian/pkg/config"
	"github.com/cuemby/custodian/pkg/retention"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Validate a server profile and confirm its object store is reachable",
	Long: `Apply loads a ServerProfile YAML file, validates its retention policy
and object store settings, and confirms the configured bucket is
reachable before any backup-delete/backup-keep command is run against it.

Example:
  custodian apply -f prod.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "ServerProfile YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	profile, err := config.LoadProfile(filename)
	if err != nil {
		return err
	}
	if profile.Spec.RetentionPolicy != "" {
		if _, err := retention.Parse(profile.Spec.RetentionPolicy, time.Now()); err != nil {
			return err
		}
	}

	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := openStore(profile, dataDir)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}

	ctx := context.Background()
	if err := store.TestConnectivity(ctx); err != nil {
		return fmt.Errorf("apply: object store unreachable: %w", err)
	}
	exists, err := store.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("apply: checking bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("apply: bucket %q does not exist", profile.Spec.Bucket)
	}

	fmt.Printf("✓ profile %q is valid\n", profile.Metadata.Name)
	fmt.Printf("✓ object store reachable, bucket %q exists\n", profile.Spec.Bucket)
	return nil
}
