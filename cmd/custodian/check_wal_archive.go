package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkWalArchiveCmd = &cobra.Command{
	Use:   "check-wal-archive",
	Short: "Verify the WAL archive is empty unless the server already has backups",
	Long: `Fails if the WAL archive already contains objects while the catalog
holds no backups for this server — the same safety check barman-cloud
runs before a first backup, to refuse archiving into a server's storage
that already holds another server's WAL stream. Once any backup exists
the check passes; WAL names are not compared against the backups.`,
	Args: cobra.NoArgs,
	RunE: runCheckWalArchive,
}

func runCheckWalArchive(cmd *cobra.Command, args []string) error {
	sc, err := newServerContext(cmd)
	if err != nil {
		return err
	}
	defer sc.close()

	if err := sc.catalog.CheckWalArchive(context.Background()); err != nil {
		return err
	}
	fmt.Println("WAL archive check passed")
	return nil
}
