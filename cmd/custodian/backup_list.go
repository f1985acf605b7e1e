package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"os"

	"github.com/cuemby/custodian/pkg/metrics"
	"github.com/spf13/cobra"
)

var backupListCmd = &cobra.Command{
	Use:   "backup-list",
	Short: "List every backup in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

func runBackupList(cmd *cobra.Command, args []string) error {
	sc, err := newServerContext(cmd)
	if err != nil {
		return err
	}
	defer sc.close()

	ctx := context.Background()
	timer := metrics.NewTimer()
	backups, err := sc.catalog.ListBackups(ctx)
	timer.ObserveDurationVec(metrics.CatalogListDuration, sc.profile.Metadata.Name)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(backups))
	for id := range backups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tBEGIN\tEND\tTIMELINE")
	for _, id := range ids {
		b := backups[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", b.ID, b.Status, b.Mode, b.BeginTime.Format("2006-01-02T15:04:05"), b.EndTime.Format("2006-01-02T15:04:05"), b.Timeline)
	}
	return w.Flush()
}
