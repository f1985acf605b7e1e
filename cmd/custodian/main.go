package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/cuemby/custodian/pkg/annotation"
	"github.com/cuemby/custodian/pkg/catalog"
	"github.com/cuemby/custodian/pkg/config"
	"github.com/cuemby/custodian/pkg/deletion"
	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/keep"
	"github.com/cuemby/custodian/pkg/log"
	"github.com/cuemby/custodian/pkg/metrics"
	"github.com/cuemby/custodian/pkg/objectstore"
	"github.com/cuemby/custodian/pkg/objectstore/localstore"
	"github.com/cuemby/custodian/pkg/objectstore/s3"
	"github.com/cuemby/custodian/pkg/snapshot"
	"github.com/cuemby/custodian/pkg/walcleanup"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "custodian",
	Short: "custodian manages the lifecycle of object-store-backed Postgres backups",
	Long: `custodian inspects, retains, and deletes Postgres base backups and
their WAL segments in an object store, following the same retention
and cleanup rules as the barman-cloud client scripts.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("custodian version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("profile", "", "Path to a ServerProfile YAML file (required unless --data-dir is set)")
	rootCmd.PersistentFlags().String("data-dir", "", "Local bbolt data directory, used instead of the profile's object store endpoint for local development")
	rootCmd.PersistentFlags().String("metrics-addr", "", "If set, serve /metrics, /health, /ready, /live on this address before running the command")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(backupDeleteCmd)
	rootCmd.AddCommand(backupKeepCmd)
	rootCmd.AddCommand(backupListCmd)
	rootCmd.AddCommand(backupShowCmd)
	rootCmd.AddCommand(checkWalArchiveCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// exitCodeFor maps an engine error kind to a process exit code:
// 1 operation error (pinned-backup refusal, minimum-redundancy
// violation, unreadable catalog, unresolved backup reference, store
// failure), 3 CLI-level error (bad policy syntax, reserved backup name,
// unsupported keep target), 4 everything else, including errors that
// carry no kind (a missing bucket in apply, a missing argument).
// Exit code 2 (network/connectivity failure) is never returned: no
// error kind separates a network failure from other store failures.
// Follows barman-cloud's OperationErrorExit/CLIErrorExit/
// GeneralErrorExit codes.
func exitCodeFor(err error) int {
	switch {
	case errs.Is(err, errs.BackupPinned),
		errs.Is(err, errs.MinimumRedundancyViolation),
		errs.Is(err, errs.CatalogUnreadable),
		errs.Is(err, errs.BackupNotFound),
		errs.Is(err, errs.StoreFailure):
		return 1
	case errs.Is(err, errs.InvalidRetentionPolicy),
		errs.Is(err, errs.ReservedBackupName),
		errs.Is(err, errs.UnsupportedKeepTarget):
		return 3
	default:
		return 4
	}
}

// serverContext bundles the components every backup-* subcommand
// needs, built from the active profile and persistent flags.
type serverContext struct {
	profile *config.ServerProfile
	store   objectstore.Store
	catalog *catalog.Catalog
	keep    *keep.Registry
	planner *walcleanup.Planner
}

func (sc *serverContext) close() {
	if c, ok := sc.store.(*localstore.Store); ok {
		c.Close()
	}
}

func newServerContext(cmd *cobra.Command) (*serverContext, error) {
	return newServerContextWithBatchOverride(cmd, 0)
}

func newServerContextWithBatchOverride(cmd *cobra.Command, batchSizeOverride int) (*serverContext, error) {
	profilePath, _ := cmd.Flags().GetString("profile")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if profilePath == "" && dataDir == "" {
		return nil, fmt.Errorf("one of --profile or --data-dir is required")
	}

	var profile *config.ServerProfile
	if profilePath != "" {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		profile = p
	} else {
		profile = &config.ServerProfile{Metadata: config.ResourceMetadata{Name: "local"}}
	}
	if batchSizeOverride > 0 {
		profile.Spec.DeleteBatchSize = batchSizeOverride
	}

	store, err := openStore(profile, dataDir)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(store, profile.Spec.Prefix, profile.Metadata.Name)
	annotations := annotation.NewCloudStore(store, profile.Spec.Prefix, profile.Metadata.Name)
	reg := keep.NewRegistry(annotations)
	planner := &walcleanup.Planner{Catalog: cat, Keep: reg}

	metrics.RegisterComponent("objectstore", true, fmt.Sprintf("bucket %q", profile.Spec.Bucket))
	metrics.RegisterComponent("catalog", true, fmt.Sprintf("server %q", profile.Metadata.Name))

	return &serverContext{profile: profile, store: store, catalog: cat, keep: reg, planner: planner}, nil
}

func openStore(profile *config.ServerProfile, dataDirOverride string) (objectstore.Store, error) {
	if dataDirOverride != "" {
		return localstore.Open(dataDirOverride)
	}
	if profile.Spec.Endpoint == "" {
		return nil, fmt.Errorf("profile %q has no endpoint and no --data-dir override was given", profile.Metadata.Name)
	}
	return s3.New(s3.Config{
		Endpoint:        profile.Spec.Endpoint,
		AccessKeyID:     os.Getenv(profile.Spec.CredentialsEnv + "_ACCESS_KEY"),
		SecretAccessKey: os.Getenv(profile.Spec.CredentialsEnv + "_SECRET_KEY"),
		UseSSL:          profile.Spec.UseSSL,
		Bucket:          profile.Spec.Bucket,
		DeleteBatchSize: profile.Spec.DeleteBatchSize,
	})
}

func newExecutor(sc *serverContext) *deletion.Executor {
	return &deletion.Executor{
		Catalog:  sc.catalog,
		Keep:     sc.keep,
		Store:    sc.store,
		Planner:  sc.planner,
		Snapshot: snapshot.Unsupported{},
		Sink:     os.Stdout,
	}
}

// maybeServeMetrics starts the metrics/health HTTP server in the
// background when --metrics-addr is set, mirroring the teacher's
// metrics-endpoint-before-the-real-work startup order. When sc is
// non-nil it also starts a Collector polling sc.catalog, stopped when
// the command returns.
func maybeServeMetrics(cmd *cobra.Command, sc *serverContext) func() {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		return func() {}
	}
	metrics.SetVersion(Version)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	fmt.Printf("metrics endpoint: http://%s/metrics\n", addr)

	if sc == nil {
		return func() {}
	}
	collector := metrics.NewCollector(sc.catalog, sc.profile.Metadata.Name)
	collector.Start()
	return collector.Stop
}
