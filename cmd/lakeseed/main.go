// Lakeseed - Lakehouse seeding and incremental ingestion toolkit
// Loads the Online Retail II workbook into MinIO one day at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakeseed/lakeseed/pkg/config"
	"github.com/lakeseed/lakeseed/pkg/cursor"
	"github.com/lakeseed/lakeseed/pkg/encode"
	lkerrors "github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/ingest"
	"github.com/lakeseed/lakeseed/pkg/lakehouse"
	"github.com/lakeseed/lakeseed/pkg/storage/s3"
	"github.com/lakeseed/lakeseed/pkg/telemetry"
	"github.com/lakeseed/lakeseed/pkg/tui"
	"github.com/lakeseed/lakeseed/pkg/workbook"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	quiet      bool
)

// State shared by every command, populated in the root PersistentPreRunE.
var (
	appManager    *config.Manager
	appConfig     *config.Config
	closeLog      func() error
	shutdownTrace func(context.Context) error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		tui.NewPrinter(os.Stderr).Failure(err.Error())
		if verbose {
			if stack := lkerrors.Stack(err); stack != "" {
				fmt.Fprint(os.Stderr, stack)
			}
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lakeseed",
	Short: "Lakeseed - Seed and incrementally load a MinIO lakehouse",
	Long: `Lakeseed seeds a local MinIO lakehouse and loads the Online Retail II
workbook into it incrementally, one calendar day per run.

A persistent cursor remembers the last loaded day, so repeated runs walk
the dataset forward without re-uploading anything. Use "demo" for a
one-shot tour: provision buckets, generate mock tables and verify a
parquet roundtrip.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupRun,
	PersistentPostRun: teardownRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: search /etc/lakeseed, ~/.lakeseed, .)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Log errors only")
}

// setupRun loads configuration and installs the logger before any
// command body runs.
func setupRun(cmd *cobra.Command, args []string) error {
	appManager = config.NewManager()
	var err error
	if configFile != "" {
		err = appManager.LoadFrom(configFile)
	} else {
		err = appManager.Load()
	}
	if err != nil {
		return err
	}
	appConfig = appManager.Get()

	level := appConfig.Telemetry.LogLevel
	if verbose {
		level = "debug"
	}
	if quiet {
		level = "error"
	}
	logger, closer, err := telemetry.NewLogger(telemetry.Options{
		Level:   level,
		LogFile: appConfig.Telemetry.LogFile,
		Service: "lakeseed",
	})
	if err != nil {
		return err
	}
	telemetry.SetDefault(logger)
	closeLog = closer

	if appConfig.Telemetry.TraceEnabled {
		otlp := telemetry.DefaultOTLPConfig("lakeseed")
		otlp.ServiceVersion = version
		if appConfig.Telemetry.TraceEndpoint != "" {
			otlp.Endpoint = appConfig.Telemetry.TraceEndpoint
		}
		shutdown, err := telemetry.InitOTLP(cmd.Context(), otlp)
		if err != nil {
			// Tracing is best effort; the run proceeds unsampled.
			logger.Warn("tracing disabled", "error", err)
		} else {
			shutdownTrace = shutdown
		}
	}
	return nil
}

// teardownRun flushes the trace exporter and the log file mirror.
func teardownRun(cmd *cobra.Command, args []string) {
	if shutdownTrace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTrace(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "trace shutdown:", err)
		}
	}
	if closeLog != nil {
		closeLog()
	}
}

// signalContext cancels on SIGINT or SIGTERM. A canceled run stops
// before the cursor advances past the day being processed.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// newObjectStore connects to the object store named in the config.
func newObjectStore(ctx context.Context, cfg *config.Config) (*s3.Store, error) {
	s3cfg := s3.DefaultConfig(cfg.Storage.Region)
	s3cfg.Endpoint = cfg.Storage.Endpoint
	s3cfg.UsePathStyle = cfg.Storage.UsePathStyle
	s3cfg.AccessKeyID = cfg.Storage.AccessKeyID
	s3cfg.SecretAccessKey = cfg.Storage.SecretAccessKey
	if cfg.Storage.UploadTimeout > 0 {
		s3cfg.UploadTimeout = cfg.Storage.UploadTimeout
	}
	return s3.NewStore(ctx, s3cfg)
}

// newCursorStore builds the configured cursor backend. The returned
// closer is a no-op for the file backend.
func newCursorStore(cfg *config.Config) (cursor.Store, func() error, error) {
	switch cfg.Cursor.Backend {
	case "", "file":
		return cursor.NewFileStore(cfg.Cursor.Path), func() error { return nil }, nil
	case "redis":
		store, err := cursor.NewRedisStore(cursor.RedisConfig{
			Address:  cfg.Cursor.Redis.Address,
			Password: cfg.Cursor.Redis.Password,
			Database: cfg.Cursor.Redis.Database,
			Key:      cfg.Cursor.Redis.Key,
			Timeout:  cfg.Cursor.Redis.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cursor backend %q (want file or redis)", cfg.Cursor.Backend)
	}
}

// newDriver wires the full ingestion chain: cursor, workbook reader,
// parquet codec and object sink.
func newDriver(ctx context.Context, cfg *config.Config) (*ingest.Driver, func() error, error) {
	cur, closeCur, err := newCursorStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	sink, err := newObjectStore(ctx, cfg)
	if err != nil {
		closeCur()
		return nil, nil, err
	}

	reader := workbook.NewReader(nil)
	if cfg.Source.TimestampColumn != "" {
		reader.SetTimestampColumn(cfg.Source.TimestampColumn)
	}

	drv, err := ingest.NewDriver(ingest.Config{
		SourcePath: cfg.Source.Path,
		Bucket:     cfg.Ingest.Bucket,
		Prefix:     cfg.Ingest.Prefix,
	}, cur, reader, encode.NewCodec(), sink, nil)
	if err != nil {
		closeCur()
		return nil, nil, err
	}
	return drv, closeCur, nil
}

// newLakehouse connects a tier manager to the configured object store.
func newLakehouse(ctx context.Context, cfg *config.Config) (*lakehouse.Manager, error) {
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return lakehouse.NewManager(lakehouse.Config{
		BronzeBucket: cfg.Lakehouse.BronzeBucket,
		SilverBucket: cfg.Lakehouse.SilverBucket,
		GoldBucket:   cfg.Lakehouse.GoldBucket,
	}, store, nil), nil
}

// printer renders to stdout so logs on stderr stay separable.
func printer() *tui.Printer {
	return tui.NewPrinter(nil)
}
