package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakeseed/lakeseed/pkg/cursor"
	"github.com/lakeseed/lakeseed/pkg/download"
	"github.com/lakeseed/lakeseed/pkg/inspect"
	"github.com/lakeseed/lakeseed/pkg/tui"
)

// Setup command flags
var setupInteractive bool

// Download command flags
var (
	downloadURL  string
	downloadDir  string
	downloadKeep bool
)

// Inspect command flags
var inspectRows int

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the bronze/silver/gold bucket layout",
	Long: `Create the tier buckets and their table folders on the object store.
Already provisioned buckets are left alone, so setup is safe to re-run.

With --interactive a short wizard collects the connection settings and
saves them to ~/.lakeseed/config.yaml before provisioning.

Examples:
  lakeseed setup
  lakeseed setup --interactive`,
	RunE: runSetup,
}

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Show or move the incremental load position",
	RunE:  runCursorShow,
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last processed day",
	RunE:  runCursorShow,
}

var cursorSetCmd = &cobra.Command{
	Use:   "set <date>",
	Short: "Move the cursor to an exact day (YYYY-MM-DD)",
	Long: `Move the cursor to an exact day. Unlike the advance that follows a
successful load, set accepts moves in either direction; use it to replay
a range or to skip ahead.`,
	Args: cobra.ExactArgs(1),
	RunE: runCursorSet,
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the cursor so the next run starts from the beginning",
	RunE:  runCursorReset,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch the Online Retail II workbook from the UCI archive",
	Long: `Download the dataset zip, extract it into the data directory and
report the workbook path. The archive is removed after extraction
unless --keep is set.

Examples:
  lakeseed download
  lakeseed download --dir /srv/data --keep`,
	RunE: runDownload,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <path|bucket/key>",
	Short: "Describe a parquet file or object",
	Long: `Print the schema, row count and first rows of a parquet source.
The target is a local file when one exists at that path; otherwise it is
read as <bucket>/<key> from the object store.

Examples:
  lakeseed inspect data/mock/orders.parquet
  lakeseed inspect bronze/orders/orders_20240615_120000.parquet
  lakeseed inspect bronze/online_retail_ii/year_2010-2011_2010-12-01_20240615_120000.parquet --rows 20`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	setupCmd.Flags().BoolVar(&setupInteractive, "interactive", false, "Collect connection settings interactively and save them")

	downloadCmd.Flags().StringVar(&downloadURL, "url", "", "Archive URL (overrides config)")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "Target directory (default from config)")
	downloadCmd.Flags().BoolVar(&downloadKeep, "keep", false, "Keep the zip after extraction")

	inspectCmd.Flags().IntVar(&inspectRows, "rows", 10, "Preview row count")

	cursorCmd.AddCommand(cursorShowCmd)
	cursorCmd.AddCommand(cursorSetCmd)
	cursorCmd.AddCommand(cursorResetCmd)

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(cursorCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(inspectCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	p := printer()

	if setupInteractive {
		answers, err := p.RunSetupWizard(tui.SetupAnswers{
			Endpoint:   appConfig.Storage.Endpoint,
			AccessKey:  appConfig.Storage.AccessKeyID,
			SecretKey:  appConfig.Storage.SecretAccessKey,
			Bronze:     appConfig.Lakehouse.BronzeBucket,
			Silver:     appConfig.Lakehouse.SilverBucket,
			Gold:       appConfig.Lakehouse.GoldBucket,
			SourcePath: appConfig.Source.Path,
		})
		if err != nil {
			return err
		}
		if answers == nil {
			return nil
		}
		appConfig.Storage.Endpoint = answers.Endpoint
		appConfig.Storage.AccessKeyID = answers.AccessKey
		appConfig.Storage.SecretAccessKey = answers.SecretKey
		appConfig.Lakehouse.BronzeBucket = answers.Bronze
		appConfig.Lakehouse.SilverBucket = answers.Silver
		appConfig.Lakehouse.GoldBucket = answers.Gold
		appConfig.Source.Path = answers.SourcePath
		if err := appManager.Save(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		p.Success("Config saved to ~/.lakeseed/config.yaml")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	lake, err := newLakehouse(ctx, appConfig)
	if err != nil {
		return err
	}
	if err := lake.EnsureLayout(ctx); err != nil {
		return err
	}
	infos, err := lake.InfoAll(ctx)
	if err != nil {
		return err
	}
	p.Success("Lakehouse provisioned at " + appConfig.Storage.Endpoint)
	p.Buckets(infos)
	return nil
}

func runCursorShow(cmd *cobra.Command, args []string) error {
	store, closeCur, err := newCursorStore(appConfig)
	if err != nil {
		return err
	}
	defer closeCur()

	date, err := store.Read(cmd.Context())
	if err != nil {
		return err
	}
	printer().CursorStatus(store.Name(), date)
	return nil
}

func runCursorSet(cmd *cobra.Command, args []string) error {
	date, err := cursor.ParseDate(args[0])
	if err != nil {
		return err
	}

	store, closeCur, err := newCursorStore(appConfig)
	if err != nil {
		return err
	}
	defer closeCur()

	if err := store.Set(cmd.Context(), date); err != nil {
		return err
	}
	printer().Success("Cursor set to " + cursor.FormatDate(date))
	return nil
}

func runCursorReset(cmd *cobra.Command, args []string) error {
	store, closeCur, err := newCursorStore(appConfig)
	if err != nil {
		return err
	}
	defer closeCur()

	if err := store.Reset(cmd.Context()); err != nil {
		return err
	}
	printer().Success("Cursor reset; next run starts from the epoch")
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg := download.Config{
		URL:         appConfig.Source.DownloadURL,
		DataDir:     appConfig.Source.DataDir,
		KeepArchive: downloadKeep,
	}
	if downloadURL != "" {
		cfg.URL = downloadURL
	}
	if downloadDir != "" {
		cfg.DataDir = downloadDir
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d := download.NewDownloader(cfg, nil)
	if !quiet {
		d.SetProgress(os.Stderr)
	}
	path, err := d.Fetch(ctx)
	if err != nil {
		return err
	}

	p := printer()
	p.Success("Workbook ready: " + path)
	if path != appConfig.Source.Path {
		p.Info("Point source.path at it, or pass --source to ingest")
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	target := args[0]

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	ins := inspect.NewInspector(nil)

	var summary *inspect.Summary
	if _, statErr := os.Stat(target); statErr == nil {
		var err error
		if summary, err = ins.File(ctx, target, inspectRows); err != nil {
			return err
		}
	} else {
		bucket, key, ok := strings.Cut(target, "/")
		if !ok || bucket == "" || key == "" {
			return fmt.Errorf("no file at %s and not a <bucket>/<key> target", target)
		}
		lake, err := newLakehouse(ctx, appConfig)
		if err != nil {
			return err
		}
		if summary, err = ins.Object(ctx, lake, bucket, key, inspectRows); err != nil {
			return err
		}
	}
	printer().InspectSummary(summary)
	return nil
}
