// Package download fetches the source dataset archive over HTTP and
// unpacks the workbook it contains.
package download

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/lakeseed/lakeseed/pkg/errors"
)

// DefaultURL is the UCI Online Retail II archive.
const DefaultURL = "https://archive.ics.uci.edu/static/public/502/online+retail+ii.zip"

// archiveName is the local filename of the downloaded zip.
const archiveName = "online_retail_ii.zip"

// Config controls a dataset download.
type Config struct {
	// URL of the zip archive. Empty means DefaultURL.
	URL string
	// DataDir receives the archive and its contents, default "data".
	DataDir string
	// Timeout bounds the whole HTTP exchange, default 10m.
	Timeout time.Duration
	// KeepArchive leaves the zip in place after extraction.
	KeepArchive bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.URL == "" {
		out.URL = DefaultURL
	}
	if out.DataDir == "" {
		out.DataDir = "data"
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Minute
	}
	return out
}

// Downloader fetches and unpacks dataset archives.
type Downloader struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	progress io.Writer
}

// NewDownloader creates a downloader.
func NewDownloader(cfg Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := cfg.withDefaults()
	return &Downloader{
		cfg:    resolved,
		client: &http.Client{Timeout: resolved.Timeout},
		logger: logger,
	}
}

// SetProgress renders a byte progress bar to w during the download.
func (d *Downloader) SetProgress(w io.Writer) *Downloader {
	d.progress = w
	return d
}

// Fetch downloads the archive, extracts it into the data directory,
// removes the archive unless configured otherwise, and returns the
// path of the first workbook found. Partial downloads are removed.
func (d *Downloader) Fetch(ctx context.Context) (string, error) {
	if err := os.MkdirAll(d.cfg.DataDir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeDownloadFailed, "failed to create data directory").
			WithContext("dir", d.cfg.DataDir)
	}

	zipPath := filepath.Join(d.cfg.DataDir, archiveName)
	d.logger.Info("downloading dataset",
		slog.String("url", d.cfg.URL),
		slog.String("dest", zipPath))

	if err := d.download(ctx, zipPath); err != nil {
		return "", err
	}

	extracted, err := unzip(zipPath, d.cfg.DataDir)
	if err != nil {
		return "", err
	}
	d.logger.Info("archive extracted",
		slog.Int("files", len(extracted)),
		slog.String("dir", d.cfg.DataDir))

	if !d.cfg.KeepArchive {
		if err := os.Remove(zipPath); err != nil {
			d.logger.Warn("failed to remove archive", slog.String("path", zipPath), slog.String("error", err.Error()))
		}
	}

	workbook := firstWorkbook(extracted)
	if workbook == "" {
		return "", errors.New(errors.CodeDownloadFailed, "archive contains no xlsx workbook").
			WithContext("url", d.cfg.URL)
	}
	d.logger.Info("workbook ready", slog.String("path", workbook))
	return workbook, nil
}

// download streams the archive to path, writing through a temp file so
// an interrupted transfer never leaves a plausible-looking zip behind.
func (d *Downloader) download(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to build request").
			WithContext("url", d.cfg.URL)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeDownloadFailed, "request failed").
			WithContext("url", d.cfg.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.CodeDownloadFailed, "unexpected status %s", resp.Status).
			WithContext("url", d.cfg.URL)
	}

	partial := path + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to create file").
			WithContext("path", partial)
	}

	var dst io.Writer = out
	if d.progress != nil && resp.ContentLength > 0 {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(out, bar)
	}

	written, err := io.Copy(dst, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partial)
		return errors.Wrap(err, errors.CodeDownloadFailed, "transfer interrupted").
			WithContext("url", d.cfg.URL)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to finalize download").
			WithContext("path", path)
	}

	d.logger.Info("download complete", slog.Int64("bytes", written))
	return nil
}

// unzip extracts every entry of the archive into dest and returns the
// extracted file paths. Entries that would escape dest are rejected.
func unzip(src, dest string) ([]string, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDownloadFailed, "failed to open archive").
			WithContext("path", src)
	}
	defer reader.Close()

	cleanDest := filepath.Clean(dest)
	var files []string

	for _, entry := range reader.File {
		target := filepath.Join(cleanDest, entry.Name)
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return nil, errors.New(errors.CodeDownloadFailed, "archive entry escapes destination").
				WithContext("entry", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, errors.Wrap(err, errors.CodeDownloadFailed, "failed to create directory").
					WithContext("path", target)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errors.Wrap(err, errors.CodeDownloadFailed, "failed to create directory").
				WithContext("path", filepath.Dir(target))
		}
		if err := extractFile(entry, target); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

func extractFile(entry *zip.File, target string) error {
	in, err := entry.Open()
	if err != nil {
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to open archive entry").
			WithContext("entry", entry.Name)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to create file").
			WithContext("path", target)
	}

	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return errors.Wrap(err, errors.CodeDownloadFailed, "failed to extract entry").
			WithContext("entry", entry.Name)
	}
	return nil
}

// firstWorkbook returns the lexically first xlsx among the extracted
// files, or empty.
func firstWorkbook(files []string) string {
	var workbooks []string
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".xlsx") {
			workbooks = append(workbooks, f)
		}
	}
	if len(workbooks) == 0 {
		return ""
	}
	sort.Strings(workbooks)
	return workbooks[0]
}
