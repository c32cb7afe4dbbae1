// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader provides functions for downloading and extracting dataset archives.
package downloader

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// copyBytesBar copies bytes from an io.Reader to an io.Writer while displaying a progressbar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	contentLength, amountWritten  int64
	barUnit, numUnits, addedUnits int64
}

// newCopyBytesBar creates a new copyBytesBar. It requires knowing the contentLength.
func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, contentLength: contentLength}
	bar.barUnit = 1
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is similar to io.Copy, but updates the progress bar with the amount
// of data copied.
//
// If contentLength is unknown (<= 0) it falls back to a plain io.Copy.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	if contentLength <= 0 {
		return io.Copy(dst, src)
	}
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Request configures an HTTP download.
type Request struct {
	// URL to download from.
	URL string

	// Username and Password, if set, are sent with HTTP basic authentication.
	Username, Password string

	// UserAgent, if set, overrides Go's default user agent.
	UserAgent string

	// Client used for the request. If nil, http.DefaultClient is used.
	Client *http.Client

	// ShowProgressBar while copying the contents.
	ShowProgressBar bool
}

// Download the file described by req and save it at the given path.
// It attempts to create the directory if it doesn't yet exist.
//
// On failure the partially written file is removed.
func Download(ctx context.Context, req Request, filePath string) (size int64, err error) {
	filePath = fsutil.MustReplaceTildeInDir(filePath)
	err = os.MkdirAll(filepath.Dir(filePath), 0777)
	if err != nil && !os.IsExist(err) {
		err = errors.Wrapf(err, "failed to create the directory for the path: %q", filepath.Dir(filePath))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid request for %q", req.URL)
	}
	if req.Username != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", req.URL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, errors.Errorf("failed downloading %q: HTTP status %s: %s",
			req.URL, resp.Status, strings.TrimSpace(string(body)))
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", filePath)
	}
	if req.ShowProgressBar {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		_ = file.Close()
		_ = os.Remove(filePath)
		return 0, errors.Wrapf(err, "downloading %q to %q", req.URL, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", filePath)
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.Bytes(uint64(size)), req.URL, filePath)
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will download the file
// described by req.
func DownloadIfMissing(ctx context.Context, req Request, filePath string) error {
	filePath = fsutil.MustReplaceTildeInDir(filePath)
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	fmt.Printf("Downloading %s ...\n", req.URL)
	_, err = Download(ctx, req, filePath)
	return err
}

// DownloadAndUnzipIfMissing downloads zipFile with req, if the file is not there yet.
// And then unzips it under directory unzipBaseDir, if the target targetUnzipDir directory is missing.
func DownloadAndUnzipIfMissing(ctx context.Context, req Request, zipFile, unzipBaseDir, targetUnzipDir string) error {
	exists, err := fsutil.FileExists(targetUnzipDir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err = DownloadIfMissing(ctx, req, zipFile); err != nil {
		return err
	}
	if err = Unzip(zipFile, unzipBaseDir); err != nil {
		return err
	}
	exists, err = fsutil.FileExists(targetUnzipDir)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("downloaded from %q and unzip'ed %q, but didn't get directory %q", req.URL, zipFile, targetUnzipDir)
	}
	return nil
}

// Unzip extracts zipFile into zipBaseDir. Existing files are overwritten.
// Entries that would land outside of zipBaseDir are rejected.
func Unzip(zipFile, zipBaseDir string) error {
	r, err := zip.OpenReader(zipFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open zip file %q", zipFile)
	}
	defer func() { _ = r.Close() }()

	baseDir, err := filepath.Abs(zipBaseDir)
	if err != nil {
		return errors.Wrapf(err, "invalid unzip directory %q", zipBaseDir)
	}
	for _, f := range r.File {
		target := filepath.Join(baseDir, filepath.FromSlash(f.Name))
		if target != baseDir && !strings.HasPrefix(target, baseDir+string(os.PathSeparator)) {
			return errors.Errorf("zip file %q has entry %q outside of the target directory", zipFile, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", target)
			}
			continue
		}
		if err = extractFile(f, target); err != nil {
			return errors.WithMessagef(err, "while unzipping %q", zipFile)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", target)
	}
	src, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open zip entry %q", f.Name)
	}
	defer func() { _ = src.Close() }()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", target)
	}
	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "failed to extract %q", f.Name)
	}
	return errors.Wrapf(dst.Close(), "failed closing %q", target)
}
