// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kaggle downloads public datasets from Kaggle, using the same credentials as the
// official `kaggle` command-line tool.
package kaggle

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/braintumor/internal/downloader"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultAPIURL is the base of Kaggle's public API.
	DefaultAPIURL = "https://www.kaggle.com/api/v1"

	// ConfigDirEnv overrides the directory where kaggle.json is searched for.
	ConfigDirEnv = "KAGGLE_CONFIG_DIR"

	// UsernameEnv and KeyEnv, if both set, take precedence over kaggle.json.
	UsernameEnv = "KAGGLE_USERNAME"
	KeyEnv      = "KAGGLE_KEY"

	// CredentialsFile is the name of the credentials file inside the configuration directory.
	CredentialsFile = "kaggle.json"
)

// Credentials used to authenticate with Kaggle's API.
type Credentials struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

// ConfigDir returns the directory holding kaggle.json: KAGGLE_CONFIG_DIR if set, otherwise "~/.kaggle".
func ConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	return fsutil.MustReplaceTildeInDir("~/.kaggle")
}

// LoadCredentials from the environment (KAGGLE_USERNAME and KAGGLE_KEY) or, if those are not set,
// from kaggle.json in configDir. If configDir is empty, ConfigDir() is used.
func LoadCredentials(configDir string) (Credentials, error) {
	username, key := os.Getenv(UsernameEnv), os.Getenv(KeyEnv)
	if username != "" && key != "" {
		klog.V(1).Infof("using Kaggle credentials from $%s and $%s", UsernameEnv, KeyEnv)
		return Credentials{Username: username, Key: key}, nil
	}
	if configDir == "" {
		configDir = ConfigDir()
	}
	configPath := filepath.Join(fsutil.MustReplaceTildeInDir(configDir), CredentialsFile)
	contents, err := os.ReadFile(configPath)
	if err != nil {
		return Credentials{}, errors.Wrapf(err,
			"could not read Kaggle credentials: set $%s and $%s, or create %q (see https://www.kaggle.com/docs/api)",
			UsernameEnv, KeyEnv, configPath)
	}
	var creds Credentials
	if err = json.Unmarshal(contents, &creds); err != nil {
		return Credentials{}, errors.Wrapf(err, "failed to parse Kaggle credentials in %q", configPath)
	}
	if creds.Username == "" || creds.Key == "" {
		return Credentials{}, errors.Errorf("Kaggle credentials in %q must have both \"username\" and \"key\"", configPath)
	}
	klog.V(1).Infof("using Kaggle credentials from %q", configPath)
	return creds, nil
}

// DatasetRef identifies a Kaggle dataset, e.g.: "navoneel/brain-mri-images-for-brain-tumor-detection".
type DatasetRef struct {
	Owner, Name string
}

// ParseDatasetRef parses a "<owner>/<dataset>" reference.
func ParseDatasetRef(ref string) (DatasetRef, error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return DatasetRef{}, errors.Errorf("invalid Kaggle dataset reference %q, it must be \"<owner>/<dataset>\"", ref)
	}
	return DatasetRef{Owner: parts[0], Name: parts[1]}, nil
}

// String implements fmt.Stringer.
func (ref DatasetRef) String() string {
	return ref.Owner + "/" + ref.Name
}

// Client downloads datasets from Kaggle.
type Client struct {
	credentials Credentials
	apiURL      string
	httpClient  *http.Client
	progressBar bool
}

// NewClient creates a Client with the given credentials, using DefaultAPIURL.
func NewClient(credentials Credentials) *Client {
	return &Client{
		credentials: credentials,
		apiURL:      DefaultAPIURL,
		progressBar: true,
	}
}

// WithAPIURL changes the base URL of the API. Mostly used for testing.
func (c *Client) WithAPIURL(apiURL string) *Client {
	c.apiURL = strings.TrimSuffix(apiURL, "/")
	return c
}

// WithHTTPClient sets the HTTP client used for downloads.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// WithProgressBar sets whether to display a progress bar while downloading. Default is true.
func (c *Client) WithProgressBar(enabled bool) *Client {
	c.progressBar = enabled
	return c
}

// DatasetDownloadURL returns the URL that serves the zip file with the whole dataset.
func (c *Client) DatasetDownloadURL(ref DatasetRef) string {
	return c.apiURL + "/datasets/download/" + ref.Owner + "/" + ref.Name
}

// DownloadDataset downloads the dataset zip to "<baseDir>/<name>.zip" and unzips it into baseDir,
// the equivalent of `kaggle datasets download -d <ref> --unzip`.
//
// Nothing is done if targetDir already exists. targetDir, if relative, is taken relative to baseDir,
// and must exist after unzipping.
func (c *Client) DownloadDataset(ctx context.Context, ref DatasetRef, baseDir, targetDir string) error {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	if !filepath.IsAbs(targetDir) {
		targetDir = filepath.Join(baseDir, targetDir)
	}
	zipFile := filepath.Join(baseDir, ref.Name+".zip")
	req := downloader.Request{
		URL:             c.DatasetDownloadURL(ref),
		Username:        c.credentials.Username,
		Password:        c.credentials.Key,
		Client:          c.httpClient,
		ShowProgressBar: c.progressBar,
	}
	err := downloader.DownloadAndUnzipIfMissing(ctx, req, zipFile, baseDir, targetDir)
	if err != nil {
		return errors.WithMessagef(err, "failed to download Kaggle dataset %q", ref)
	}
	return nil
}
