// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kaggle

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentials(t *testing.T) {
	t.Setenv(UsernameEnv, "")
	t.Setenv(KeyEnv, "")

	dir := t.TempDir()
	_, err := LoadCredentials(dir)
	require.Error(t, err, "no kaggle.json in the directory")

	require.NoError(t, os.WriteFile(filepath.Join(dir, CredentialsFile), []byte(`{"username":"bob","key":"k3y"}`), 0600))
	creds, err := LoadCredentials(dir)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "bob", Key: "k3y"}, creds)

	// KAGGLE_CONFIG_DIR is used when no directory is given.
	t.Setenv(ConfigDirEnv, dir)
	creds, err = LoadCredentials("")
	require.NoError(t, err)
	assert.Equal(t, "bob", creds.Username)

	// Environment variables take precedence.
	t.Setenv(UsernameEnv, "carol")
	t.Setenv(KeyEnv, "other")
	creds, err = LoadCredentials(dir)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "carol", Key: "other"}, creds)
}

func TestLoadCredentialsIncomplete(t *testing.T) {
	t.Setenv(UsernameEnv, "")
	t.Setenv(KeyEnv, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CredentialsFile), []byte(`{"username":"bob"}`), 0600))
	_, err := LoadCredentials(dir)
	require.Error(t, err)
}

func TestParseDatasetRef(t *testing.T) {
	ref, err := ParseDatasetRef("navoneel/brain-mri-images-for-brain-tumor-detection")
	require.NoError(t, err)
	assert.Equal(t, "navoneel", ref.Owner)
	assert.Equal(t, "brain-mri-images-for-brain-tumor-detection", ref.Name)
	assert.Equal(t, "navoneel/brain-mri-images-for-brain-tumor-detection", ref.String())

	for _, invalid := range []string{"", "noslash", "a/b/c", "/b", "a/"} {
		_, err = ParseDatasetRef(invalid)
		assert.Errorf(t, err, "ref %q should be invalid", invalid)
	}
}

func TestDownloadDataset(t *testing.T) {
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("brain_tumor_dataset/yes/Y1.jpg")
	require.NoError(t, err)
	_, err = f.Write([]byte("not really a jpeg"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if user, key, ok := r.BasicAuth(); !ok || user != "bob" || key != "k3y" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(zipBuf.Bytes())
	}))
	defer server.Close()

	ref := DatasetRef{Owner: "navoneel", Name: "brain-mri-images-for-brain-tumor-detection"}
	client := NewClient(Credentials{Username: "bob", Key: "k3y"}).
		WithAPIURL(server.URL + "/api/v1/").
		WithHTTPClient(server.Client()).
		WithProgressBar(false)
	assert.Equal(t, server.URL+"/api/v1/datasets/download/navoneel/brain-mri-images-for-brain-tumor-detection",
		client.DatasetDownloadURL(ref))

	baseDir := t.TempDir()
	require.NoError(t, client.DownloadDataset(context.Background(), ref, baseDir, "brain_tumor_dataset"))
	assert.Equal(t, "/api/v1/datasets/download/navoneel/brain-mri-images-for-brain-tumor-detection", gotPath)
	_, err = os.Stat(filepath.Join(baseDir, "brain_tumor_dataset", "yes", "Y1.jpg"))
	require.NoError(t, err)

	// Bad credentials surface as an error.
	badClient := NewClient(Credentials{Username: "bob", Key: "nope"}).
		WithAPIURL(server.URL + "/api/v1").
		WithProgressBar(false)
	err = badClient.DownloadDataset(context.Background(), ref, t.TempDir(), "brain_tumor_dataset")
	require.Error(t, err)
}
