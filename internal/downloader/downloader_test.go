// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package downloader

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

// buildZip returns the bytes of a zip archive with the given name->contents entries.
func buildZip(t *testing.T, entries map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, contents := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	dir := t.TempDir()
	filePath := filepath.Join(dir, "sub", "file.txt")
	size, err := Download(context.Background(), Request{URL: server.URL, Username: "alice", Password: "secret"}, filePath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	contents, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))

	// Wrong credentials: error and no file left behind.
	badPath := filepath.Join(dir, "bad.txt")
	_, err = Download(context.Background(), Request{URL: server.URL, Username: "alice", Password: "wrong"}, badPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	_, statErr := os.Stat(badPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadAndUnzipIfMissing(t *testing.T) {
	zipBytes := buildZip(t, map[string]string{
		"data/no/a.txt":  "a",
		"data/yes/b.txt": "b",
	})
	var numRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		numRequests++
		_, _ = w.Write(zipBytes)
	}))
	defer server.Close()

	dir := t.TempDir()
	zipFile := filepath.Join(dir, "data.zip")
	target := filepath.Join(dir, "data")
	req := Request{URL: server.URL}
	require.NoError(t, DownloadAndUnzipIfMissing(context.Background(), req, zipFile, dir, target))
	contents, err := os.ReadFile(filepath.Join(target, "yes", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(contents))

	// Second call is a no-op.
	require.NoError(t, DownloadAndUnzipIfMissing(context.Background(), req, zipFile, dir, target))
	assert.Equal(t, 1, numRequests)

	// Archive without the expected directory.
	err = DownloadAndUnzipIfMissing(context.Background(), req, zipFile, dir, filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestUnzipRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	zipFile := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(zipFile, buildZip(t, map[string]string{"../evil.txt": "x"}), 0644))
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))
	err := Unzip(zipFile, outDir)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
