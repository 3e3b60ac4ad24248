package lib

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree materializes a file tree under a fresh temp directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func archiveNames(t *testing.T, archive []byte) []string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err, "Bundle must be a readable archive")
	var names []string
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	return names
}

func TestBundleDirectory(t *testing.T) {
	t.Run("should bundle every regular file with slashed relative names", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"app.js":           "console.log('hi')",
			"assets/logo.png":  "not really a png",
			"assets/fonts/f.t": "font bytes",
		})

		archive, manifest, err := BundleDirectory(dir)
		require.NoError(t, err)

		names := archiveNames(t, archive)
		assert.ElementsMatch(t, []string{"app.js", "assets/logo.png", "assets/fonts/f.t"}, names)
		assert.Equal(t, 3, manifest.Len())
	})

	t.Run("should honor ignore patterns and never ship the ignore file", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"app.js":             "main",
			"debug.log":          "noise",
			"secrets/token.txt":  "hunter2",
			".git/config":        "[core]",
			PackageIgnoreFilename: "*.log\nsecrets/\n",
		})

		archive, _, err := BundleDirectory(dir)
		require.NoError(t, err)

		names := archiveNames(t, archive)
		assert.Contains(t, names, "app.js")
		assert.NotContains(t, names, "debug.log")
		assert.NotContains(t, names, "secrets/token.txt")
		assert.NotContains(t, names, ".git/config")
		assert.NotContains(t, names, PackageIgnoreFilename)
	})

	t.Run("should produce a manifest agreeing with the archive contents", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"a.txt": "alpha",
			"b.txt": "beta",
		})

		archive, manifest, err := BundleDirectory(dir)
		require.NoError(t, err)

		fromArchive, err := NewManifestFromArchive(archive)
		require.NoError(t, err)
		assert.Equal(t, fromArchive.PackageHash(), manifest.PackageHash(),
			"Bundling and re-reading the archive must agree on the package hash")
	})
}

func TestDescribePayload(t *testing.T) {
	t.Run("should describe a zip payload through its manifest", func(t *testing.T) {
		archive := makeZip(t, map[string]string{"app.js": "main"})

		manifest, packageHash, err := DescribePayload(archive)
		require.NoError(t, err)
		require.NotNil(t, manifest)
		assert.Equal(t, manifest.PackageHash(), packageHash)
	})

	t.Run("should hash single-file payloads directly", func(t *testing.T) {
		payload := []byte("just a standalone bundle file")

		manifest, packageHash, err := DescribePayload(payload)
		require.NoError(t, err)
		assert.Nil(t, manifest, "Single-file releases have no manifest and cannot be diffed")
		assert.Equal(t, GetHash(payload), packageHash)
	})

	t.Run("should reject a corrupt zip payload", func(t *testing.T) {
		payload := append([]byte("PK\x03\x04"), []byte("truncated garbage")...)

		_, _, err := DescribePayload(payload)
		assert.Error(t, err)
	})
}
