package lib

import (
	"archive/zip"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/denormal/go-gitignore"
)

// PackageIgnoreFilename holds user-defined patterns for files that must not
// ship inside a release bundle, in gitignore syntax.
const PackageIgnoreFilename = ".codepushignore"

// defaultIgnorePatterns contains entries that never belong in a bundle.
var defaultIgnorePatterns = []string{
	".git/**",
	PackageIgnoreFilename,
}

// zipMagic is the local-file-header signature every zip archive opens with.
var zipMagic = []byte("PK\x03\x04")

// DescribePayload inspects a release payload. Zip payloads get a manifest
// and a manifest-derived package hash; anything else is a single-file
// release hashed directly, which disables diffing for that release.
func DescribePayload(payload []byte) (*Manifest, string, error) {
	if !bytes.HasPrefix(payload, zipMagic) {
		return nil, GetHash(payload), nil
	}
	manifest, err := NewManifestFromArchive(payload)
	if err != nil {
		return nil, "", err
	}
	return &manifest, manifest.PackageHash(), nil
}

// BundleDirectory packages an application directory into a release zip and
// its manifest, honoring .codepushignore patterns. Entry names use forward
// slashes relative to the directory root.
func BundleDirectory(dir string) ([]byte, Manifest, error) {
	matcher := loadIgnoreMatcher(dir)

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	entries := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if isIgnored(matcher, path, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		writer, err := zipWriter.Create(name)
		if err != nil {
			return err
		}
		if _, err := writer.Write(content); err != nil {
			return err
		}
		entries[name] = GetHash(content)
		return nil
	})
	if err != nil {
		return nil, Manifest{}, err
	}
	if err := zipWriter.Close(); err != nil {
		return nil, Manifest{}, err
	}

	return buf.Bytes(), NewManifest(entries), nil
}

// loadIgnoreMatcher compiles the default patterns plus the directory's
// .codepushignore file, when present, into a gitignore matcher.
func loadIgnoreMatcher(dir string) gitignore.GitIgnore {
	rawPatterns := make([]string, len(defaultIgnorePatterns))
	copy(rawPatterns, defaultIgnorePatterns)

	if content, err := os.ReadFile(filepath.Join(dir, PackageIgnoreFilename)); err == nil {
		rawPatterns = append(rawPatterns, strings.Split(string(content), "\n")...)
	}

	var finalPatterns []string
	for _, pattern := range rawPatterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Directory patterns become glob patterns the library understands.
		if strings.HasSuffix(trimmed, "/") {
			trimmed += "**"
		}
		finalPatterns = append(finalPatterns, trimmed)
	}

	matcher := gitignore.New(
		strings.NewReader(strings.Join(finalPatterns, "\n")),
		dir,
		func(err gitignore.Error) bool { return false },
	)
	if matcher == nil {
		return gitignore.New(strings.NewReader(""), dir, nil)
	}
	return matcher
}

// isIgnored checks a path against the matcher, trying the slashed relative
// path first and the absolute path as a fallback.
func isIgnored(matcher gitignore.GitIgnore, absPath, relPath string) bool {
	match := matcher.Match(filepath.ToSlash(relPath))
	if match == nil {
		match = matcher.Match(absPath)
	}
	if match == nil {
		return false
	}
	return match.Ignore()
}
