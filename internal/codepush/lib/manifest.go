package lib

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Manifest is an immutable mapping from archive-relative file path to the
// SHA-256 hash of that file's contents. It is built once per release and
// fetched lazily when a diff first needs it.
type Manifest struct {
	entries map[string]string
}

// ManifestDiff is the result of comparing two manifests. Paths whose hash is
// identical in both appear in neither set; that omission is the entire
// compression benefit of differential updates.
type ManifestDiff struct {
	// DeletedFiles holds, sorted, every path present in the old manifest but
	// absent from the new one.
	DeletedFiles []string
	// ChangedOrNew maps each path whose hash in the old manifest is absent or
	// different to its hash in the new manifest.
	ChangedOrNew map[string]string
}

// NewManifest builds a manifest from a path-to-hash map. The input map is
// copied; the caller keeps ownership of it.
func NewManifest(entries map[string]string) Manifest {
	copied := make(map[string]string, len(entries))
	for p, h := range entries {
		copied[normalizePath(p)] = h
	}
	return Manifest{entries: copied}
}

// NewManifestFromArchive hashes every file inside a zip archive. Directory
// entries are skipped; only file contents participate in the manifest.
func NewManifestFromArchive(archive []byte) (Manifest, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return Manifest{}, fmt.Errorf("payload is not a zip archive: %w", err)
	}

	entries := make(map[string]string)
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return Manifest{}, fmt.Errorf("opening archive entry %s: %w", file.Name, err)
		}
		hash, err := GetReaderHash(rc)
		rc.Close()
		if err != nil {
			return Manifest{}, fmt.Errorf("hashing archive entry %s: %w", file.Name, err)
		}
		entries[normalizePath(file.Name)] = hash
	}
	return Manifest{entries: entries}, nil
}

// ParseManifest decodes the stored JSON document form of a manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return Manifest{}, fmt.Errorf("corrupt manifest document: %w", err)
	}
	return NewManifest(entries), nil
}

// Serialize renders the manifest as its stored JSON document. encoding/json
// sorts map keys, so the output is deterministic for a given manifest.
func (m Manifest) Serialize() ([]byte, error) {
	if m.entries == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(m.entries)
}

// Len returns the number of files indexed by the manifest.
func (m Manifest) Len() int {
	return len(m.entries)
}

// Hash returns the content hash recorded for a path.
func (m Manifest) Hash(path string) (string, bool) {
	h, ok := m.entries[normalizePath(path)]
	return h, ok
}

// PackageHash derives the content hash identifying a whole release: the hash
// of the JSON array of sorted "path:hash" lines. Two archives with identical
// file contents produce the same package hash regardless of zip metadata.
func (m Manifest) PackageHash() string {
	lines := make([]string, 0, len(m.entries))
	for p, h := range m.entries {
		lines = append(lines, p+":"+h)
	}
	sort.Strings(lines)
	serialized, _ := json.Marshal(lines)
	return GetHash(serialized)
}

// Diff compares two manifests. A path is changed-or-new when its hash in old
// is absent or different; deleted when present in old and absent in new.
func Diff(old, new Manifest) ManifestDiff {
	diff := ManifestDiff{ChangedOrNew: make(map[string]string)}
	for p, h := range new.entries {
		if oldHash, ok := old.entries[p]; !ok || oldHash != h {
			diff.ChangedOrNew[p] = h
		}
	}
	for p := range old.entries {
		if _, ok := new.entries[p]; !ok {
			diff.DeletedFiles = append(diff.DeletedFiles, p)
		}
	}
	sort.Strings(diff.DeletedFiles)
	return diff
}

// IsEmpty reports whether the diff carries no changes at all, in which case
// generating a delta archive would be pure overhead.
func (d ManifestDiff) IsEmpty() bool {
	return len(d.DeletedFiles) == 0 && len(d.ChangedOrNew) == 0
}

// normalizePath canonicalizes archive entry names. Zip entries always use
// forward slashes; a leading "./" is stripped so the same file never appears
// under two spellings.
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "./")
}
