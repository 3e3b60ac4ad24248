package lib

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// DefaultMaxPackagesToDiff bounds the window of prior releases a new release
// is diffed against. Clients more than this many releases behind fall back
// to the full package.
const DefaultMaxPackagesToDiff = 5

// diffControlFileName is the control document every delta archive carries,
// listing the files the client must delete. The name is part of the wire
// format clients consume.
const diffControlFileName = "hotcodepush.json"

// diffControl is the serialized form of the control document.
type diffControl struct {
	DeletedFiles []string `json:"deletedFiles"`
}

// PackageDiffer computes delta archives between a freshly committed release
// and a bounded window of prior compatible releases. Runs are strictly
// best-effort: a failed run never affects the release it was computing for.
type PackageDiffer struct {
	store             Storage
	maxPackagesToDiff int
	log               *logrus.Entry
}

// NewPackageDiffer wires a differ over a storage collaborator. A
// non-positive maxPackagesToDiff falls back to the default window.
func NewPackageDiffer(store Storage, maxPackagesToDiff int) *PackageDiffer {
	if maxPackagesToDiff <= 0 {
		maxPackagesToDiff = DefaultMaxPackagesToDiff
	}
	return &PackageDiffer{
		store:             store,
		maxPackagesToDiff: maxPackagesToDiff,
		log:               logrus.WithField("component", "packageDiffer"),
	}
}

// GenerateDiffMap computes delta archives from each eligible prior release
// to newRelease and uploads them, returning a map from the prior release's
// package hash to the delta blob. A release without a manifest returns an
// empty map immediately; individual candidate failures are logged and
// skipped so one bad candidate cannot starve the others.
func (d *PackageDiffer) GenerateDiffMap(ctx context.Context, history []types.Package, newRelease types.Package) (map[string]types.BlobInfo, error) {
	if newRelease.BlobURL == "" || newRelease.ManifestBlobURL == "" {
		// Single-file releases are never diffed.
		return nil, nil
	}

	candidates := d.selectCandidates(history, newRelease)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Download the new archive and parse its manifest once; both are reused
	// across every candidate comparison.
	archive, err := d.store.DownloadBlob(ctx, newRelease.BlobURL)
	if err != nil {
		return nil, fmt.Errorf("downloading archive for %s: %w", newRelease.Label, err)
	}
	manifestData, err := d.store.DownloadBlob(ctx, newRelease.ManifestBlobURL)
	if err != nil {
		return nil, fmt.Errorf("downloading manifest for %s: %w", newRelease.Label, err)
	}
	newManifest, err := ParseManifest(manifestData)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest for %s: %w", newRelease.Label, err)
	}
	newArchive, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive for %s: %w", newRelease.Label, err)
	}

	diffMap := make(map[string]types.BlobInfo)
	for _, candidate := range candidates {
		info, err := d.diffAgainst(ctx, newArchive, newManifest, candidate)
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"candidate": candidate.Label,
				"release":   newRelease.Label,
			}).Warn("skipping diff candidate")
			continue
		}
		if info != nil {
			diffMap[candidate.PackageHash] = *info
		}
	}

	if len(diffMap) == 0 {
		return nil, nil
	}
	return diffMap, nil
}

// selectCandidates picks up to maxPackagesToDiff immediately-preceding
// releases that are version-compatible with the new release and carry a
// different package hash, preserving their chronological order.
func (d *PackageDiffer) selectCandidates(history []types.Package, newRelease types.Package) []types.Package {
	end := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Label == newRelease.Label {
			end = i
			break
		}
	}

	floor := RangeFloor(newRelease.AppVersion)
	var selected []types.Package
	for i := end - 1; i >= 0 && len(selected) < d.maxPackagesToDiff; i-- {
		candidate := history[i]
		if candidate.PackageHash == newRelease.PackageHash {
			continue
		}
		if floor == nil || !IsSatisfyingRange(candidate.AppVersion, floor) {
			continue
		}
		selected = append(selected, candidate)
	}

	// The scan collected newest-first; restore chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

// diffAgainst produces and uploads the delta from one candidate, returning
// nil info when the candidate needs no delta (no manifest, or no changes).
func (d *PackageDiffer) diffAgainst(ctx context.Context, newArchive *zip.Reader, newManifest Manifest, candidate types.Package) (*types.BlobInfo, error) {
	if candidate.ManifestBlobURL == "" {
		// Single-file candidate; there is nothing to compare against.
		return nil, nil
	}

	manifestData, err := d.store.DownloadBlob(ctx, candidate.ManifestBlobURL)
	if err != nil {
		return nil, fmt.Errorf("downloading candidate manifest: %w", err)
	}
	candidateManifest, err := ParseManifest(manifestData)
	if err != nil {
		return nil, err
	}

	diff := Diff(candidateManifest, newManifest)
	if diff.IsEmpty() {
		// Identical contents; a delta would be pure overhead.
		return nil, nil
	}

	deltaBytes, err := buildDeltaArchive(newArchive, diff)
	if err != nil {
		return nil, err
	}
	location, err := d.store.UploadBlob(ctx, deltaBytes)
	if err != nil {
		return nil, fmt.Errorf("uploading delta: %w", err)
	}
	return &types.BlobInfo{URL: location, Size: int64(len(deltaBytes))}, nil
}

// buildDeltaArchive writes a zip holding the control document plus every
// changed-or-new file's bytes copied out of the new release's archive.
func buildDeltaArchive(newArchive *zip.Reader, diff ManifestDiff) ([]byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	deleted := diff.DeletedFiles
	if deleted == nil {
		deleted = []string{}
	}
	control, err := json.Marshal(diffControl{DeletedFiles: deleted})
	if err != nil {
		return nil, err
	}
	controlWriter, err := zipWriter.Create(diffControlFileName)
	if err != nil {
		return nil, err
	}
	if _, err := controlWriter.Write(control); err != nil {
		return nil, err
	}

	for _, file := range newArchive.File {
		name := normalizePath(file.Name)
		if _, ok := diff.ChangedOrNew[name]; !ok {
			continue
		}
		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening archive entry %s: %w", file.Name, err)
		}
		dst, err := zipWriter.Create(name)
		if err != nil {
			src.Close()
			return nil, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			return nil, fmt.Errorf("copying archive entry %s: %w", file.Name, err)
		}
		src.Close()
	}

	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
