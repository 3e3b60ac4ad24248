package commands

import (
	"context"
	"errors"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// PromoteInfo holds the optional overrides applied while copying a release
// across deployments. Nil pointer fields keep the source release's value.
type PromoteInfo struct {
	AppVersion  string
	Description string
	IsMandatory *bool
	IsDisabled  *bool
	Rollout     int
}

// Promote copies the current release of one deployment onto another as a new
// history entry, recording where it came from. The destination gets its own
// label and, optionally, its own rollout.
func Promote(ctx context.Context, deps Deps, sourceKey, destKey string, info PromoteInfo) (*types.Package, error) {
	if info.Rollout < 0 || info.Rollout > 100 {
		return nil, ErrInvalidRollout
	}

	sourceHistory, err := deps.Store.GetHistory(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	source := latestRelease(sourceHistory)
	if source == nil {
		return nil, errors.New("source deployment has no release to promote")
	}

	sourceID, err := deps.Store.ResolveDeploymentKey(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	destHistory, err := deps.Store.GetHistory(ctx, destKey)
	if err != nil {
		return nil, err
	}
	if current := latestRelease(destHistory); current != nil && current.PackageHash == source.PackageHash {
		return nil, errors.New("destination deployment already has this package released")
	}

	pkg := types.Package{
		AppVersion:         source.AppVersion,
		PackageHash:        source.PackageHash,
		BlobURL:            source.BlobURL,
		ManifestBlobURL:    source.ManifestBlobURL,
		Size:               source.Size,
		Description:        source.Description,
		IsMandatory:        source.IsMandatory,
		Rollout:            info.Rollout,
		ReleaseMethod:      types.ReleaseMethodPromote,
		OriginalLabel:      source.Label,
		OriginalDeployment: sourceID,
	}
	if info.AppVersion != "" {
		pkg.AppVersion = info.AppVersion
	}
	if info.Description != "" {
		pkg.Description = info.Description
	}
	if info.IsMandatory != nil {
		pkg.IsMandatory = *info.IsMandatory
	}
	if info.IsDisabled != nil {
		pkg.IsDisabled = *info.IsDisabled
	}
	return appendPackage(ctx, deps, destKey, destHistory, pkg)
}
