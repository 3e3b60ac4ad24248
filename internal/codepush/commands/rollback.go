package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// Rollback re-releases a prior package as a new history entry rather than
// rewriting history. With an empty targetLabel the release immediately
// preceding the current one is restored.
func Rollback(ctx context.Context, deps Deps, deploymentKey, targetLabel string) (*types.Package, error) {
	history, err := deps.Store.GetHistory(ctx, deploymentKey)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.New("deployment has no releases to roll back")
	}
	current := history[len(history)-1]

	var target *types.Package
	if targetLabel == "" {
		if len(history) < 2 {
			return nil, errors.New("deployment has no prior release to roll back to")
		}
		target = &history[len(history)-2]
	} else {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Label == targetLabel {
				target = &history[i]
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("release %s not found in deployment history", targetLabel)
		}
	}

	if target.PackageHash == current.PackageHash {
		return nil, errors.New("cannot roll back to the currently released package")
	}

	pkg := types.Package{
		AppVersion:      target.AppVersion,
		PackageHash:     target.PackageHash,
		BlobURL:         target.BlobURL,
		ManifestBlobURL: target.ManifestBlobURL,
		Size:            target.Size,
		Description:     target.Description,
		IsMandatory:     target.IsMandatory,
		ReleaseMethod:   types.ReleaseMethodRollback,
		OriginalLabel:   target.Label,
	}
	return appendPackage(ctx, deps, deploymentKey, history, pkg)
}
