package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

var (
	// ErrConflictingRollout rejects a commit while the latest release is an
	// enabled unfinished rollout. Completing or disabling it unblocks the
	// deployment.
	ErrConflictingRollout = errors.New("deployment has an active rollout; complete or disable it before releasing")

	// ErrInvalidRollout rejects rollout values outside 1-100.
	ErrInvalidRollout = errors.New("rollout must be between 1 and 100")
)

// Deps bundles the collaborators the mutating operations need. Cache and
// Differ may be nil, in which case the corresponding trigger is skipped.
type Deps struct {
	Store  lib.Storage
	Cache  *lib.ResponseCache
	Differ *lib.PackageDiffer
}

// ReleaseInfo describes a new release whose payload is already persisted to
// blob storage.
type ReleaseInfo struct {
	AppVersion      string
	PackageHash     string
	BlobURL         string
	ManifestBlobURL string
	Size            int64
	Description     string
	IsMandatory     bool
	IsDisabled      bool
	Rollout         int
}

// CommitRelease appends a new release to a deployment, assigns its label,
// clears the previous latest release's rollout, invalidates cached answers
// synchronously and schedules diff generation. Returns the committed
// package as stored.
func CommitRelease(ctx context.Context, deps Deps, deploymentKey string, info ReleaseInfo) (*types.Package, error) {
	if info.Rollout < 0 || info.Rollout > 100 {
		return nil, ErrInvalidRollout
	}

	history, err := deps.Store.GetHistory(ctx, deploymentKey)
	if err != nil {
		return nil, err
	}

	pkg := types.Package{
		AppVersion:      info.AppVersion,
		PackageHash:     info.PackageHash,
		BlobURL:         info.BlobURL,
		ManifestBlobURL: info.ManifestBlobURL,
		Size:            info.Size,
		Description:     info.Description,
		IsMandatory:     info.IsMandatory,
		IsDisabled:      info.IsDisabled,
		Rollout:         info.Rollout,
		ReleaseMethod:   types.ReleaseMethodUpload,
	}
	return appendPackage(ctx, deps, deploymentKey, history, pkg)
}

// PatchRelease updates the mutable fields of the latest release: rollout can
// only widen, flags and description can change freely. Cached answers are
// invalidated before the call reports success.
func PatchRelease(ctx context.Context, deps Deps, deploymentKey string, mutate func(*types.Package) error) error {
	history, err := deps.Store.GetHistory(ctx, deploymentKey)
	if err != nil {
		return err
	}
	latest := latestRelease(history)
	if latest == nil {
		return errors.New("deployment has no releases to update")
	}

	var mutateErr error
	err = deps.Store.UpdateReleaseFields(ctx, deploymentKey, latest.Label, func(p *types.Package) {
		mutateErr = mutate(p)
	})
	if err != nil {
		return err
	}
	if mutateErr != nil {
		return mutateErr
	}
	invalidate(ctx, deps, deploymentKey)
	return nil
}

// ClearHistory wipes a deployment's release history when the storage backend
// supports it, invalidating cached answers before reporting success.
func ClearHistory(ctx context.Context, deps Deps, deploymentKey string) error {
	clearer, ok := deps.Store.(lib.HistoryClearer)
	if !ok {
		return errors.New("storage backend does not support clearing history")
	}
	if err := clearer.ClearHistory(ctx, deploymentKey); err != nil {
		return err
	}
	invalidate(ctx, deps, deploymentKey)
	return nil
}

// RunDiffGeneration computes deltas for a committed release and merges the
// resulting map into it. It runs off the request path; failures are logged
// and swallowed, never surfaced to the commit caller. Exported so callers
// that need deterministic ordering (tests, batch tooling) can run it
// synchronously.
func RunDiffGeneration(deps Deps, deploymentKey string, history []types.Package, released types.Package) {
	ctx := context.Background()
	log := logrus.WithFields(logrus.Fields{"component": "diffGeneration", "label": released.Label})

	diffMap, err := deps.Differ.GenerateDiffMap(ctx, history, released)
	if err != nil {
		log.WithError(err).Warn("diff generation failed")
		return
	}
	if len(diffMap) == 0 {
		return
	}

	err = deps.Store.UpdateReleaseFields(ctx, deploymentKey, released.Label, func(p *types.Package) {
		if p.DiffPackageMap == nil {
			p.DiffPackageMap = make(map[string]types.BlobInfo, len(diffMap))
		}
		for hash, info := range diffMap {
			// Entries are only ever added; an existing delta stays.
			if _, exists := p.DiffPackageMap[hash]; !exists {
				p.DiffPackageMap[hash] = info
			}
		}
	})
	if err != nil {
		log.WithError(err).Warn("failed to persist diff map")
		return
	}

	invalidate(ctx, deps, deploymentKey)
}

// appendPackage enforces the commit invariants shared by release, rollback
// and promote: it rejects commits behind an active rollout, clears the
// superseded release's rollout, assigns the next label, appends, then fires
// the invalidation and diff triggers.
func appendPackage(ctx context.Context, deps Deps, deploymentKey string, history []types.Package, pkg types.Package) (*types.Package, error) {
	if latest := latestRelease(history); latest != nil {
		if !latest.IsDisabled && lib.IsUnfinishedRollout(latest.Rollout) {
			return nil, ErrConflictingRollout
		}
		if latest.Rollout != 0 {
			// Only the newest release may be mid-rollout; the superseded one
			// is forced to fully released.
			err := deps.Store.UpdateReleaseFields(ctx, deploymentKey, latest.Label, func(p *types.Package) {
				p.Rollout = 0
			})
			if err != nil {
				return nil, err
			}
		}
	}

	pkg.Label = fmt.Sprintf("v%d", len(history)+1)
	pkg.UploadTime = time.Now().UnixMilli()

	if err := deps.Store.AppendRelease(ctx, deploymentKey, pkg); err != nil {
		return nil, err
	}

	invalidate(ctx, deps, deploymentKey)

	if deps.Differ != nil {
		// Snapshot the history now; the run is isolated from later commits.
		snapshot, err := deps.Store.GetHistory(ctx, deploymentKey)
		if err != nil {
			logrus.WithError(err).WithField("label", pkg.Label).Warn("skipping diff generation")
		} else {
			go RunDiffGeneration(deps, deploymentKey, snapshot, pkg)
		}
	}

	return &pkg, nil
}

// invalidate drops cached answers for a deployment. Failures are absorbed:
// a cache that cannot be reached will also miss on reads, so stale data is
// not served either way.
func invalidate(ctx context.Context, deps Deps, deploymentKey string) {
	if deps.Cache == nil {
		return
	}
	if err := deps.Cache.Invalidate(ctx, lib.GetDeploymentKeyHash(deploymentKey)); err != nil {
		logrus.WithError(err).Warn("cache invalidation failed")
	}
}

func latestRelease(history []types.Package) *types.Package {
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}
