// Package commands contains the orchestration operations the routing layer
// invokes: the update check, and the deployment mutations that trigger diff
// generation and cache invalidation.
package commands

import (
	"context"
	"net/url"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// CheckForUpdate answers one client update check: cache lookup, resolution
// against the deployment's release history on a miss, then rollout gating.
// Requests missing a deployment key or app version degrade to "no update";
// only an unknown deployment key surfaces an error.
func CheckForUpdate(ctx context.Context, store lib.Storage, cache *lib.ResponseCache, req types.UpdateCheckRequest) (types.UpdateCheckResponse, error) {
	if req.DeploymentKey == "" || req.AppVersion == "" {
		return types.UpdateCheckResponse{AppVersion: req.AppVersion}, nil
	}

	keyHash := lib.GetDeploymentKeyHash(req.DeploymentKey)
	field := lib.NormalizeCacheField(cacheFieldForRequest(req))

	if cache != nil {
		if result, ok := cache.Get(ctx, keyHash, field); ok {
			return lib.SelectResponse(result, req.ClientUniqueID), nil
		}
	}

	history, err := store.GetHistory(ctx, req.DeploymentKey)
	if err != nil {
		return types.UpdateCheckResponse{}, err
	}

	result := lib.Resolve(history, req)

	if cache != nil {
		// Populate asynchronously; cache latency never adds to request
		// latency, and a lost write just means one extra recompute.
		go cache.Set(context.WithoutCancel(ctx), keyHash, field, result)
	}

	return lib.SelectResponse(result, req.ClientUniqueID), nil
}

// cacheFieldForRequest renders a request as a canonical update-check URL so
// equivalent requests share a cache entry regardless of transport-level
// parameter ordering. The client id is included here and stripped by
// normalization, mirroring the on-wire URL shape.
func cacheFieldForRequest(req types.UpdateCheckRequest) string {
	query := url.Values{}
	query.Set("deploymentKey", req.DeploymentKey)
	query.Set("appVersion", req.AppVersion)
	if req.PackageHash != "" {
		query.Set("packageHash", req.PackageHash)
	}
	if req.Label != "" {
		query.Set("label", req.Label)
	}
	if req.IsCompanion {
		query.Set("isCompanion", "true")
	}
	if req.ClientUniqueID != "" {
		query.Set("clientUniqueId", req.ClientUniqueID)
	}
	return "/updateCheck?" + query.Encode()
}
