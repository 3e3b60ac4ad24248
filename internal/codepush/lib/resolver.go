package lib

import (
	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

// Candidate is one resolved answer plus the rollout metadata the caller
// needs to gate it.
type Candidate struct {
	Response   types.UpdateCheckResponse `json:"response"`
	Rollout    int                       `json:"rollout,omitempty"`
	ReleaseTag string                    `json:"releaseTag,omitempty"`
}

// ResolveResult carries the two candidates an update check can serve: the
// target candidate (mid-rollout releases included) and the baseline
// candidate served to clients outside an unfinished rollout's cohort. When
// the target is not mid-rollout the two are identical.
type ResolveResult struct {
	Target   Candidate `json:"target"`
	Baseline Candidate `json:"baseline"`
}

// Resolve computes the update-check answer for a request against a
// deployment's release history. The first pass includes unfinished rollouts;
// a second pass excluding them runs only when the first settled on a
// mid-rollout release. Resolution is pure: same history snapshot and request
// always produce the same result.
func Resolve(history []types.Package, req types.UpdateCheckRequest) ResolveResult {
	target := scanHistory(history, req, false)
	result := ResolveResult{Target: target, Baseline: target}
	if IsUnfinishedRollout(target.Rollout) {
		result.Baseline = scanHistory(history, req, true)
	}
	return result
}

// SelectResponse picks which candidate a specific client receives. Gating
// happens here, after any cache read, so cache entries stay client-agnostic.
func SelectResponse(result ResolveResult, clientUniqueID string) types.UpdateCheckResponse {
	if IsUnfinishedRollout(result.Target.Rollout) &&
		!IsSelectedForRollout(clientUniqueID, result.Target.Rollout, result.Target.ReleaseTag) {
		return result.Baseline.Response
	}
	return result.Target.Response
}

// releaseTag names a release for rollout bucketing: the label when present,
// else the package hash, so re-releasing under the same label buckets
// clients identically.
func releaseTag(p *types.Package) string {
	if p.Label != "" {
		return p.Label
	}
	return p.PackageHash
}

// scanHistory walks the history newest to oldest and applies the decision
// ladder. With ignoreUnfinishedRollouts set, mid-rollout releases are
// treated as if they did not exist, yielding the answer for clients outside
// the rollout cohort.
func scanHistory(history []types.Package, req types.UpdateCheckRequest, ignoreUnfinishedRollouts bool) Candidate {
	noUpdate := Candidate{Response: types.UpdateCheckResponse{AppVersion: req.AppVersion}}
	if len(history) == 0 {
		return noUpdate
	}

	if req.Label == "" && req.PackageHash == "" {
		// Nothing identifies the client's installed package; the newest entry
		// is treated as already current rather than guessing.
		return noUpdate
	}

	requestVersion, err := ParseVersion(req.AppVersion)
	if err != nil {
		// Client-controlled input; malformed versions degrade to "no update".
		return noUpdate
	}

	var latestEnabled, latestSatisfying *types.Package
	foundRequestInHistory := false
	forceMandatory := false
	currentIsLatestSatisfying := false

	for i := len(history) - 1; i >= 0; i-- {
		entry := &history[i]

		isCurrent := false
		if !foundRequestInHistory {
			if req.Label != "" {
				isCurrent = entry.Label == req.Label
			} else {
				isCurrent = entry.PackageHash == req.PackageHash
			}
			foundRequestInHistory = isCurrent
		}

		skipped := entry.IsDisabled ||
			(ignoreUnfinishedRollouts && IsUnfinishedRollout(entry.Rollout))
		if !skipped {
			if latestEnabled == nil {
				latestEnabled = entry
			}
			if req.IsCompanion || IsSatisfyingRange(entry.AppVersion, requestVersion) {
				if latestSatisfying == nil {
					latestSatisfying = entry
					currentIsLatestSatisfying = isCurrent
				}
				if !isCurrent && entry.IsMandatory {
					// A mandatory release strictly newer than the client's
					// package settles mandatoriness; nothing older matters.
					forceMandatory = true
					break
				}
			}
		}

		if isCurrent {
			// Everything older than the client's package is uninteresting.
			break
		}
	}

	switch {
	case latestEnabled == nil:
		return noUpdate
	case latestSatisfying == nil:
		// The binary version outran every compatible release.
		resp := types.UpdateCheckResponse{
			AppVersion:             req.AppVersion,
			ShouldRunBinaryVersion: true,
		}
		if IsOlderThanRange(requestVersion, latestEnabled.AppVersion) {
			resp.UpdateAppVersion = true
			resp.AppVersion = latestEnabled.AppVersion
		}
		return Candidate{Response: resp}
	case currentIsLatestSatisfying || latestSatisfying.PackageHash == req.PackageHash:
		return noUpdate
	}

	resp := types.UpdateCheckResponse{
		IsAvailable: true,
		IsMandatory: forceMandatory || latestSatisfying.IsMandatory,
		AppVersion:  latestSatisfying.AppVersion,
		Label:       latestSatisfying.Label,
		PackageHash: latestSatisfying.PackageHash,
		Description: latestSatisfying.Description,
		DownloadURL: latestSatisfying.BlobURL,
		PackageSize: latestSatisfying.Size,
	}

	// Clients get back the version format they sent.
	if CoerceVersion(req.AppVersion) == CoerceVersion(latestSatisfying.AppVersion) {
		resp.AppVersion = req.AppVersion
	}

	// Serve the delta when one exists for exactly the client's package.
	if req.PackageHash != "" {
		if diff, ok := latestSatisfying.DiffPackageMap[req.PackageHash]; ok {
			resp.DownloadURL = diff.URL
			resp.PackageSize = diff.Size
		}
	}

	return Candidate{
		Response:   resp,
		Rollout:    latestSatisfying.Rollout,
		ReleaseTag: releaseTag(latestSatisfying),
	}
}
