package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/types"
)

const (
	hashA = "aaaa1111"
	hashB = "bbbb2222"
	hashC = "cccc3333"
)

// release is a compact builder for history entries in resolver tests.
func release(label, appVersion, hash string, mutate ...func(*types.Package)) types.Package {
	pkg := types.Package{
		Label:       label,
		AppVersion:  appVersion,
		PackageHash: hash,
		BlobURL:     "blob-" + label,
		Size:        1000,
	}
	for _, m := range mutate {
		m(&pkg)
	}
	return pkg
}

func checkRequest(appVersion, packageHash string) types.UpdateCheckRequest {
	return types.UpdateCheckRequest{
		DeploymentKey:  "test-key",
		AppVersion:     appVersion,
		PackageHash:    packageHash,
		ClientUniqueID: "clientA",
	}
}

func TestResolve(t *testing.T) {
	t.Run("should offer a mandatory update for a newer mandatory release", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB, func(p *types.Package) { p.IsMandatory = true }),
		}

		result := Resolve(history, checkRequest("1.0.0", hashA))
		resp := result.Target.Response

		assert.True(t, resp.IsAvailable)
		assert.True(t, resp.IsMandatory)
		assert.Equal(t, "v2", resp.Label)
		assert.Equal(t, hashB, resp.PackageHash)
		assert.Equal(t, "blob-v2", resp.DownloadURL)
		assert.Equal(t, result.Target, result.Baseline, "Without a rollout both candidates are identical")
	})

	t.Run("should accumulate mandatoriness across skipped releases", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB, func(p *types.Package) { p.IsMandatory = true }),
			release("v3", "1.0.0", hashC),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashA)).Target.Response

		assert.True(t, resp.IsAvailable)
		assert.True(t, resp.IsMandatory, "A mandatory release between the client and the target forces mandatoriness")
		assert.Equal(t, "v3", resp.Label, "The client still receives the newest satisfying release")
	})

	t.Run("should report no update when the client is current", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashB)).Target.Response

		assert.False(t, resp.IsAvailable)
		assert.Equal(t, "1.0.0", resp.AppVersion)
	})

	t.Run("should treat a request with no label and no hash as current", func(t *testing.T) {
		history := []types.Package{release("v1", "1.0.0", hashA)}

		resp := Resolve(history, checkRequest("1.0.0", "")).Target.Response

		assert.False(t, resp.IsAvailable)
	})

	t.Run("should skip disabled releases", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB),
			release("v3", "1.0.0", hashC, func(p *types.Package) { p.IsDisabled = true }),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashA)).Target.Response

		assert.True(t, resp.IsAvailable)
		assert.Equal(t, "v2", resp.Label, "The disabled newest release must not be served")
	})

	t.Run("should report nothing when every release is disabled", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA, func(p *types.Package) { p.IsDisabled = true }),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashB)).Target.Response

		assert.False(t, resp.IsAvailable)
		assert.False(t, resp.ShouldRunBinaryVersion)
	})

	t.Run("should tell a too-new binary to run its own bundle", func(t *testing.T) {
		history := []types.Package{release("v1", "1.0.0", hashA)}

		resp := Resolve(history, checkRequest("3.0.0", hashB)).Target.Response

		assert.False(t, resp.IsAvailable)
		assert.True(t, resp.ShouldRunBinaryVersion)
		assert.False(t, resp.UpdateAppVersion)
		assert.Equal(t, "3.0.0", resp.AppVersion)
	})

	t.Run("should tell a too-old binary to update through the store", func(t *testing.T) {
		history := []types.Package{release("v1", "2.0.0", hashA)}

		resp := Resolve(history, checkRequest("1.0.0", hashB)).Target.Response

		assert.False(t, resp.IsAvailable)
		assert.True(t, resp.ShouldRunBinaryVersion)
		assert.True(t, resp.UpdateAppVersion)
		assert.Equal(t, "2.0.0", resp.AppVersion, "The response carries the version the binary should move to")
	})

	t.Run("should skip version compatibility for companion apps", func(t *testing.T) {
		history := []types.Package{release("v1", "1.0.0", hashA)}
		req := checkRequest("9.9.9", hashB)
		req.IsCompanion = true

		resp := Resolve(history, req).Target.Response

		assert.True(t, resp.IsAvailable)
		assert.Equal(t, "v1", resp.Label)
	})

	t.Run("should degrade malformed client versions to no update", func(t *testing.T) {
		history := []types.Package{release("v1", "1.0.0", hashA)}

		resp := Resolve(history, checkRequest("definitely-not-semver", hashB)).Target.Response

		assert.False(t, resp.IsAvailable)
	})

	t.Run("should serve the delta blob when one exists for the client's package", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB, func(p *types.Package) {
				p.DiffPackageMap = map[string]types.BlobInfo{
					hashA: {URL: "delta-blob", Size: 42},
				}
			}),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashA)).Target.Response

		assert.True(t, resp.IsAvailable)
		assert.Equal(t, "delta-blob", resp.DownloadURL)
		assert.Equal(t, int64(42), resp.PackageSize)
		assert.Equal(t, hashB, resp.PackageHash, "The package hash always names the full target package")
	})

	t.Run("should fall back to the full package without a matching delta", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB, func(p *types.Package) {
				p.DiffPackageMap = map[string]types.BlobInfo{
					hashC: {URL: "delta-for-someone-else", Size: 42},
				}
			}),
		}

		resp := Resolve(history, checkRequest("1.0.0", hashA)).Target.Response

		assert.Equal(t, "blob-v2", resp.DownloadURL)
		assert.Equal(t, int64(1000), resp.PackageSize)
	})

	t.Run("should match the client's package by label when supplied", func(t *testing.T) {
		history := []types.Package{
			release("v1", "1.0.0", hashA),
			release("v2", "1.0.0", hashB),
		}
		req := checkRequest("1.0.0", "stale-hash-the-server-never-saw")
		req.Label = "v2"

		resp := Resolve(history, req).Target.Response

		assert.False(t, resp.IsAvailable, "Label identifies the package as current even with an unknown hash")
	})
}

func TestResolveVersionCoercion(t *testing.T) {
	history := []types.Package{release("v1", "2.0.0", hashA)}

	shorthand := Resolve(history, checkRequest("2", hashB)).Target.Response
	full := Resolve(history, checkRequest("2.0.0", hashB)).Target.Response

	require.True(t, shorthand.IsAvailable)
	require.True(t, full.IsAvailable)
	assert.Equal(t, shorthand.Label, full.Label, "Shorthand and full versions must resolve identically")
	assert.Equal(t, shorthand.PackageHash, full.PackageHash)

	assert.Equal(t, "2", shorthand.AppVersion, "The client gets back the version format it sent")
	assert.Equal(t, "2.0.0", full.AppVersion)
}

func TestResolveRolloutGating(t *testing.T) {
	history := []types.Package{
		release("v1", "1.0.0", hashA),
		release("v2", "1.0.0", hashB, func(p *types.Package) { p.Rollout = 50 }),
	}

	result := Resolve(history, checkRequest("1.0.0", hashA))

	require.True(t, result.Target.Response.IsAvailable)
	assert.Equal(t, 50, result.Target.Rollout)
	assert.Equal(t, "v2", result.Target.ReleaseTag)
	assert.False(t, result.Baseline.Response.IsAvailable,
		"Outside the cohort the client's own package is still the newest eligible one")

	// "insider-v2" buckets below 50, "holdout-v2" at exactly 50.
	insider := SelectResponse(result, "insider")
	holdout := SelectResponse(result, "holdout")

	assert.True(t, insider.IsAvailable, "The in-cohort client receives the rollout package")
	assert.Equal(t, hashB, insider.PackageHash)
	assert.False(t, holdout.IsAvailable, "The out-of-cohort client receives the baseline answer")
}

func TestResolveToleratesOlderUnfinishedRollout(t *testing.T) {
	// An older mid-rollout entry should never exist, but the resolver must
	// tolerate it: only the newest release's rollout state gates the answer.
	history := []types.Package{
		release("v1", "1.0.0", hashA, func(p *types.Package) { p.Rollout = 30 }),
		release("v2", "1.0.0", hashB),
	}

	result := Resolve(history, checkRequest("1.0.0", hashA))

	assert.True(t, result.Target.Response.IsAvailable)
	assert.Equal(t, 0, result.Target.Rollout)
	assert.Equal(t, result.Target, result.Baseline, "A fully released target needs no baseline pass")
}
