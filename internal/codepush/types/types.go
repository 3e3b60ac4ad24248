// Package types defines the shared data shapes for the update service:
// releases, deployments, and the update-check wire types.
package types

// BlobInfo points at a stored blob and records its size in bytes.
type BlobInfo struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Package is one release in a deployment's history. Once superseded it is
// immutable except for its rollout and flag fields, which may change only
// while it is still the latest release.
type Package struct {
	Label       string `json:"label"`
	AppVersion  string `json:"appVersion"`
	PackageHash string `json:"packageHash"`
	BlobURL     string `json:"blobUrl"`
	Size        int64  `json:"size"`

	// ManifestBlobURL is empty for single-file releases, which disables
	// diffing against and from this release.
	ManifestBlobURL string `json:"manifestBlobUrl,omitempty"`

	Description string `json:"description,omitempty"`
	IsDisabled  bool   `json:"isDisabled"`
	IsMandatory bool   `json:"isMandatory"`

	// Rollout is a percentage between 1 and 100, or 0 when unset. Both 0 and
	// 100 mean the package is fully released.
	Rollout int `json:"rollout,omitempty"`

	// DiffPackageMap maps an older release's packageHash to the delta blob
	// that upgrades from that release to this one. Entries are only ever
	// added, never removed.
	DiffPackageMap map[string]BlobInfo `json:"diffPackageMap,omitempty"`

	UploadTime         int64  `json:"uploadTime"`
	ReleaseMethod      string `json:"releaseMethod,omitempty"`
	OriginalLabel      string `json:"originalLabel,omitempty"`
	OriginalDeployment string `json:"originalDeployment,omitempty"`
}

// Release methods recorded on packages appended by the mutating operations.
const (
	ReleaseMethodUpload   = "Upload"
	ReleaseMethodRollback = "Rollback"
	ReleaseMethodPromote  = "Promote"
)

// Deployment is a named update channel with an opaque client-facing key and
// a chronological, append-only release history. The last element of History
// is the current release.
type Deployment struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Key     string    `json:"key"`
	History []Package `json:"history"`
}

// UpdateCheckRequest is one inbound client query, already bound from the
// transport layer. AppVersion carries the client's original string; version
// coercion happens inside the resolver so the original can be echoed back.
type UpdateCheckRequest struct {
	DeploymentKey  string `json:"deploymentKey"`
	AppVersion     string `json:"appVersion"`
	PackageHash    string `json:"packageHash"`
	Label          string `json:"label"`
	ClientUniqueID string `json:"clientUniqueId"`
	IsCompanion    bool   `json:"isCompanion"`
}

// UpdateCheckResponse is the decision served back to a client.
type UpdateCheckResponse struct {
	IsAvailable            bool   `json:"isAvailable"`
	IsMandatory            bool   `json:"isMandatory"`
	AppVersion             string `json:"appVersion"`
	Label                  string `json:"label,omitempty"`
	PackageHash            string `json:"packageHash,omitempty"`
	DownloadURL            string `json:"downloadURL,omitempty"`
	PackageSize            int64  `json:"packageSize,omitempty"`
	Description            string `json:"description,omitempty"`
	ShouldRunBinaryVersion bool   `json:"shouldRunBinaryVersion,omitempty"`
	UpdateAppVersion       bool   `json:"updateAppVersion,omitempty"`
}
