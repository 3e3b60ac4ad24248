package lib

// IsSelectedForRollout decides deterministically whether a client falls
// inside a percentage rollout. The bucket is a signed 32-bit polynomial
// rolling hash of "clientUniqueID-releaseTag", so the same client and
// release tag always land in the same bucket, independent of call order or
// process restarts. A rollout of 100 selects everyone; a rollout of 0
// selects no one.
func IsSelectedForRollout(clientUniqueID string, rollout int, releaseTag string) bool {
	if rollout >= 100 {
		return true
	}

	identifier := clientUniqueID + "-" + releaseTag
	var hash int32
	for _, r := range identifier {
		hash = hash*31 + int32(r)
	}

	bucket := hash % 100
	if bucket < 0 {
		bucket = -bucket
	}
	return int(bucket) < rollout
}

// IsUnfinishedRollout reports whether a rollout value denotes a partially
// released package. 0 (unset) and 100 both mean fully released.
func IsUnfinishedRollout(rollout int) bool {
	return rollout != 0 && rollout != 100
}
