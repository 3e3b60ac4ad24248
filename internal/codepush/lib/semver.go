package lib

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CoerceVersion normalizes the loose version strings mobile clients send
// into full three-component semantic versions:
//
//	"2"        -> "2.0.0"
//	"2.0"      -> "2.0.0"
//	"2.0-beta" -> "2.0.0-beta"
//
// Strings that are already complete, or that do not look like a bare numeric
// version (e.g. ranges such as "1.2.x"), are returned unchanged.
func CoerceVersion(version string) string {
	base, tag := version, ""
	if i := strings.IndexAny(version, "-+"); i != -1 {
		base, tag = version[:i], version[i:]
	}

	parts := strings.Split(base, ".")
	for _, part := range parts {
		if !isDigits(part) {
			return version
		}
	}

	switch len(parts) {
	case 1:
		return base + ".0.0" + tag
	case 2:
		return base + ".0" + tag
	default:
		return version
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseVersion parses an exact semantic version after coercion. Client
// version strings are attacker-controlled, so callers must treat a parse
// failure as "no update" rather than an error condition.
func ParseVersion(version string) (*semver.Version, error) {
	return semver.StrictNewVersion(CoerceVersion(version))
}

// IsSatisfyingRange reports whether an exact binary version falls inside a
// release's app version, which may itself be an exact version or a semver
// range such as "^1.2.0" or "1.2.x". The matching is asymmetric: the left
// side may be a range, the right side never is.
func IsSatisfyingRange(rangeOrVersion string, version *semver.Version) bool {
	if version == nil {
		return false
	}
	if exact, err := semver.StrictNewVersion(CoerceVersion(rangeOrVersion)); err == nil {
		return exact.Equal(version)
	}
	constraint, err := semver.NewConstraint(rangeOrVersion)
	if err != nil {
		return false
	}
	return constraint.Check(version)
}

// RangeFloor returns the lowest version literal mentioned in a version or
// range string, or nil when no version can be extracted. "^1.2.3" -> 1.2.3,
// ">=1.0.0 <2.0.0" -> 1.0.0, "1.2.x" -> 1.2.0.
func RangeFloor(rangeOrVersion string) *semver.Version {
	var floor *semver.Version
	tokens := strings.FieldsFunc(rangeOrVersion, func(r rune) bool {
		return r == ' ' || r == ',' || r == '|'
	})
	for _, token := range tokens {
		token = strings.TrimLeft(token, "^~><=v")
		token = strings.NewReplacer(".x", ".0", ".X", ".0", ".*", ".0").Replace(token)
		if token == "" {
			continue
		}
		v, err := semver.StrictNewVersion(CoerceVersion(token))
		if err != nil {
			continue
		}
		if floor == nil || v.LessThan(floor) {
			floor = v
		}
	}
	return floor
}

// IsOlderThanRange reports whether version precedes every version allowed by
// rangeOrVersion. Used to tell a client that a binary update (not a bundle
// update) is what it actually needs.
func IsOlderThanRange(version *semver.Version, rangeOrVersion string) bool {
	floor := RangeFloor(rangeOrVersion)
	return version != nil && floor != nil && version.LessThan(floor)
}
