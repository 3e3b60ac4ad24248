package lib

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustVersion is a test helper for building exact versions.
func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.StrictNewVersion(s)
	require.NoError(t, err, "Failed to parse version %q", s)
	return v
}

func TestCoerceVersion(t *testing.T) {
	cases := map[string]string{
		"2":            "2.0.0",
		"2.0":          "2.0.0",
		"2.0-beta":     "2.0.0-beta",
		"2.0+build5":   "2.0.0+build5",
		"2.0.0":        "2.0.0",
		"2.0.0-beta.1": "2.0.0-beta.1",
		"1.2.x":        "1.2.x",
		"^1.0.0":       "^1.0.0",
		"abc":          "abc",
		"":             "",
	}
	for input, want := range cases {
		assert.Equal(t, want, CoerceVersion(input), "CoerceVersion(%q)", input)
	}
}

func TestParseVersion(t *testing.T) {
	t.Run("should parse client shorthand versions", func(t *testing.T) {
		v, err := ParseVersion("2")
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", v.String())
	})

	t.Run("should reject malformed versions", func(t *testing.T) {
		_, err := ParseVersion("not-a-version")
		assert.Error(t, err)
	})
}

func TestIsSatisfyingRange(t *testing.T) {
	v100 := mustVersion(t, "1.0.0")
	v123 := mustVersion(t, "1.2.3")
	v200 := mustVersion(t, "2.0.0")

	t.Run("should match exact versions including shorthand", func(t *testing.T) {
		assert.True(t, IsSatisfyingRange("1.0.0", v100))
		assert.True(t, IsSatisfyingRange("1.0", v100))
		assert.True(t, IsSatisfyingRange("1", v100))
		assert.False(t, IsSatisfyingRange("1.0.0", v123))
	})

	t.Run("should match ranges", func(t *testing.T) {
		assert.True(t, IsSatisfyingRange("^1.0.0", v123))
		assert.False(t, IsSatisfyingRange("^1.0.0", v200))
		assert.True(t, IsSatisfyingRange("1.2.x", v123))
		assert.False(t, IsSatisfyingRange("1.2.x", v100))
		assert.True(t, IsSatisfyingRange(">=1.0.0 <2.0.0", v123))
	})

	t.Run("should reject garbage ranges and nil versions", func(t *testing.T) {
		assert.False(t, IsSatisfyingRange("garbage", v100))
		assert.False(t, IsSatisfyingRange("1.0.0", nil))
	})
}

func TestRangeFloor(t *testing.T) {
	cases := map[string]string{
		"1.2.3":           "1.2.3",
		"2":               "2.0.0",
		"^1.2.3":          "1.2.3",
		"~2.1":            "2.1.0",
		"1.2.x":           "1.2.0",
		">=1.0.0 <2.0.0":  "1.0.0",
		">=3.0.0 <=4.0.0": "3.0.0",
	}
	for input, want := range cases {
		floor := RangeFloor(input)
		require.NotNil(t, floor, "RangeFloor(%q) returned nil", input)
		assert.Equal(t, want, floor.String(), "RangeFloor(%q)", input)
	}

	assert.Nil(t, RangeFloor("garbage"), "A string with no version literal has no floor")
}

func TestIsOlderThanRange(t *testing.T) {
	v100 := mustVersion(t, "1.0.0")
	v300 := mustVersion(t, "3.0.0")

	assert.True(t, IsOlderThanRange(v100, "2.0.0"))
	assert.True(t, IsOlderThanRange(v100, "^2.0.0"))
	assert.False(t, IsOlderThanRange(v300, "2.0.0"), "A newer binary is not older than the range")
	assert.False(t, IsOlderThanRange(v100, "1.0.0"), "An equal version is not older")
	assert.False(t, IsOlderThanRange(nil, "2.0.0"))
}
