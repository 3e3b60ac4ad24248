package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSelectedForRollout(t *testing.T) {
	t.Run("should be idempotent for a fixed client and release tag", func(t *testing.T) {
		clients := []string{"insider", "holdout", "clientA", "client-1", ""}
		for _, client := range clients {
			first := IsSelectedForRollout(client, 37, "v2")
			second := IsSelectedForRollout(client, 37, "v2")
			assert.Equal(t, first, second, "Selection for %q changed between calls", client)
		}
	})

	t.Run("should select every client at 100 percent", func(t *testing.T) {
		for _, client := range []string{"insider", "holdout", "clientA", "client-1"} {
			assert.True(t, IsSelectedForRollout(client, 100, "v2"), "Client %q not selected at 100%%", client)
		}
	})

	t.Run("should select no client at 0 percent", func(t *testing.T) {
		for _, client := range []string{"insider", "holdout", "clientA", "client-1"} {
			assert.False(t, IsSelectedForRollout(client, 0, "v2"), "Client %q selected at 0%%", client)
		}
	})

	t.Run("should bucket known clients deterministically", func(t *testing.T) {
		// "insider-v2" hashes to bucket 5, "holdout-v2" to bucket 50.
		assert.True(t, IsSelectedForRollout("insider", 50, "v2"), "Bucket 5 should fall inside a 50%% rollout")
		assert.False(t, IsSelectedForRollout("holdout", 50, "v2"), "Bucket 50 should fall outside a 50%% rollout")

		// The boundary is exclusive: bucket 5 needs a rollout of at least 6.
		assert.False(t, IsSelectedForRollout("insider", 5, "v2"))
		assert.True(t, IsSelectedForRollout("insider", 6, "v2"))
	})

	t.Run("should bucket differently for different release tags", func(t *testing.T) {
		// Same client, different tags: "clientA-v2" is bucket 27, "clientA-abc123" is bucket 67.
		assert.True(t, IsSelectedForRollout("clientA", 30, "v2"))
		assert.False(t, IsSelectedForRollout("clientA", 30, "abc123"))
	})
}

func TestIsUnfinishedRollout(t *testing.T) {
	assert.False(t, IsUnfinishedRollout(0), "Unset rollout is fully released")
	assert.False(t, IsUnfinishedRollout(100), "100 is fully released")
	assert.True(t, IsUnfinishedRollout(1))
	assert.True(t, IsUnfinishedRollout(50))
	assert.True(t, IsUnfinishedRollout(99))
}
