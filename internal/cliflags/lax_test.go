package cliflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterKeepsKnownFlagsAndPositionals(t *testing.T) {
	known := Known{"port": true, "enable-error-message-delivery": false}
	got := Filter([]string{"--port", "69", "host", "get", "a", "b"}, known)
	assert.Equal(t, []string{"--port", "69", "host", "get", "a", "b"}, got)
}

func TestFilterDropsUnknownFlagButLeavesFollowingTokenAlone(t *testing.T) {
	known := Known{"port": true}
	got := Filter([]string{"--bogus", "--port", "69", "host"}, known)
	assert.Equal(t, []string{"--port", "69", "host"}, got)
}

func TestFilterDropsUnknownBooleanFlagWithoutEatingPositional(t *testing.T) {
	known := Known{}
	got := Filter([]string{"--weird", "host"}, known)
	assert.Equal(t, []string{"host"}, got)
}

func TestFilterHandlesEqualsForm(t *testing.T) {
	known := Known{"timeout": true}
	got := Filter([]string{"--timeout=2000", "host"}, known)
	assert.Equal(t, []string{"--timeout=2000", "host"}, got)
}
