package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBuildTime(t *testing.T) {
	orig := BuildTime
	defer func() { BuildTime = orig }()

	BuildTime = "unknown"
	assert.Equal(t, "unknown", formatBuildTime())

	BuildTime = "2024-05-01T12:30:45Z"
	assert.Equal(t, "Wed May 1 12:30:45 2024", formatBuildTime())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", formatBuildTime())
}

func TestUserAgent(t *testing.T) {
	assert.Contains(t, UserAgent(), "go2ctl/"+Version)
}
