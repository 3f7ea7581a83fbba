package agentversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "dev", Version())
	assert.Contains(t, String(), "version: dev,")

	version, commit = "v0.1.0", "abc123"
	defer func() { version, commit = "", "" }()
	assert.Equal(t, "v0.1.0", Version())
	assert.Equal(t, "abc123", GitCommit())
	assert.Contains(t, String(), "version: v0.1.0, commit: abc123,")
}
