package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_NamesProgramAndBuild(t *testing.T) {
	// Given: injected build values
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })
	Version, Commit = "1.2.3", "abc123"

	// When: formatting
	s := String()

	// Then: all parts appear
	assert.Contains(t, s, "ragdoc 1.2.3")
	assert.Contains(t, s, "commit: abc123")
	assert.Contains(t, s, runtime.Version())
}

func TestGetInfo_JSON(t *testing.T) {
	info := GetInfo()

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, Version, m["version"])
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, m["platform"])
	assert.Contains(t, m, "go_version")
}
