package version

import (
	"bytes"
	"encoding/json"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiclient/internal/commands/shared"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := &cobra.Command{Use: "apiclient", SilenceUsage: true, SilenceErrors: true}
	shared.BindGlobalFlags(root)
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func setRelease(t *testing.T, v, c, b string) {
	t.Helper()
	shared.SetVersion(v, c, b)
	t.Cleanup(func() { shared.SetVersion("dev", "unknown", "unknown") })
}

func TestVersionOutput(t *testing.T) {
	setRelease(t, "1.4.0", "abc1234", "2025-12-22")

	out := execute(t, "version")
	assert.Contains(t, out, "apiclient 1.4.0\n")
	assert.Contains(t, out, "  commit:  abc1234")
	assert.Contains(t, out, "  built:   2025-12-22\n")
	assert.Contains(t, out, runtime.Version())

	assert.Equal(t, "1.4.0\n", execute(t, "version", "--short"))
}

func TestVersionJSON(t *testing.T) {
	setRelease(t, "1.4.0", "abc1234", "2025-12-22")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(execute(t, "--json", "version")), &info))
	assert.True(t, info.Success)
	assert.Equal(t, "version", info.Command)
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestCollect(t *testing.T) {
	stamped := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/tombee/apiclient", Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "f00dbabe"},
			{Key: "vcs.time", Value: "2025-11-02T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name     string
		release  [3]string
		bi       *debug.BuildInfo
		version  string
		commit   string
		built    string
		modified bool
	}{
		{
			name:    "no build info",
			release: [3]string{"dev", "unknown", "unknown"},
			version: "dev", commit: "unknown", built: "unknown",
		},
		{
			name:    "vcs stamp fills the gaps",
			release: [3]string{"dev", "unknown", "unknown"},
			bi:      stamped,
			version: "v0.3.1", commit: "f00dbabe", built: "2025-11-02T10:00:00Z", modified: true,
		},
		{
			name:    "release flags win",
			release: [3]string{"1.4.0", "abc1234", "2025-12-22"},
			bi:      stamped,
			version: "1.4.0", commit: "abc1234", built: "2025-12-22", modified: true,
		},
		{
			name:    "devel main module keeps dev",
			release: [3]string{"dev", "unknown", "unknown"},
			bi:      &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			version: "dev", commit: "unknown", built: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRelease(t, tt.release[0], tt.release[1], tt.release[2])
			info := collect(tt.bi)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.commit, info.Commit)
			assert.Equal(t, tt.built, info.BuildDate)
			assert.Equal(t, tt.modified, info.Modified)
		})
	}
}
