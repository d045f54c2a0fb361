// Package version implements 'apiclient version'.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/tombee/apiclient/internal/commands/shared"
)

// Info is the JSON output of 'version'.
type Info struct {
	shared.JSONResponse
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

// NewCommand creates the version command.
func NewCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Print the apiclient release, the commit it was built from and the Go
runtime. Binaries built without release flags fall back to the VCS stamp
recorded by the Go toolchain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				bi = nil
			}
			info := collect(bi)

			out := cmd.OutOrStdout()
			switch {
			case shared.GetJSON():
				return shared.EmitJSON(out, info)
			case short:
				fmt.Fprintln(out, info.Version)
			default:
				commit := info.Commit
				if info.Modified {
					commit += " (modified)"
				}
				fmt.Fprintf(out, "apiclient %s\n", info.Version)
				fmt.Fprintf(out, "  commit:  %s\n", commit)
				fmt.Fprintf(out, "  built:   %s\n", info.BuildDate)
				fmt.Fprintf(out, "  runtime: %s %s\n", info.GoVersion, info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

// collect merges the linker-provided version with the build info stamp.
// Values set through shared.SetVersion win.
func collect(bi *debug.BuildInfo) Info {
	v, c, b := shared.GetVersion()
	info := Info{
		JSONResponse: shared.NewJSONResponse("version"),
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
