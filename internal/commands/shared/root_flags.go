package shared

import "github.com/spf13/cobra"

// BindGlobalFlags registers the persistent flags every command reads
// through the Get* accessors.
func BindGlobalFlags(cmd *cobra.Command) {
	flags := RegisterFlagPointers()
	pf := cmd.PersistentFlags()
	pf.BoolVarP(flags.Verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(flags.JSON, "json", false, "Output in JSON format")
	pf.StringVar(flags.Config, "config", "", "Config file path (default: $XDG_CONFIG_HOME/apiclient/config.yaml)")
	pf.StringVarP(flags.Profile, "profile", "p", "", "Profile to use (default: default_profile)")
	pf.StringVar(flags.Trace, "trace", "", "Export spans: stdout, otlp or otlphttp")
}
