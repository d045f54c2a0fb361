// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

// Global flag values - set by root command
var (
	verboseFlag bool
	jsonFlag    bool
	configFlag  string
	profileFlag string
	traceFlag   string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags holds pointers to the global flag variables for binding.
type Flags struct {
	Verbose *bool
	JSON    *bool
	Config  *string
	Profile *string
	Trace   *string
}

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() Flags {
	return Flags{
		Verbose: &verboseFlag,
		JSON:    &jsonFlag,
		Config:  &configFlag,
		Profile: &profileFlag,
		Trace:   &traceFlag,
	}
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verboseFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return configFlag
}

// GetProfile returns the selected profile name
func GetProfile() string {
	return profileFlag
}

// GetTraceExporter returns the span exporter selected with --trace
func GetTraceExporter() string {
	return traceFlag
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ResetFlagsForTest restores every global flag to its zero value.
func ResetFlagsForTest() {
	verboseFlag = false
	jsonFlag = false
	configFlag = ""
	profileFlag = ""
	traceFlag = ""
}
