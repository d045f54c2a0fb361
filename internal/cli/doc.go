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

/*
Package cli provides the root command for the apiclient CLI.

This package creates the Cobra command tree and handles global concerns like
version information, persistent flags, and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	apiclient
	├── request   Send a request through a profile
	├── token     Fetch, show or revoke the OAuth2 token
	├── storage   Inspect and maintain token storage
	├── version   Show version
	└── help      Show help (--json for machine-readable output)

# Global Flags

	--verbose, -v    Enable debug logging
	--json           Output in JSON format
	--config         Path to config file
	--profile, -p    Profile to use
	--trace          Export spans (stdout, otlp, otlphttp)

# Error Handling

Errors carry exit codes through shared.ExitError:

  - Exit 0: Success
  - Exit 1: Request failed
  - Exit 2: Configuration error
  - Exit 3: Authentication failed
  - Exit 4: HTTP error status
  - Exit 5: Transport failure

From main.go:

	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
