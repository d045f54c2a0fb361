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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/apiclient/internal/commands/request"
	"github.com/tombee/apiclient/internal/commands/shared"
	storagecmd "github.com/tombee/apiclient/internal/commands/storage"
	"github.com/tombee/apiclient/internal/commands/token"
	"github.com/tombee/apiclient/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for apiclient
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apiclient",
		Short: "apiclient - authenticated, rate-limited HTTP requests",
		Long: `apiclient sends HTTP requests through named profiles. Each profile
configures a base URL, an authentication strategy, retries with backoff,
rate limiting and a circuit breaker.

Profiles live in ~/.config/apiclient/config.yaml by default. OAuth2 tokens
are cached in the profile's token storage and refreshed automatically.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	shared.BindGlobalFlags(cmd)

	cmd.AddCommand(
		request.NewCommand(),
		token.NewCommand(),
		storagecmd.NewCommand(),
		version.NewCommand(),
	)
	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
