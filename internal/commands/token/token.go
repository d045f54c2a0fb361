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

// Package token implements the 'apiclient token' commands for OAuth2
// profiles.
package token

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/apiclient/internal/commands/shared"
	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/pkg/auth"
)

// Info describes the cached token of a profile.
type Info struct {
	shared.JSONResponse
	Profile     string     `json:"profile"`
	State       string     `json:"state"`
	StorageKey  string     `json:"storage_key"`
	TokenType   string     `json:"token_type,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	Scope       string     `json:"scope,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ExpiresIn   int64      `json:"expires_in,omitempty"`
}

// NewCommand creates the token command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the OAuth2 token of a profile",
		Long: `Fetch, inspect or revoke the access token of an oauth2 profile.

Tokens are cached in the profile's token storage. 'show' reads the cache
without contacting the token endpoint.`,
	}

	cmd.AddCommand(newFetchCommand(), newShowCommand(), newRevokeCommand())
	return cmd
}

func newFetchCommand() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Exchange client credentials for a new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd, "token fetch", func(env *shared.Env, flow *auth.OAuth2Flow) error {
				if err := flow.ForceRefresh(cmd.Context()); err != nil {
					return shared.NewRequestError("token exchange failed", err)
				}
				return printInfo(cmd.OutOrStdout(), newInfo("token fetch", env.ProfileName, flow, reveal))
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the full access token")
	return cmd
}

func newShowCommand() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd, "token show", func(env *shared.Env, flow *auth.OAuth2Flow) error {
				return printInfo(cmd.OutOrStdout(), newInfo("token show", env.ProfileName, flow, reveal))
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the full access token")
	return cmd
}

func newRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Forget the cached token and delete it from storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlow(cmd, "token revoke", func(env *shared.Env, flow *auth.OAuth2Flow) error {
				if err := flow.Revoke(cmd.Context()); err != nil {
					return shared.NewRequestError("failed to revoke token", err)
				}
				return printInfo(cmd.OutOrStdout(), newInfo("token revoke", env.ProfileName, flow, false))
			})
		},
	}
}

func withFlow(cmd *cobra.Command, command string, fn func(*shared.Env, *auth.OAuth2Flow) error) error {
	env, err := shared.BuildEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	flow, ok := env.Components.OAuth2()
	if !ok {
		return shared.NewConfigError(fmt.Sprintf("profile %q does not use oauth2 authentication", env.ProfileName), nil)
	}

	err = fn(env, flow)
	if err != nil && shared.GetJSON() {
		_ = shared.EmitJSONError(cmd.OutOrStdout(), command, err)
	}
	return err
}

func newInfo(command, profile string, flow *auth.OAuth2Flow, reveal bool) Info {
	info := Info{
		JSONResponse: shared.NewJSONResponse(command),
		Profile:      profile,
		State:        flow.State().String(),
		StorageKey:   flow.StorageKey(),
	}

	tok := flow.Token()
	if tok == nil {
		return info
	}
	info.TokenType = tok.TokenType
	info.Scope = tok.Scope
	info.AccessToken = log.SanitizeToken(tok.AccessToken)
	if reveal {
		info.AccessToken = tok.AccessToken
	}
	if expiry := flow.Expiry(); !expiry.IsZero() {
		utc := expiry.UTC()
		info.ExpiresAt = &utc
		if left := time.Until(expiry); left > 0 {
			info.ExpiresIn = int64(left.Seconds())
		}
	}
	return info
}

func printInfo(w io.Writer, info Info) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, info)
	}

	fmt.Fprintf(w, "Profile:     %s\n", info.Profile)
	fmt.Fprintf(w, "State:       %s\n", info.State)
	fmt.Fprintf(w, "Storage key: %s\n", info.StorageKey)
	if info.AccessToken == "" {
		return nil
	}
	fmt.Fprintf(w, "Token:       %s %s\n", info.TokenType, info.AccessToken)
	if info.Scope != "" {
		fmt.Fprintf(w, "Scope:       %s\n", info.Scope)
	}
	if info.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:     %s (in %s)\n", info.ExpiresAt.Format(time.RFC3339), time.Duration(info.ExpiresIn)*time.Second)
	}
	return nil
}
