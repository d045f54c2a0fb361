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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/apiclient/internal/commands/shared"
)

// CommandMetadata describes a command in JSON help output.
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Examples    string         `json:"examples,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
}

// FlagMetadata describes a flag in JSON help output.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// HelpResponse is the JSON response for the help command.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata `json:"commands,omitempty"`
	Command     *CommandMetadata  `json:"target,omitempty"`
	GlobalFlags []FlagMetadata    `json:"global_flags,omitempty"`
}

// NewHelpCommand creates a help command that also understands --json.
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.

Run 'apiclient help <command>' for a specific command. With --json the
command tree is printed in machine-readable form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), allCommands(rootCmd))
				}
				return rootCmd.Help()
			}

			target, _, err := rootCmd.Find(args)
			if err != nil || target == rootCmd {
				return fmt.Errorf("command %q not found", args[0])
			}
			if !shared.GetJSON() {
				return target.Help()
			}

			meta := commandMetadata(target)
			resp := HelpResponse{
				JSONResponse: shared.NewJSONResponse("help " + target.Name()),
				Command:      &meta,
				GlobalFlags:  visibleFlags(rootCmd.PersistentFlags()),
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func allCommands(rootCmd *cobra.Command) HelpResponse {
	var commands []CommandMetadata
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		commands = append(commands, commandMetadata(c))
	}
	return HelpResponse{
		JSONResponse: shared.NewJSONResponse("help"),
		Commands:     commands,
		GlobalFlags:  visibleFlags(rootCmd.PersistentFlags()),
	}
}

func commandMetadata(cmd *cobra.Command) CommandMetadata {
	meta := CommandMetadata{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Examples: cmd.Example,
		Aliases:  cmd.Aliases,
		Flags:    visibleFlags(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			meta.Subcommands = append(meta.Subcommands, sub.Name())
		}
	}
	return meta
}

func visibleFlags(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		flags = append(flags, FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		})
	})
	return flags
}
