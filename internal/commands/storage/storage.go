// Package storage implements the 'apiclient storage' commands.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/apiclient/internal/commands/shared"
	"github.com/tombee/apiclient/internal/config"
	"github.com/tombee/apiclient/pkg/storage"
)

// KeysResult is the JSON output of 'storage list'.
type KeysResult struct {
	shared.JSONResponse
	Profile string   `json:"profile"`
	Backend string   `json:"backend"`
	Keys    []string `json:"keys"`
}

// NewCommand creates the storage command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and maintain token storage",
		Long: `Inspect and maintain the token storage configured for a profile.

Commands operate on the selected profile's storage section, whatever its
authentication type.`,
	}
	cmd.AddCommand(newListCommand(), newClearCommand(), newRotatePasswordCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored token keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(env *shared.Env, store storage.TokenStorage) error {
				lister, ok := store.(storage.Lister)
				if !ok {
					return shared.NewConfigError(fmt.Sprintf("storage type %q cannot list keys", backend(env)), nil)
				}
				keys, err := lister.Keys(cmd.Context())
				if err != nil {
					return shared.NewRequestError("failed to list keys", err)
				}
				sort.Strings(keys)

				if shared.GetJSON() {
					if keys == nil {
						keys = []string{}
					}
					return shared.EmitJSON(cmd.OutOrStdout(), KeysResult{
						JSONResponse: shared.NewJSONResponse("storage list"),
						Profile:      env.ProfileName,
						Backend:      backend(env),
						Keys:         keys,
					})
				}
				if len(keys) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stored tokens")
					return nil
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func newClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear [key]",
		Short: "Delete one stored token, or all of them",
		Long: `Delete the token stored under key. Without a key every token owned by
the storage is removed, which requires --yes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !yes {
				return shared.NewConfigError("refusing to clear all tokens without --yes", nil)
			}
			return withStorage(cmd, func(env *shared.Env, store storage.TokenStorage) error {
				if len(args) == 1 {
					if err := store.Delete(cmd.Context(), args[0]); err != nil {
						return shared.NewRequestError("failed to delete token", err)
					}
					return done(cmd, "storage clear", fmt.Sprintf("Deleted %s", args[0]))
				}
				if err := store.ClearAll(cmd.Context()); err != nil {
					return shared.NewRequestError("failed to clear storage", err)
				}
				return done(cmd, "storage clear", fmt.Sprintf("Cleared %s storage", backend(env)))
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing every token")
	return cmd
}

func newRotatePasswordCommand() *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "rotate-password",
		Short: "Re-encrypt the token file under a new password",
		Long: `Re-encrypt an encrypted_file storage under a new password.

The new password is prompted for twice on a terminal. Use --password-stdin
to read it from the first line of standard input. Update the profile's
storage.password afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(env *shared.Env, store storage.TokenStorage) error {
				file, ok := store.(*storage.EncryptedFileStorage)
				if !ok {
					return shared.NewConfigError(fmt.Sprintf("storage type %q has no password", backend(env)), nil)
				}

				var (
					password string
					err      error
				)
				if fromStdin {
					password, err = readLine(cmd.InOrStdin())
				} else {
					password, err = promptPassword(cmd.ErrOrStderr())
				}
				if err != nil {
					return shared.NewConfigError("failed to read new password", err)
				}
				if password == "" {
					return shared.NewConfigError("new password must not be empty", nil)
				}

				if err := file.ChangePassword(cmd.Context(), password); err != nil {
					return shared.NewRequestError("failed to change password", err)
				}
				return done(cmd, "storage rotate-password", "Re-encrypted "+file.Path())
			})
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "Read the new password from stdin")
	return cmd
}

func withStorage(cmd *cobra.Command, fn func(*shared.Env, storage.TokenStorage) error) error {
	env, err := shared.LoadEnv(cmd)
	if err != nil {
		return err
	}
	store, err := config.BuildStorage(env.Profile.Storage, env.Logger)
	if err != nil {
		return shared.NewConfigError("failed to open token storage", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	return fn(env, store)
}

func backend(env *shared.Env) string {
	if env.Profile.Storage.Type == "" {
		return config.StorageMemory
	}
	return env.Profile.Storage.Type
}

func done(cmd *cobra.Command, command, msg string) error {
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Message string `json:"message"`
		}{shared.NewJSONResponse(command), msg})
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin")
	}

	fmt.Fprint(prompt, "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
