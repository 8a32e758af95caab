package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bridge bearer token in the credential store",
	}

	cmd.AddCommand(newTokenSetCmd(app), newTokenClearCmd(app))
	return cmd
}

func newTokenSetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the bridge token read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read bridge token: %w", err)
			}
			token := strings.TrimSpace(line)
			if token == "" {
				return errors.New("bridge token is empty")
			}

			store, err := app.credentials()
			if err != nil {
				return fmt.Errorf("open credential store: %w", err)
			}
			if err := store.Put(cmd.Context(), app.cfg.Bridge.TokenKey, token); err != nil {
				return fmt.Errorf("store bridge token: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "bridge token stored under %s\n", app.cfg.Bridge.TokenKey)
			return err
		},
	}
}

func newTokenClearCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored bridge token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.credentials()
			if err != nil {
				return fmt.Errorf("open credential store: %w", err)
			}
			if err := store.Delete(cmd.Context(), app.cfg.Bridge.TokenKey); err != nil {
				return fmt.Errorf("clear bridge token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "bridge token cleared")
			return err
		},
	}
}
