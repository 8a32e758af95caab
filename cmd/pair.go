package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPairCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair a wallet through a pairing URI",
	}

	cmd.AddCommand(newPairGenerateCmd(app), newPairApproveCmd(app))

	return cmd
}

func newPairGenerateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Request a pairing URI to show as a QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			uri, err := runBridgeCallSpinner(cmd.Context(), cmd.ErrOrStderr(), "Requesting pairing URI...", rt.coordinator.Pairing.Generate)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), uri)
			return err
		},
	}
}

func newPairApproveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <uri>",
		Short: "Pair with a URI scanned or pasted from a dapp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.coordinator.Connection.ConnectViaPairingURI(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("pair: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "pairing approved; run `wsync session sync` once the wallet settles")
			return err
		},
	}
}
