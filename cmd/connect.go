package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet through the direct-link modal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			connection := rt.coordinator.Connection
			connectWallet := func(ctx context.Context) (string, error) {
				if err := connection.ConnectViaDirectLink(ctx); err != nil {
					return "", err
				}
				if identity, ok := connection.DirectLink(); ok {
					return "wallet linked on " + identity.ChainID, nil
				}
				return "", nil
			}
			if _, err := runBridgeCallSpinner(cmd.Context(), cmd.ErrOrStderr(), "Waiting for wallet...", connectWallet); err != nil {
				return err
			}

			identity, ok := connection.DirectLink()
			if !ok {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "connection cancelled")
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", identity)
			return err
		},
	}
}
