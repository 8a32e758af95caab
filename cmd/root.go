package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "wsync",
		Short:         "walletsync (wsync): wallet session and transaction coordination",
		Long:          "wsync drives the walletsync coordination layer from the terminal: it keeps the local session view in sync with a wallet-connection bridge, sweeps expired sessions, runs pairing and direct-link flows, and replays scripted scenarios offline.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.configureLogging(cmd.ErrOrStderr(), verbose)
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newSessionCmd(app),
		newPairCmd(app),
		newConnectCmd(app),
		newReplayCmd(app),
		newServeCmd(app),
		newTokenCmd(app),
	)

	return rootCmd
}
