package cmd

import (
	"fmt"

	"github.com/bnema/walletsync/internal/adapters/scenario"
	"github.com/spf13/cobra"
)

func newReplayCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scripted scenario on virtual time",
		Long:  "replay runs a YAML scenario of session events and transaction transitions against an in-memory coordinator and checks its expectations. No bridge or Redis is contacted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			result, err := scenario.NewRunner(app.logger, nil).Run(cmd.Context(), sc)
			if err != nil {
				return fmt.Errorf("replay scenario: %w", err)
			}

			if asJSON {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else if err := writeReplaySummary(cmd, result); err != nil {
				return err
			}

			if !result.Passed() {
				return fmt.Errorf("scenario %q: %d expectation(s) not met", result.Name, len(result.Mismatches))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeReplaySummary(cmd *cobra.Command, result scenario.Result) error {
	out := cmd.OutOrStdout()
	lines := []string{fmt.Sprintf("scenario: %s", result.Name)}
	for _, entry := range result.Entries {
		line := fmt.Sprintf("  +%-8s %-14s %s", entry.At, entry.Action, entry.Detail)
		if entry.Error != "" {
			line += " (error: " + entry.Error + ")"
		}
		lines = append(lines, line)
	}
	lines = append(lines,
		fmt.Sprintf("generation: %d", result.Generation),
		fmt.Sprintf("confirmed: %d  failed: %d  pending: %d", result.Confirmed, result.Failed, len(result.Pending)),
		fmt.Sprintf("sessions: %d  active: %s", len(result.Sessions), orNone(result.Active)),
	)
	for _, mismatch := range result.Mismatches {
		lines = append(lines, "MISMATCH "+mismatch)
	}
	if result.Passed() {
		lines = append(lines, "ok")
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
