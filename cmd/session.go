package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sessionsadapter "github.com/bnema/walletsync/internal/adapters/render/sessions"
	"github.com/bnema/walletsync/internal/application"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/spf13/cobra"
)

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and maintain wallet sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(app),
		newSessionSyncCmd(app),
		newSessionSweepCmd(app),
		newSessionDisconnectAllCmd(app),
		newSessionUseCmd(app),
	)

	return cmd
}

type sessionJSON struct {
	Topic    string    `json:"topic"`
	Peer     string    `json:"peer"`
	Address  string    `json:"address,omitempty"`
	ChainID  string    `json:"chain_id,omitempty"`
	Expiry   time.Time `json:"expiry"`
	Expired  bool      `json:"expired"`
	IsActive bool      `json:"active"`
}

type sessionListJSON struct {
	Cursor   int64         `json:"cursor"`
	Sessions []sessionJSON `json:"sessions"`
}

func newSessionListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known wallet sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			store := rt.coordinator.Sessions
			sessions := store.ListSessions()
			active, _ := store.Active()

			if asJSON {
				return writeJSON(cmd, sessionsToJSON(store, sessions, active.Topic))
			}

			rendered, err := app.sessionsRender(sessionsadapter.Overview{
				Sessions:   sessions,
				Active:     active.Topic,
				Connection: rt.coordinator.Connection.View(),
			}, sessionsadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render sessions: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func sessionsToJSON(store *application.SessionStore, sessions []domain.Session, active domain.Topic) sessionListJSON {
	out := sessionListJSON{Cursor: store.Cursor(), Sessions: make([]sessionJSON, 0, len(sessions))}
	for _, session := range sessions {
		entry := sessionJSON{
			Topic:    string(session.Topic),
			Peer:     session.Peer.Name,
			Expiry:   session.Expiry.UTC(),
			Expired:  store.IsExpired(session),
			IsActive: session.Topic == active,
		}
		if identity, ok := session.Identity(); ok {
			entry.Address = identity.Address
			entry.ChainID = identity.ChainID
		}
		out.Sessions = append(out.Sessions, entry)
	}
	return out
}

func newSessionSyncCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Apply new session events from the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			applied, err := rt.housekeeper.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d session events (cursor %d)\n", applied, rt.coordinator.Sessions.Cursor())
			return err
		},
	}
}

func newSessionSweepCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Disconnect sessions past their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.housekeeper.SweepOnce(cmd.Context())
			if writeErr := writeDisconnectReport(cmd, "expired", report); writeErr != nil {
				return errors.Join(err, writeErr)
			}
			return err
		},
	}
}

func newSessionDisconnectAllCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect-all",
		Short: "Disconnect every known session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.coordinator.Connection.DisconnectAll(cmd.Context())
			if saveErr := rt.housekeeper.Save(cmd.Context()); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
			if writeErr := writeDisconnectReport(cmd, "all", report); writeErr != nil {
				return errors.Join(err, writeErr)
			}
			return err
		},
	}
}

func newSessionUseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <topic>",
		Short: "Make a known session the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.openRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			topic := domain.Topic(args[0])
			if err := rt.coordinator.Sessions.SetActive(topic); err != nil {
				return fmt.Errorf("use session %s: %w", topic, err)
			}
			if err := rt.housekeeper.Save(cmd.Context()); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "active session: %s\n", topic)
			return err
		},
	}
}

func writeDisconnectReport(cmd *cobra.Command, batch string, report application.DisconnectReport) error {
	out := cmd.OutOrStdout()
	if len(report.Results) == 0 {
		_, err := fmt.Fprintf(out, "no sessions to disconnect (%s)\n", batch)
		return err
	}

	for _, result := range report.Results {
		status := "disconnected"
		if result.Err != nil {
			status = "failed: " + result.Err.Error()
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", result.Topic, status); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(out, "%d disconnected, %d failed\n", len(report.Succeeded()), len(report.Failed()))
	return err
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
