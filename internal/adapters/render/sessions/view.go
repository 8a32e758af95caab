package sessions

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bnema/walletsync/internal/application"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Overview is everything the session listing shows.
type Overview struct {
	Sessions   []domain.Session
	Active     domain.Topic
	Connection application.ConnectionView
}

type RenderOptions struct {
	Now time.Time
}

func renderView(overview Overview, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Wallet Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(overview.Sessions))),
		connectionLine(overview.Connection, s),
	}

	if len(overview.Sessions) == 0 {
		lines = append(lines, s.empty.Render("No wallet sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, session := range overview.Sessions {
		lines = append(lines, s.section.Render(renderSession(session, session.Topic == overview.Active, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func connectionLine(view application.ConnectionView, s styles) string {
	if !view.Connected() {
		return s.muted.Render("wallet: disconnected")
	}

	via := "session"
	if view.DirectLink {
		via = "direct link"
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.fieldKey.Render("wallet:"),
		" ",
		s.ok.Render(identityLabel(view.Identity)),
		" ",
		s.muted.Render(fmt.Sprintf("(%s)", via)),
	)
}

func renderSession(session domain.Session, active bool, opts RenderOptions, s styles) string {
	title := s.peer.Render(peerLabel(session))
	if active {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", s.active.Render("[active]"))
	}

	parts := []string{
		title,
		s.detail.Render("topic: " + shortTopic(session.Topic)),
	}

	if identity, ok := session.Identity(); ok {
		parts = append(parts, s.detail.Render("account: "+identityLabel(identity)))
	}
	if chains := chainList(session); chains != "" {
		parts = append(parts, s.detail.Render("chains: "+chains))
	}

	parts = append(parts, expiryLine(session, opts.Now, s))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func expiryLine(session domain.Session, now time.Time, s styles) string {
	if now.IsZero() {
		return s.muted.Render("expires " + session.Expiry.UTC().Format(time.RFC3339))
	}
	if session.IsExpired(now) {
		return s.warning.Render("expired")
	}

	return s.muted.Render(formatExpiryRelative(session.Expiry, now))
}

func formatExpiryRelative(expiry, now time.Time) string {
	remaining := expiry.Sub(now)
	if remaining < time.Hour {
		minutes := int(math.Ceil(remaining.Minutes()))
		return fmt.Sprintf("expires in %d %s", minutes, plural(minutes, "minute"))
	}
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		return fmt.Sprintf("expires in %d %s (%s)", hours, plural(hours, "hour"), expiry.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	return fmt.Sprintf("expires in %d %s (%s)", days, plural(days, "day"), expiry.Format("15:04 on 02 Jan"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func peerLabel(session domain.Session) string {
	name := strings.TrimSpace(session.Peer.Name)
	if name == "" {
		return "unknown wallet"
	}
	return name
}

func identityLabel(identity domain.WalletIdentity) string {
	if identity.ChainID == "" {
		return identity.Address
	}
	return identity.Address + " @ " + identity.ChainID
}

func chainList(session domain.Session) string {
	seen := make(map[string]struct{})
	chains := make([]string, 0)
	for _, ns := range session.Namespaces {
		for _, chain := range ns.Chains {
			if _, ok := seen[chain]; ok {
				continue
			}
			seen[chain] = struct{}{}
			chains = append(chains, chain)
		}
	}
	sort.Strings(chains)
	return strings.Join(chains, ", ")
}

func shortTopic(topic domain.Topic) string {
	value := string(topic)
	if len(value) <= 16 {
		return value
	}
	return value[:8] + "…" + value[len(value)-6:]
}
