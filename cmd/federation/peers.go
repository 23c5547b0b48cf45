package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"registry-federation/internal/config"
	"registry-federation/internal/peers"
)

var (
	mutedColor   = lipgloss.Color("#6272A4")
	accentColor  = lipgloss.Color("#50FA7B")
	warningColor = lipgloss.Color("#FFB86C")

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Padding(0, 1)
)

var errConfigRequired = errors.New("--config is required to edit peers")

func peersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List and edit configured peers",
	}
	cmd.AddCommand(peersListCmd(), peersAddCmd(), peersRemoveCmd())
	return cmd
}

func peersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			list := make([]peers.Peer, 0, len(cfg.Peers))
			for _, e := range cfg.Peers {
				p, err := peers.New(e.URI, peers.Relationship(e.Type))
				if err != nil {
					return err
				}
				list = append(list, p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPeers(list))
			return nil
		},
	}
}

func peersAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <uri> <Federated|Defederated>",
		Short: "Add a peer to the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return errConfigRequired
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := cfg.AddPeer(args[0], args[1])
			if err != nil {
				return err
			}
			if err := config.WriteToFile(configFile, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) id=%s\n", p.URI, p.Type, p.ID)
			return nil
		},
	}
}

func peersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a peer from the config file and invalidate its caches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return errConfigRequired
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			if _, ok := a.registry.Lookup(id); !ok {
				return fmt.Errorf("%w: %s", peers.ErrPeerNotFound, id)
			}
			// Invalidate while the peer is still resolvable.
			invalidatePeer(cmd, a, id)

			p, err := cfg.RemovePeer(id)
			if err != nil {
				return err
			}
			if err := config.WriteToFile(configFile, cfg); err != nil {
				return err
			}
			a.logger.Info("peer removed", zap.String("peer", p.URI), zap.String("peer_id", id))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p.URI)
			return nil
		},
	}
}

// invalidatePeer drops the peer's cache entries when the cache outlives this
// process. A memory cache belongs to the running server, which rebuilds it
// from the edited config on restart, so there is nothing to invalidate here.
func invalidatePeer(cmd *cobra.Command, a *app, id string) bool {
	if a.memory != nil {
		a.logger.Debug("skipping cache invalidation for process-local cache", zap.String("peer_id", id))
		return false
	}
	a.engine.OnPeerDeleted(cmd.Context(), id)
	return true
}

func renderPeers(list []peers.Peer) string {
	if len(list) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("no peers configured")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return rowStyle
		})

	t.Headers("ID", "URI", "TYPE")
	for _, p := range list {
		color := accentColor
		if p.Type == peers.Defederated {
			color = warningColor
		}
		t.Row(p.ID, p.URI, lipgloss.NewStyle().Foreground(color).Render(string(p.Type)))
	}
	return t.Render()
}
