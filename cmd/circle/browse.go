// ABOUTME: Cobra command for the interactive feed browser.
// ABOUTME: Runs the bubbletea browser over the home and own-profile feeds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse your feeds interactively",
	RunE:  runBrowse,
}

var browseMetricsAddr string

func init() {
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().StringVar(&browseMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := requireLogin(ctx); err != nil {
		return err
	}
	serveMetrics(ctx, browseMetricsAddr)

	model := tui.NewBrowserModel(ctx, globalStore, hookOptions()...)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
