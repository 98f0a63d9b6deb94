// ABOUTME: Root Cobra command and global flags for circle CLI.
// ABOUTME: Sets up lifecycle hooks for config loading, backend and feed store initialization.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/config"
	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/session"
	"github.com/2389-research/circle/internal/storage"
)

var globalConfig config.Config
var globalBackend *backend
var globalSessions *session.Store
var globalResolver *session.Resolver
var globalStore *feed.Store
var globalRegistry *prometheus.Registry

// Flags
var (
	backendFlag string
	fixtureFlag string
)

var rootCmd = &cobra.Command{
	Use:   "circle",
	Short: "Feeds, likes and comments for your interest circles",
	Long: `
 ██████╗██╗██████╗  ██████╗██╗     ███████╗
██╔════╝██║██╔══██╗██╔════╝██║     ██╔════╝
██║     ██║██████╔╝██║     ██║     █████╗
██║     ██║██╔══██╗██║     ██║     ██╔══╝
╚██████╗██║██║  ██║╚██████╗███████╗███████╗
 ╚═════╝╚═╝╚═╝  ╚═╝ ╚═════╝╚══════╝╚══════╝

Read your home feed, your profile, and your friends' posts.
Like and comment from the terminal, or hand the feeds to an agent over MCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog reads its flags from the Go flag set cobra already parsed.
		_ = flag.CommandLine.Parse(nil)

		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "setup" {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if backendFlag != "" {
			cfg.Backend.Kind = backendFlag
		}
		if fixtureFlag != "" {
			cfg.Backend.FixturePath = fixtureFlag
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		globalConfig = cfg.WithDefaults()

		dataDir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data dir: %w", err)
		}
		globalSessions = session.NewStore(dataDir)

		b, err := openBackend(cmd.Context(), globalConfig, globalSessions)
		if err != nil {
			return err
		}
		globalBackend = b

		globalResolver = session.NewResolver(globalSessions, b, globalConfig.Session.JWTSecret, globalConfig.Session.ViewerTTL)
		globalRegistry = prometheus.NewRegistry()
		globalStore = newFeedStore(b, globalResolver, globalConfig, globalRegistry)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalBackend != nil {
			_ = globalBackend.Close()
			globalBackend = nil
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: remote, postgres or memory")
	rootCmd.PersistentFlags().StringVar(&fixtureFlag, "fixture", "", "YAML fixture to load into the memory backend")
}

func newFeedStore(b storage.Backend, viewer feed.ViewerSource, cfg config.Config, reg prometheus.Registerer) *feed.Store {
	formatter := format.New(b)
	return feed.New(b, viewer, formatter,
		feed.WithPageSize(cfg.Feed.PageSize),
		feed.WithMaxAgeDays(cfg.Feed.MaxAgeDays),
		feed.WithMetrics(feed.NewMetrics(reg)),
	)
}

// hookOptions are the refresh settings every bound feed uses.
func hookOptions() []feed.HookOption {
	return []feed.HookOption{
		feed.WithStaleAfter(globalConfig.Feed.StaleAfter),
		feed.WithHungAfter(globalConfig.Feed.HungAfter),
	}
}

// requireLogin returns the signed-in user's ID.
func requireLogin(ctx context.Context) (feed.Viewer, error) {
	v, err := globalResolver.Viewer(ctx)
	if err != nil {
		return feed.Viewer{}, fmt.Errorf("%w - run `circle login` first", err)
	}
	return v, nil
}
