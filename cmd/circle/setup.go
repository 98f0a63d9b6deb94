// ABOUTME: Cobra command for interactive account setup.
// ABOUTME: Launches a bubbletea TUI wizard to collect the API details and sign in.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/config"
	"github.com/2389-research/circle/internal/session"
	"github.com/2389-research/circle/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Connect your circle account",
	Long:  "Interactive wizard to configure the remote API and sign in.",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	model := tui.NewSetupModel(
		cfg.Backend.APIURL,
		cfg.Backend.APIKey,
		cfg.Backend.Email,
	)

	p := tea.NewProgram(model)
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Println("Setup cancelled.")
		return nil
	}

	res := final.Result()
	cfg.Backend.Kind = config.BackendRemote
	cfg.Backend.APIURL = res.APIURL
	cfg.Backend.APIKey = res.APIKey
	cfg.Backend.Email = res.Email

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if res.Session != nil {
		dataDir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data dir: %w", err)
		}
		sess := &session.Session{
			AccessToken:  res.Session.AccessToken,
			RefreshToken: res.Session.RefreshToken,
			UserID:       res.Session.User.ID,
		}
		if err := session.NewStore(dataDir).Save(sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		fmt.Println("Config saved successfully.")
	} else {
		fmt.Printf("Config saved to %s\n", configPath)
	}
	return nil
}
