// ABOUTME: CLI commands for signing in and out and showing the current viewer.
// ABOUTME: Sessions are stored in the data directory as session.yaml.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/config"
	"github.com/2389-research/circle/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	Long: `Sign in with email and password (remote backend), an existing
session token, or, for local backends, just a user ID.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

// Flags
var (
	loginEmail    string
	loginPassword string
	loginToken    string
	loginUser     string
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Existing session token")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "User ID (memory and postgres backends)")
	loginCmd.MarkFlagsMutuallyExclusive("token", "user", "email")
	loginCmd.MarkFlagsRequiredTogether("email", "password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var sess session.Session

	switch {
	case loginEmail != "":
		if globalBackend.remote == nil {
			return fmt.Errorf("email sign-in needs the remote backend")
		}
		auth, err := globalBackend.remote.SignInWithPassword(ctx, loginEmail, loginPassword)
		if err != nil {
			return err
		}
		sess = session.Session{AccessToken: auth.AccessToken, RefreshToken: auth.RefreshToken, UserID: auth.User.ID}

	case loginToken != "":
		userID, err := session.Subject(loginToken, []byte(globalConfig.Session.JWTSecret))
		if err != nil {
			return err
		}
		sess = session.Session{AccessToken: loginToken, UserID: userID}

	case loginUser != "":
		if globalBackend.kind == config.BackendRemote {
			return fmt.Errorf("the remote backend needs --email/--password or --token")
		}
		sess = session.Session{UserID: loginUser}

	default:
		return fmt.Errorf("one of --email, --token or --user is required")
	}

	if err := globalSessions.Save(&sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	globalResolver.Forget()

	v, err := requireLogin(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%s)\n", v.DisplayName, v.ID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := globalSessions.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	globalResolver.Forget()
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	v, err := requireLogin(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", v.DisplayName, v.ID)
	fmt.Printf("  backend:   %s\n", globalBackend.kind)
	fmt.Printf("  interests: %s\n", joinOrNone(v.InterestIDs))
	fmt.Printf("  friends:   %s\n", joinOrNone(v.FriendIDs))
	return nil
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
