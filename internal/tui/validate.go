// ABOUTME: Connection validation and sign-in for the setup wizard.
// ABOUTME: Checks the API key with a cheap query, then exchanges email and password for a session.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/2389-research/circle/internal/storage"
)

// ValidateConnection checks that apiURL answers with apiKey, then signs in.
// The context allows cancellation when the user quits during validation.
func ValidateConnection(ctx context.Context, apiURL, apiKey, email, password string) (*storage.AuthSession, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := storage.NewRemoteClient(NormalizeAPIURL(apiURL), apiKey, "")
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return client.SignInWithPassword(ctx, email, password)
}
