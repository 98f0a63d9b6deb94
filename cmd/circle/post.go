// ABOUTME: CLI command for creating notes and events.
// ABOUTME: New posts land at the top of the home and own-profile feeds.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/format"
	"github.com/2389-research/circle/internal/models"
)

var postCmd = &cobra.Command{
	Use:   "post [body]",
	Short: "Create a post",
	Long:  "Create a note, or an event when --at is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPost,
}

// Flags
var (
	postTitle    string
	postInterest string
	postLocation string
	postAt       string
)

func init() {
	rootCmd.AddCommand(postCmd)

	postCmd.Flags().StringVar(&postTitle, "title", "", "Post title")
	postCmd.Flags().StringVar(&postInterest, "interest", "", "Interest ID to file the post under")
	postCmd.Flags().StringVar(&postLocation, "location", "", "Event location")
	postCmd.Flags().StringVar(&postAt, "at", "", "Event start time (RFC 3339)")
}

func runPost(cmd *cobra.Command, args []string) error {
	rec := &models.PostRecord{
		InterestID: postInterest,
		Type:       models.PostTypeNote,
		Title:      postTitle,
		Location:   postLocation,
	}
	if len(args) == 1 {
		rec.Body = args[0]
	}
	if rec.Body == "" && rec.Title == "" {
		return fmt.Errorf("a body or --title is required")
	}
	if postAt != "" {
		at, err := time.Parse(time.RFC3339, postAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		rec.Type = models.PostTypeEvent
		rec.EventAt = &at
	}

	post, err := globalStore.CreatePost(cmd.Context(), rec)
	if err != nil {
		return err
	}
	fmt.Print(format.PostText(post))
	return nil
}
