// ABOUTME: CLI command for reading the home feed and profiles.
// ABOUTME: Binds a feed hook, activates it, and prints the resulting view.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/format"
)

var feedCmd = &cobra.Command{
	Use:   "feed [home|me|user <id>]",
	Short: "Read a feed",
	Long: `Read your home feed (the default), your own posts, or another
user's profile.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runFeed,
}

// Flags
var (
	feedMore    int
	feedRefresh bool
)

func init() {
	rootCmd.AddCommand(feedCmd)

	feedCmd.Flags().IntVar(&feedMore, "more", 0, "Number of extra pages to load")
	feedCmd.Flags().BoolVar(&feedRefresh, "refresh", false, "Force a reload of the first page")
}

func parseFeedArgs(args []string) (feed.Kind, string, error) {
	if len(args) == 0 {
		return feed.Home, "", nil
	}
	switch args[0] {
	case "home":
		return feed.Home, "", nil
	case "me":
		return feed.OwnProfile, "", nil
	case "user":
		if len(args) < 2 {
			return 0, "", fmt.Errorf("feed user needs a user ID")
		}
		return feed.OtherProfile, args[1], nil
	}
	return 0, "", fmt.Errorf("unknown feed %q (want home, me or user <id>)", args[0])
}

func runFeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind, profileID, err := parseFeedArgs(args)
	if err != nil {
		return err
	}

	h := globalStore.Bind(kind, profileID, hookOptions()...)
	defer h.Deactivate()

	if err := h.Activate(ctx); err != nil {
		return err
	}
	if feedRefresh {
		if err := h.ForceRefresh(ctx); err != nil {
			return err
		}
	}
	for i := 0; i < feedMore; i++ {
		if !h.View().HasMoreContent {
			break
		}
		if err := h.LoadMore(ctx); err != nil {
			return err
		}
	}

	v := h.View()
	if v.Error != "" {
		return fmt.Errorf("%s", v.Error)
	}
	count := 0
	for _, item := range v.Feed {
		if item.IsCarousel() {
			continue
		}
		p := item.Post
		p.IsLiked = v.LikedPosts[p.ID]
		fmt.Print(format.PostText(p))
		count++
	}
	if count == 0 {
		if kind != feed.OtherProfile {
			if _, err := requireLogin(ctx); err != nil {
				return err
			}
		}
		fmt.Println("No posts found.")
		return nil
	}
	if v.HasMoreContent {
		fmt.Println("---\nMore posts available (use --more).")
	}
	return nil
}
