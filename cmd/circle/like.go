// ABOUTME: CLI commands for liking and unliking posts.
// ABOUTME: Likes go through the home hook so every cached feed sees the change.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/feed"
)

var likeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Like a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLike(cmd, args[0], true)
	},
}

var unlikeCmd = &cobra.Command{
	Use:   "unlike <post-id>",
	Short: "Remove your like from a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLike(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unlikeCmd)
}

// setLike primes the liked set with the opposite state so the toggle
// lands on the one asked for.
func setLike(cmd *cobra.Command, postID string, like bool) error {
	if _, err := requireLogin(cmd.Context()); err != nil {
		return err
	}
	h := globalStore.Bind(feed.Home, "")
	globalStore.SetLiked(postID, !like)
	if err := h.HandleLikePost(cmd.Context(), postID); err != nil {
		return err
	}
	if like {
		fmt.Printf("Liked post %s\n", postID)
	} else {
		fmt.Printf("Removed like from post %s\n", postID)
	}
	return nil
}
