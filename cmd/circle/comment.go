// ABOUTME: CLI commands for reading and adding comments.
// ABOUTME: Uses the home hook's comment session for the optimistic insert.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/format"
)

var commentsCmd = &cobra.Command{
	Use:   "comments <post-id>",
	Short: "List the comments on a post, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runComments,
}

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <text>",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runComment,
}

func init() {
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(commentCmd)
}

func runComments(cmd *cobra.Command, args []string) error {
	h := globalStore.Bind(feed.Home, "")
	if err := h.OpenComments(cmd.Context(), args[0]); err != nil {
		return err
	}
	sel := h.Comments()
	if len(sel.Comments) == 0 {
		fmt.Println("No comments yet.")
		return nil
	}
	fmt.Printf("%d comments on %s\n", sel.Count, sel.PostID)
	for _, c := range sel.Comments {
		fmt.Println(format.CommentText(c))
	}
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := requireLogin(ctx); err != nil {
		return err
	}
	h := globalStore.Bind(feed.Home, "")
	if err := h.OpenComments(ctx, args[0]); err != nil {
		return err
	}
	if err := h.AddComment(ctx, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Printf("Comment added to post %s\n", args[0])
	return nil
}
