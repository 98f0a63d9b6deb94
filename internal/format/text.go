// ABOUTME: Plain-text rendering of formatted posts and comments.
// ABOUTME: Shared by the CLI and the MCP tools.
package format

import (
	"fmt"
	"strings"

	"github.com/2389-research/circle/internal/models"
)

// PostText renders p as a short multi-line block.
func PostText(p models.Post) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("---\n%s · %s · %s [%s]\n", p.AuthorName, p.Interest, p.TimeAgo, p.ID))
	if p.Title != "" {
		sb.WriteString(p.Title + "\n")
	}
	if p.Event != nil {
		ev := p.Event
		sb.WriteString(fmt.Sprintf("📅 %s at %s", ev.Date, ev.Time))
		if ev.Location != "" {
			sb.WriteString(" · " + ev.Location)
		}
		sb.WriteString(fmt.Sprintf(" · %s · %d going\n", ev.Status, ev.AttendeeCount))
	}
	if p.Body != "" {
		sb.WriteString(p.Body + "\n")
	}
	heart := "♡"
	if p.IsLiked {
		heart = "♥"
	}
	sb.WriteString(fmt.Sprintf("%s %d  💬 %d\n", heart, p.Likes, p.CommentCount))
	return sb.String()
}

// CommentText renders c on one line.
func CommentText(c models.Comment) string {
	suffix := ""
	if c.Pending {
		suffix = " (sending)"
	}
	return fmt.Sprintf("%s (%s): %s%s", c.AuthorName, c.TimeAgo, c.Content, suffix)
}
