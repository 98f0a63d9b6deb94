// ABOUTME: Interactive feed browser bound to the Home and OwnProfile feeds.
// ABOUTME: Hook change callbacks wake the bubbletea loop through a channel.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/circle/internal/feed"
	"github.com/2389-research/circle/internal/models"
)

// Messages delivered to the browser.
type (
	feedChangedMsg struct{}
	alertMsg       struct{ err error }
	actionDoneMsg  struct{ err error }
)

var browserTabs = [...]feed.Kind{feed.Home, feed.OwnProfile}

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("241"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("212")).Underline(true)
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	authorStyle    = lipgloss.NewStyle().Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	likedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	eventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	commentStyle   = lipgloss.NewStyle().PaddingLeft(4)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// BrowserModel is the bubbletea model for browsing feeds.
type BrowserModel struct {
	ctx     context.Context
	hooks   [len(browserTabs)]*feed.Hook
	events  chan tea.Msg
	tab     int
	cursor  [len(browserTabs)]int
	input   textinput.Model
	spinner spinner.Model

	composing bool
	alert     string
	quitting  bool
}

// NewBrowserModel binds the browser to store. opts are applied to both hooks
// after the browser's own change and alert callbacks.
func NewBrowserModel(ctx context.Context, store *feed.Store, opts ...feed.HookOption) BrowserModel {
	events := make(chan tea.Msg, 16)
	wake := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
			// a wake-up is already queued; the next render reads the latest view
		}
	}

	m := BrowserModel{
		ctx:     ctx,
		events:  events,
		input:   textinput.New(),
		spinner: spinner.New(),
	}
	m.input.Placeholder = "Write a comment..."
	m.input.Width = 60
	m.spinner.Spinner = spinner.Dot

	for i, kind := range browserTabs {
		hookOpts := append([]feed.HookOption{
			feed.OnChange(func(feed.View) { wake(feedChangedMsg{}) }),
			feed.OnAlert(func(err error) { wake(alertMsg{err: err}) }),
		}, opts...)
		m.hooks[i] = store.Bind(kind, "", hookOpts...)
	}
	return m
}

func (m BrowserModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m BrowserModel) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: fn(ctx)}
	}
}

// Init implements tea.Model.
func (m BrowserModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvent(), m.spinner.Tick}
	for _, h := range m.hooks {
		cmds = append(cmds, m.run(h.Activate))
	}
	return tea.Batch(cmds...)
}

func (m BrowserModel) hook() *feed.Hook {
	return m.hooks[m.tab]
}

// posts returns the posts of the current tab, skipping the carousel.
func (m BrowserModel) posts() ([]models.Post, feed.View) {
	v := m.hook().View()
	var out []models.Post
	for _, item := range v.Feed {
		if !item.IsCarousel() {
			out = append(out, item.Post)
		}
	}
	return out, v
}

func (m BrowserModel) selected() (models.Post, bool) {
	posts, _ := m.posts()
	if len(posts) == 0 {
		return models.Post{}, false
	}
	return posts[min(m.cursor[m.tab], len(posts)-1)], true
}

// Update implements tea.Model.
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m.quit()
		}
		if m.composing {
			return m.updateCompose(msg)
		}
		return m.updateBrowse(msg)

	case feedChangedMsg:
		m.clampCursor()
		return m, m.waitForEvent()

	case alertMsg:
		m.alert = msg.err.Error()
		return m, m.waitForEvent()

	case actionDoneMsg:
		if msg.err != nil {
			m.alert = msg.err.Error()
		}
		m.clampCursor()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m BrowserModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	for _, h := range m.hooks {
		h.Deactivate()
	}
	return m, tea.Quit
}

func (m *BrowserModel) clampCursor() {
	posts, _ := m.posts()
	if m.cursor[m.tab] >= len(posts) {
		m.cursor[m.tab] = max(len(posts)-1, 0)
	}
}

func (m BrowserModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	h := m.hook()
	switch msg.String() {
	case "q":
		return m.quit()
	case "tab":
		if h.Comments().Open() {
			h.CloseComments()
		}
		m.tab = (m.tab + 1) % len(m.hooks)
		m.alert = ""
		return m, nil
	case "j", "down":
		posts, v := m.posts()
		if m.cursor[m.tab] < len(posts)-1 {
			m.cursor[m.tab]++
		} else if v.HasMoreContent {
			return m, m.run(h.LoadMore)
		}
		return m, nil
	case "k", "up":
		if m.cursor[m.tab] > 0 {
			m.cursor[m.tab]--
		}
		return m, nil
	case "l":
		if p, ok := m.selected(); ok {
			postID := p.ID
			return m, m.run(func(ctx context.Context) error { return h.HandleLikePost(ctx, postID) })
		}
	case "c":
		if h.Comments().Open() {
			h.CloseComments()
			return m, nil
		}
		if p, ok := m.selected(); ok {
			postID := p.ID
			return m, m.run(func(ctx context.Context) error { return h.OpenComments(ctx, postID) })
		}
	case "m":
		if !h.Comments().Open() {
			if p, ok := m.selected(); ok {
				postID := p.ID
				m.composing = true
				m.input.Focus()
				return m, tea.Batch(textinput.Blink, m.run(func(ctx context.Context) error { return h.OpenComments(ctx, postID) }))
			}
			return m, nil
		}
		m.composing = true
		m.input.Focus()
		return m, textinput.Blink
	case "n":
		return m, m.run(h.LoadMore)
	case "r":
		m.alert = ""
		return m, m.run(h.Refresh)
	case "R":
		m.alert = ""
		return m, m.run(h.ForceRefresh)
	}
	return m, nil
}

func (m BrowserModel) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.composing = false
		m.input.Blur()
		m.input.Reset()
		return m, nil
	case tea.KeyEnter:
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.composing = false
		m.input.Blur()
		m.input.Reset()
		h := m.hook()
		return m, m.run(func(ctx context.Context) error { return h.AddComment(ctx, text) })
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m BrowserModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("  CIRCLE "))
	for i, kind := range browserTabs {
		label := map[feed.Kind]string{feed.Home: "Home", feed.OwnProfile: "My posts"}[kind]
		if i == m.tab {
			b.WriteString(activeTabStyle.Render(label))
		} else {
			b.WriteString(tabStyle.Render(label))
		}
	}
	b.WriteString("\n\n")

	posts, v := m.posts()
	sel := m.hook().Comments()
	switch {
	case v.Loading && len(posts) == 0:
		b.WriteString(m.spinner.View() + " Loading feed...\n")
	case v.Error != "" && len(posts) == 0:
		b.WriteString(errorStyle.Render("✗ "+v.Error) + "\n")
	case len(posts) == 0:
		b.WriteString(metaStyle.Render("Nothing here yet.") + "\n")
	}

	for i, p := range posts {
		marker := "  "
		if i == m.cursor[m.tab] {
			marker = cursorStyle.Render("▸ ")
		}
		b.WriteString(renderPost(marker, p, v.LikedPosts[p.ID]))
		if sel.PostID == p.ID {
			b.WriteString(renderComments(sel))
		}
		b.WriteString("\n")
	}

	if v.IsLoadingMore {
		b.WriteString(m.spinner.View() + " Loading more...\n")
	} else if v.HasMoreContent && len(posts) > 0 {
		b.WriteString(metaStyle.Render("  (n) more posts") + "\n")
	}
	if v.Error != "" && len(posts) > 0 {
		b.WriteString(errorStyle.Render("✗ "+v.Error) + "\n")
	}
	if m.alert != "" {
		b.WriteString(errorStyle.Render("! "+m.alert) + "\n")
	}
	if m.composing {
		b.WriteString("\n" + m.input.View() + "\n")
		b.WriteString(helpStyle.Render("enter send · esc cancel") + "\n")
	} else {
		b.WriteString("\n" + helpStyle.Render("tab switch · j/k move · l like · c comments · m comment · r refresh · R force · q quit") + "\n")
	}
	return b.String()
}

func renderPost(marker string, p models.Post, liked bool) string {
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(authorStyle.Render(p.AuthorName))
	b.WriteString(metaStyle.Render(fmt.Sprintf(" · %s · %s", p.Interest, p.TimeAgo)))
	b.WriteString("\n")
	if p.Title != "" {
		b.WriteString("  " + authorStyle.Render(p.Title) + "\n")
	}
	if p.Event != nil {
		ev := p.Event
		line := fmt.Sprintf("  📅 %s at %s", ev.Date, ev.Time)
		if ev.Location != "" {
			line += " · " + ev.Location
		}
		line += fmt.Sprintf(" · %s · %d going", ev.Status, ev.AttendeeCount)
		b.WriteString(eventStyle.Render(line) + "\n")
	}
	if p.Body != "" {
		b.WriteString("  " + p.Body + "\n")
	}
	heart := "♡"
	if liked {
		heart = likedStyle.Render("♥")
	}
	b.WriteString(metaStyle.Render("  ") + heart + metaStyle.Render(fmt.Sprintf(" %d  💬 %d", p.Likes, p.CommentCount)) + "\n")
	return b.String()
}

func renderComments(sel feed.CommentSelection) string {
	if sel.Loading {
		return commentStyle.Render("loading comments...") + "\n"
	}
	if len(sel.Comments) == 0 {
		return commentStyle.Render("No comments yet.") + "\n"
	}
	var b strings.Builder
	for _, c := range sel.Comments {
		line := fmt.Sprintf("%s %s", authorStyle.Render(c.AuthorName), metaStyle.Render(c.TimeAgo))
		if c.Pending {
			line += metaStyle.Render(" · sending")
		}
		b.WriteString(commentStyle.Render(line+"\n"+c.Content) + "\n")
	}
	return b.String()
}
